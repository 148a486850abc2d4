// Package routes — получение дорожных маршрутов для карты.
// Контракт жёсткий: FetchRoute никогда не возвращает ошибку. Любой сбой
// деградирует в прямую линию из двух точек с кодом причины — карта обязана
// отрисоваться всегда.
package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
)

// Причины фолбэка на прямую линию.
const (
	ReasonHTTPError     = "DIRECTIONS_HTTP_ERROR"
	ReasonEmptyResponse = "DIRECTIONS_EMPTY_RESPONSE"
	ReasonInvalidJSON   = "DIRECTIONS_INVALID_JSON"
	ReasonEmptyPath     = "DIRECTIONS_EMPTY_PATH"
	ReasonException     = "DIRECTIONS_EXCEPTION"
)

type Route struct {
	Path       []models.RoutePoint `json:"path"`
	IsFallback bool                `json:"isFallback,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// StraightLine — двухточечный фолбэк между теми же концами.
func StraightLine(start, goal models.RoutePoint, reason string) Route {
	return Route{
		Path:       []models.RoutePoint{start, goal},
		IsFallback: true,
		Reason:     reason,
	}
}

// Client ходит в наш же directions-прокси (/api/naver/directions).
type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 7 * time.Second,
		},
	}
}

func (c *Client) FetchRoute(ctx context.Context, start, goal models.RoutePoint) Route {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	u.Path = "/api/naver/directions"
	q := u.Query()
	q.Set("startLat", fmt.Sprintf("%f", start.Lat))
	q.Set("startLng", fmt.Sprintf("%f", start.Lng))
	q.Set("goalLat", fmt.Sprintf("%f", goal.Lat))
	q.Set("goalLng", fmt.Sprintf("%f", goal.Lng))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return StraightLine(start, goal, ReasonHTTPError)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	if len(body) == 0 {
		return StraightLine(start, goal, ReasonEmptyResponse)
	}

	var r Route
	if err := json.Unmarshal(body, &r); err != nil {
		return StraightLine(start, goal, ReasonInvalidJSON)
	}
	if len(r.Path) < 2 {
		return StraightLine(start, goal, ReasonEmptyPath)
	}
	return r
}
