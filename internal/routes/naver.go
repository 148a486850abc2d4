package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
)

// DrivingClient — апстрим-клиент Naver Directions 5, которым пользуется наш
// directions-прокси. Та же фолбэк-политика, что и у Client: ошибок наружу нет.
type DrivingClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client
}

func NewDrivingClient(baseURL, clientID, clientSecret string) *DrivingClient {
	if baseURL == "" {
		baseURL = "https://naveropenapi.apigw.ntruss.com"
	}
	return &DrivingClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc: &http.Client{
			Timeout: 7 * time.Second,
		},
	}
}

type drivingResponse struct {
	Code  int `json:"code"`
	Route struct {
		Traoptimal []struct {
			Path [][]float64 `json:"path"` // [lng, lat]
		} `json:"traoptimal"`
	} `json:"route"`
}

func (c *DrivingClient) FetchRoute(ctx context.Context, start, goal models.RoutePoint) Route {
	// Без ключей дорожные маршруты недоступны — сразу прямая линия.
	if c.clientID == "" || c.clientSecret == "" {
		return StraightLine(start, goal, ReasonEmptyResponse)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	u.Path = "/map-direction/v1/driving"
	q := u.Query()
	// Naver принимает "lng,lat".
	q.Set("start", fmt.Sprintf("%f,%f", start.Lng, start.Lat))
	q.Set("goal", fmt.Sprintf("%f,%f", goal.Lng, goal.Lat))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	req.Header.Set("x-ncp-apigw-api-key-id", c.clientID)
	req.Header.Set("x-ncp-apigw-api-key", c.clientSecret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return StraightLine(start, goal, ReasonException)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return StraightLine(start, goal, ReasonHTTPError)
	}

	var body drivingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return StraightLine(start, goal, ReasonInvalidJSON)
	}
	if len(body.Route.Traoptimal) == 0 || len(body.Route.Traoptimal[0].Path) < 2 {
		return StraightLine(start, goal, ReasonEmptyPath)
	}

	path := make([]models.RoutePoint, 0, len(body.Route.Traoptimal[0].Path))
	for _, pair := range body.Route.Traoptimal[0].Path {
		if len(pair) < 2 {
			continue
		}
		path = append(path, models.RoutePoint{Lat: pair[1], Lng: pair[0]})
	}
	if len(path) < 2 {
		return StraightLine(start, goal, ReasonEmptyPath)
	}
	return Route{Path: path}
}
