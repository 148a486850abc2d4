// Package geo — геокодинг адреса доставки через Naver Cloud geocode API.
// Геокодинг — опциональное улучшение: без ключей и при любых сбоях карта
// просто остаётся без координат назначения, заказ от этого не страдает.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/RiderTrack/internal/cache"
	"github.com/pkg/errors"
)

// Result — итог геокодинга. Unavailable=true означает "фича не настроена"
// (нет ключей), это принципиально не то же самое, что неудачный лукап.
type Result struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Query       string  `json:"query"`
	Unavailable bool    `json:"unavailable,omitempty"`
}

type Geocoder struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpc        *http.Client

	cache    cache.BytesCache
	cacheTTL time.Duration
}

func New(baseURL, clientID, clientSecret string) *Geocoder {
	if baseURL == "" {
		baseURL = "https://naveropenapi.apigw.ntruss.com"
	}
	return &Geocoder{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// WithCache: один адрес всегда даёт одни координаты, так что кэшировать
// результат безопасно и сильно экономит квоту API.
func (g *Geocoder) WithCache(c cache.BytesCache, ttl time.Duration) *Geocoder {
	g.cache = c
	g.cacheTTL = ttl
	return g
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Addresses    []struct {
		X string `json:"x"` // longitude
		Y string `json:"y"` // latitude
	} `json:"addresses"`
}

// Geocode перебирает кандидатов по порядку, пока один из них не распарсится в
// координаты. Возвращает Result{Unavailable:true} без единого сетевого вызова,
// если ключи не сконфигурированы. Ошибка означает "все кандидаты провалились".
func (g *Geocoder) Geocode(ctx context.Context, address string) (Result, error) {
	if g.clientID == "" || g.clientSecret == "" {
		return Result{Unavailable: true}, nil
	}

	candidates := CandidateQueries(address)
	if len(candidates) == 0 {
		return Result{}, errors.New("geocode: empty address")
	}

	if g.cache != nil && g.cacheTTL > 0 {
		key := cacheKey(candidates[0])
		if b, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			var cached Result
			if json.Unmarshal(b, &cached) == nil {
				return cached, nil
			}
		}
	}

	var failures []string
	for _, q := range candidates {
		res, reason := g.lookup(ctx, q)
		if reason == "" {
			if g.cache != nil && g.cacheTTL > 0 {
				b, _ := json.Marshal(res)
				_ = g.cache.Set(ctx, cacheKey(candidates[0]), b, g.cacheTTL)
			}
			return res, nil
		}
		failures = append(failures, fmt.Sprintf("%q: %s", q, reason))
	}

	slog.Warn("geocode failed for all candidates", "address", address, "attempts", len(failures))
	return Result{}, errors.Errorf("geocode: all candidates failed: %s", strings.Join(failures, "; "))
}

// lookup пробует одного кандидата; пустая причина = успех.
func (g *Geocoder) lookup(ctx context.Context, query string) (Result, string) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return Result{}, "bad base url"
	}
	u.Path = "/map-geocode/v2/geocode"
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, err.Error()
	}
	req.Header.Set("x-ncp-apigw-api-key-id", g.clientID)
	req.Header.Set("x-ncp-apigw-api-key", g.clientSecret)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return Result{}, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Result{}, fmt.Sprintf("http %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, "invalid json"
	}
	if body.ErrorMessage != "" {
		return Result{}, body.ErrorMessage
	}
	if len(body.Addresses) == 0 {
		return Result{}, "no address result"
	}

	lng, errX := strconv.ParseFloat(body.Addresses[0].X, 64)
	lat, errY := strconv.ParseFloat(body.Addresses[0].Y, 64)
	if errX != nil || errY != nil {
		return Result{}, "unparsable coordinates"
	}

	return Result{Lat: lat, Lng: lng, Query: query}, ""
}

func cacheKey(normalizedAddress string) string {
	return "geo:addr:" + normalizedAddress
}
