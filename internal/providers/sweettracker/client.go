package sweettracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://info.sweettracker.co.kr"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type TrackingDetail struct {
	TimeString string `json:"timeString"`
	Kind       string `json:"kind"`
	Where      string `json:"where"`
	Level      int    `json:"level"`
}

// TrackingInfo — полезная часть ответа. Полнота полей зависит от перевозчика:
// кто-то отдаёт level, кто-то только complete, кто-то лишь текст событий.
type TrackingInfo struct {
	InvoiceNo       string           `json:"invoiceNo"`
	Level           *int             `json:"level"`
	Complete        *bool            `json:"complete"`
	CompleteYN      string           `json:"completeYN"`
	TrackingDetails []TrackingDetail `json:"trackingDetails"`
}

type trackingInfoEnvelope struct {
	Status *bool         `json:"status"`
	Code   string        `json:"code"`
	Msg    string        `json:"msg"`
	Result *TrackingInfo `json:"result"`
}

// TrackingInfo выполняет трекинговый запрос. Все сетевые/парсинговые провалы —
// ошибки с апстрим-контекстом (HTTP-код либо code/msg из тела); для вызывающего
// это retryable upstream error, а не перманентный отказ.
func (c *Client) TrackingInfo(ctx context.Context, courierCode, trackingNumber string) (*TrackingInfo, []byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/api/v1/trackingInfo"

	q := u.Query()
	q.Set("t_key", c.apiKey)
	q.Set("t_code", courierCode)
	q.Set("t_invoice", trackingNumber)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode/100 != 2 {
		return nil, nil, fmt.Errorf("sweettracker http %d", resp.StatusCode)
	}

	var env trackingInfoEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, errors.Wrap(err, "decode")
	}
	if env.Status != nil && !*env.Status {
		return nil, nil, fmt.Errorf("sweettracker api error: status=false code=%s msg=%s", env.Code, env.Msg)
	}
	if env.Result == nil {
		return nil, nil, fmt.Errorf("sweettracker api error: empty result")
	}

	return env.Result, body, nil
}
