// Package mock — детерминированная заглушка провайдера доставки.
// Статус и позиция курьера выводятся из хеша externalDeliveryID, поэтому один
// и тот же заказ всегда воспроизводит одно и то же состояние.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/pkg/errors"
)

// Точка "магазина" для симуляции (Каннам, Сеул).
const (
	storeLat = 37.4979
	storeLng = 127.0276
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return providers.NameMock }

func (p *Provider) CreateDelivery(ctx context.Context, in providers.CreateDeliveryInput) (providers.CreateDeliveryResult, error) {
	if in.OrderID == 0 {
		return providers.CreateDeliveryResult{}, errors.New("mock: orderId is required")
	}
	id := fmt.Sprintf("MOCK-%d", in.OrderID)
	return providers.CreateDeliveryResult{
		ExternalDeliveryID: id,
		ExternalStatus:     status.ExternalRequested,
		TrackingNumber:     in.TrackingNumber,
		TrackingURL:        "",
	}, nil
}

func (p *Provider) CancelDelivery(ctx context.Context, externalDeliveryID string) error {
	return nil
}

func (p *Provider) GetDelivery(ctx context.Context, externalDeliveryID string) (models.DeliverySnapshot, error) {
	if externalDeliveryID == "" {
		return models.DeliverySnapshot{}, errors.New("mock: externalDeliveryId is required")
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(externalDeliveryID))
	v := h.Sum32()

	level := int(v%6) + 1
	ext := externalStatusForLevel(level)

	// Курьер "едет" от магазина к псевдослучайной точке назначения,
	// доля пути определяется уровнем.
	destLat := storeLat + float64(v%200)/10000.0
	destLng := storeLng + float64((v/7)%200)/10000.0
	progress := float64(level) / 6.0
	lat := storeLat + (destLat-storeLat)*progress
	lng := storeLng + (destLng-storeLng)*progress

	now := time.Now().UTC()
	ev := &models.DeliveryEvent{
		Status:    ext,
		StatusRaw: ext,
		EventTime: now,
		Message:   ptr("mock provider update"),
	}

	raw, _ := json.Marshal(map[string]any{"externalDeliveryId": externalDeliveryID, "level": level})

	return models.DeliverySnapshot{
		Provider:               providers.NameMock,
		ExternalDeliveryID:     externalDeliveryID,
		ExternalDeliveryStatus: ext,
		Lat:                    &lat,
		Lng:                    &lng,
		TrackedAt:              now,
		RawPayload:             raw,
		Events:                 []*models.DeliveryEvent{ev},
	}, nil
}

func (p *Provider) NormalizeWebhook(payload []byte, v providers.WebhookVerifyInput) (*providers.NormalizedWebhookEvent, error) {
	var body struct {
		ExternalDeliveryID string   `json:"externalDeliveryId"`
		Status             string   `json:"status"`
		Lat                *float64 `json:"lat"`
		Lng                *float64 `json:"lng"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrap(err, "mock webhook decode")
	}
	if body.ExternalDeliveryID == "" || body.Status == "" {
		return nil, nil
	}
	return &providers.NormalizedWebhookEvent{
		Provider:           providers.NameMock,
		ExternalDeliveryID: body.ExternalDeliveryID,
		ExternalStatus:     body.Status,
		Lat:                body.Lat,
		Lng:                body.Lng,
		OccurredAt:         time.Now().UTC(),
		Raw:                json.RawMessage(payload),
	}, nil
}

func (p *Provider) VerifyWebhook(v providers.WebhookVerifyInput) bool { return true }

func externalStatusForLevel(level int) string {
	switch {
	case level >= 6:
		return status.ExternalDelivered
	case level >= 5:
		return status.ExternalArriving
	case level >= 3:
		return status.ExternalInTransit
	default:
		return status.ExternalRequested
	}
}

func ptr(s string) *string { return &s }
