// Package internalprov — адаптер собственного курьерского флота.
// Позиции и статусы райдеров пишет диспетчерская консоль в redis, адаптер
// просто читает актуальную запись.
package internalprov

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Provider struct {
	c *redis.Client
}

func New(addr string) *Provider {
	return &Provider{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient используется в тестах (miniredis).
func NewWithClient(c *redis.Client) *Provider { return &Provider{c: c} }

func (p *Provider) Name() string { return providers.NameInternal }

type fleetRecord struct {
	Status    string    `json:"status"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func fleetKey(externalDeliveryID string) string {
	return fmt.Sprintf("fleet:delivery:%s", externalDeliveryID)
}

func (p *Provider) CreateDelivery(ctx context.Context, in providers.CreateDeliveryInput) (providers.CreateDeliveryResult, error) {
	if in.OrderID == 0 {
		return providers.CreateDeliveryResult{}, errors.New("internal: orderId is required")
	}
	id := fmt.Sprintf("INT-%d", in.OrderID)

	rec := fleetRecord{Status: status.ExternalRequested, UpdatedAt: time.Now().UTC()}
	b, _ := json.Marshal(rec)
	// NX: если диспетчер уже назначил райдера, не перетираем его запись.
	if err := p.c.SetNX(ctx, fleetKey(id), b, 0).Err(); err != nil {
		return providers.CreateDeliveryResult{}, errors.Wrap(err, "internal: create fleet record")
	}

	return providers.CreateDeliveryResult{
		ExternalDeliveryID: id,
		ExternalStatus:     status.ExternalRequested,
	}, nil
}

func (p *Provider) CancelDelivery(ctx context.Context, externalDeliveryID string) error {
	if externalDeliveryID == "" {
		return errors.New("internal: externalDeliveryId is required")
	}
	if err := p.c.Del(ctx, fleetKey(externalDeliveryID)).Err(); err != nil {
		return errors.Wrap(err, "internal: cancel delivery")
	}
	return nil
}

func (p *Provider) GetDelivery(ctx context.Context, externalDeliveryID string) (models.DeliverySnapshot, error) {
	if externalDeliveryID == "" {
		return models.DeliverySnapshot{}, errors.New("internal: externalDeliveryId is required")
	}

	now := time.Now().UTC()
	b, err := p.c.Get(ctx, fleetKey(externalDeliveryID)).Bytes()
	if err == redis.Nil {
		// Райдер ещё не назначен — это не ошибка, заказ просто в начале пути.
		return models.DeliverySnapshot{
			Provider:               providers.NameInternal,
			ExternalDeliveryID:     externalDeliveryID,
			ExternalDeliveryStatus: status.ExternalRequested,
			TrackedAt:              now,
		}, nil
	}
	if err != nil {
		return models.DeliverySnapshot{}, errors.Wrap(err, "internal: read fleet record")
	}

	var rec fleetRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return models.DeliverySnapshot{}, errors.Wrap(err, "internal: decode fleet record")
	}

	ext := rec.Status
	if ext == "" {
		ext = status.ExternalRequested
	}
	return models.DeliverySnapshot{
		Provider:               providers.NameInternal,
		ExternalDeliveryID:     externalDeliveryID,
		ExternalDeliveryStatus: ext,
		Lat:                    rec.Lat,
		Lng:                    rec.Lng,
		TrackedAt:              now,
		RawPayload:             json.RawMessage(b),
	}, nil
}

// NormalizeWebhook принимает событие от диспетчерской консоли. Консоль живёт
// в том же периметре, подписи нет — VerifyWebhook всегда true.
func (p *Provider) NormalizeWebhook(payload []byte, v providers.WebhookVerifyInput) (*providers.NormalizedWebhookEvent, error) {
	var body struct {
		ExternalDeliveryID string   `json:"externalDeliveryId"`
		Status             string   `json:"status"`
		Lat                *float64 `json:"lat"`
		Lng                *float64 `json:"lng"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrap(err, "internal webhook decode")
	}
	if body.ExternalDeliveryID == "" || body.Status == "" {
		return nil, nil
	}
	return &providers.NormalizedWebhookEvent{
		Provider:           providers.NameInternal,
		ExternalDeliveryID: body.ExternalDeliveryID,
		ExternalStatus:     body.Status,
		Lat:                body.Lat,
		Lng:                body.Lng,
		OccurredAt:         time.Now().UTC(),
		Raw:                json.RawMessage(payload),
	}, nil
}

func (p *Provider) VerifyWebhook(v providers.WebhookVerifyInput) bool { return true }
