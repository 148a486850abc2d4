// Package providers defines the delivery-provider contract and its registry.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/pkg/errors"
)

// ErrCancelNotSupported возвращают провайдеры без dispatch-возможностей
// (например, чисто трекинговые API).
var ErrCancelNotSupported = errors.New("cancel delivery is not supported by this provider")

type CreateDeliveryInput struct {
	OrderID        uint64
	CourierCode    string
	TrackingNumber string
	PickupAddress  string
	DropoffAddress string
}

type CreateDeliveryResult struct {
	ExternalDeliveryID string
	ExternalStatus     string
	TrackingNumber     string
	TrackingURL        string
}

// WebhookVerifyInput — всё, что нужно для проверки подписи: сырое тело и
// заголовок с подписью как он пришёл.
type WebhookVerifyInput struct {
	Signature string
	RawBody   []byte
}

type NormalizedWebhookEvent struct {
	Provider           string
	ExternalDeliveryID string
	ExternalStatus     string
	Lat                *float64
	Lng                *float64
	OccurredAt         time.Time
	Raw                json.RawMessage
}

// Provider — единый контракт для всех вариантов (mock / sweettracker / internal).
// Регистри выбирает конкретную реализацию один раз, дальше вызывающий код
// не ветвится по провайдеру.
type Provider interface {
	Name() string
	CreateDelivery(ctx context.Context, in CreateDeliveryInput) (CreateDeliveryResult, error)
	CancelDelivery(ctx context.Context, externalDeliveryID string) error
	GetDelivery(ctx context.Context, externalDeliveryID string) (models.DeliverySnapshot, error)
	NormalizeWebhook(payload []byte, v WebhookVerifyInput) (*NormalizedWebhookEvent, error)
	VerifyWebhook(v WebhookVerifyInput) bool
}
