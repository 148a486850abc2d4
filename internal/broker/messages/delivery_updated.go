package messages

import (
	"encoding/json"
	"strconv"
	"time"
)

// Topic for worker → api fan-out of delivery state changes.
const TopicDeliveryUpdated = "delivery.updated"

// DeliveryUpdated — результат одного опроса провайдера (или вебхука),
// который воркер публикует, а api-процесс применяет к базе.
type DeliveryUpdated struct {
	OrderID   uint64    `json:"order_id"`
	CheckedAt time.Time `json:"checked_at"`

	DeliveryStatus string `json:"delivery_status,omitempty"`
	ExternalStatus string `json:"external_status,omitempty"`

	RiderLat       *float64   `json:"rider_lat,omitempty"`
	RiderLng       *float64   `json:"rider_lng,omitempty"`
	RiderUpdatedAt *time.Time `json:"rider_updated_at,omitempty"`

	TrackingURL string `json:"tracking_url,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []DeliveryEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
}

// Key — ключ партиционирования: все апдейты одного заказа идут в одну
// партицию и применяются по порядку.
func (m DeliveryUpdated) Key() []byte {
	return []byte(strconv.FormatUint(m.OrderID, 10))
}

type DeliveryEvent struct {
	Status    string          `json:"status"`
	StatusRaw string          `json:"status_raw"`
	EventTime time.Time       `json:"event_time"`
	Location  *string         `json:"location,omitempty"`
	Message   *string         `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
