package models

import (
	"encoding/json"
	"time"
)

// Внутренние статусы доставки. Порядок фиксированный: заказ двигается только вперёд.
const (
	DeliveryStatusOrderComplete = "ORDER_COMPLETE"
	DeliveryStatusPreparing     = "PREPARING"
	DeliveryStatusInDelivery    = "IN_DELIVERY"
	DeliveryStatusArriving      = "ARRIVING"
	DeliveryStatusDelivered     = "DELIVERED"
)

const (
	OrderStatusPaid     = "PAID"
	OrderStatusPending  = "PENDING"
	OrderStatusCanceled = "CANCELED"
)

// DeliveryStatusRank returns the position of a status in the normal flow,
// or -1 for anything outside the closed set.
func DeliveryStatusRank(s string) int {
	switch s {
	case DeliveryStatusOrderComplete:
		return 0
	case DeliveryStatusPreparing:
		return 1
	case DeliveryStatusInDelivery:
		return 2
	case DeliveryStatusArriving:
		return 3
	case DeliveryStatusDelivered:
		return 4
	default:
		return -1
	}
}

// IsTrackableStatus: позицию курьера показываем (и анимируем) только в этих статусах.
// DELIVERED входит, чтобы карта один раз показала финальную точку.
func IsTrackableStatus(s string) bool {
	switch s {
	case DeliveryStatusPreparing, DeliveryStatusInDelivery, DeliveryStatusArriving, DeliveryStatusDelivered:
		return true
	default:
		return false
	}
}

// DeliveryOrder — трекинговая часть заказа. Мутируется только пайплайном
// (воркер/вебхуки/гео-бэкофилл), UI её не трогает.
type DeliveryOrder struct {
	ID     uint64
	UserID uint64

	OrderStatus    string
	DeliveryStatus string

	ShippingAddress string
	ShippingLat     *float64
	ShippingLng     *float64

	RiderLat       *float64
	RiderLng       *float64
	RiderUpdatedAt *time.Time

	DeliveryProvider       string
	CourierCode            string
	TrackingNumber         string
	TrackingURL            string
	ExternalDeliveryID     string
	ExternalDeliveryStatus string

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeliveryOrderCreateInput — данные для заведения трекинговой части заказа
// после оплаты и диспатча провайдеру.
type DeliveryOrderCreateInput struct {
	UserID          uint64
	ShippingAddress string
	ShippingLat     *float64
	ShippingLng     *float64

	DeliveryProvider   string
	CourierCode        string
	TrackingNumber     string
	TrackingURL        string
	ExternalDeliveryID string
}

// DeliverySnapshot — сырой результат getDelivery. Эфемерный: сам по себе не
// хранится, из него обновляются поля DeliveryOrder.
type DeliverySnapshot struct {
	Provider               string
	ExternalDeliveryID     string
	ExternalDeliveryStatus string
	TrackingNumber         string
	TrackingURL            string
	Lat                    *float64
	Lng                    *float64
	TrackedAt              time.Time
	RawPayload             json.RawMessage
	Events                 []*DeliveryEvent
}

type DeliveryEvent struct {
	ID          uint64
	OrderID     uint64
	Status      string
	StatusRaw   string
	EventTime   time.Time
	Location    *string
	Message     *string
	PayloadJSON *string
	CreatedAt   time.Time
}

// RoutePoint используется и для отрисовки карты, и как I/O формат маршрутов.
type RoutePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
