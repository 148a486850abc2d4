// Package status maps free-form provider statuses onto the internal delivery enum.
package status

import (
	"strings"

	"github.com/BearBump/RiderTrack/internal/models"
)

// Внешние статусы, которые умеют отдавать адаптеры. Не показываются пользователю.
const (
	ExternalRequested       = "REQUESTED"
	ExternalAssigned        = "ASSIGNED"
	ExternalPickupReady     = "PICKUP_READY"
	ExternalPickedUp        = "PICKED_UP"
	ExternalInTransit       = "IN_TRANSIT"
	ExternalOutForDelivery  = "OUT_FOR_DELIVERY"
	ExternalShipping        = "SHIPPING"
	ExternalArriving        = "ARRIVING"
	ExternalNearDestination = "NEAR_DESTINATION"
	ExternalDelivered       = "DELIVERED"
	ExternalCompleted       = "COMPLETED"
	ExternalDone            = "DONE"
)

// NormalizeExternalStatus: trim, upper-case, любые пробелы схлопываются в "_".
// Пустой вход даёт пустую строку.
func NormalizeExternalStatus(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToUpper(trimmed)), "_")
}

var buckets = map[string]string{
	ExternalRequested:   models.DeliveryStatusPreparing,
	ExternalAssigned:    models.DeliveryStatusPreparing,
	ExternalPickupReady: models.DeliveryStatusPreparing,
	ExternalPickedUp:    models.DeliveryStatusPreparing,

	ExternalInTransit:      models.DeliveryStatusInDelivery,
	ExternalOutForDelivery: models.DeliveryStatusInDelivery,
	ExternalShipping:       models.DeliveryStatusInDelivery,

	ExternalArriving:        models.DeliveryStatusArriving,
	ExternalNearDestination: models.DeliveryStatusArriving,

	ExternalDelivered: models.DeliveryStatusDelivered,
	ExternalCompleted: models.DeliveryStatusDelivered,
	ExternalDone:      models.DeliveryStatusDelivered,
}

// MapToDeliveryStatus нормализует вход и ищет его в закрытых бакетах.
// ok=false значит "не знаем такой статус" — вызывающий обязан оставить прежний
// DeliveryStatus, а не перетирать его.
func MapToDeliveryStatus(raw string) (string, bool) {
	norm := NormalizeExternalStatus(raw)
	if norm == "" {
		return "", false
	}
	mapped, ok := buckets[norm]
	return mapped, ok
}

// NextDeliveryStatus добавляет к маппингу монотонность: незнакомый внешний
// статус и любой откат назад (включая откат после DELIVERED) дают пустую
// строку — "статус не менять".
func NextDeliveryStatus(current, raw string) string {
	mapped, ok := MapToDeliveryStatus(raw)
	if !ok {
		return ""
	}
	if models.DeliveryStatusRank(mapped) <= models.DeliveryStatusRank(current) {
		return ""
	}
	return mapped
}
