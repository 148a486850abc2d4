// Package delivery — прикладной слой трекинга: активная доставка для карты,
// диспатч провайдеру, применение снапшотов и вебхуков.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/RiderTrack/internal/broker/messages"
	"github.com/BearBump/RiderTrack/internal/cache"
	"github.com/BearBump/RiderTrack/internal/geo"
	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/BearBump/RiderTrack/internal/storage/pgdelivery"
)

type Repository interface {
	CreateDeliveryOrder(ctx context.Context, in models.DeliveryOrderCreateInput) (*models.DeliveryOrder, error)
	GetOrderByID(ctx context.Context, id uint64) (*models.DeliveryOrder, error)
	GetOrderByExternalID(ctx context.Context, provider, externalID string) (*models.DeliveryOrder, error)
	GetActiveDeliveryOrder(ctx context.Context, userID uint64) (*models.DeliveryOrder, error)
	SetDispatchResult(ctx context.Context, orderID uint64, externalID, externalStatus, trackingNumber, trackingURL string) error
	SetShippingCoords(ctx context.Context, orderID uint64, lat, lng float64) error
	ApplyDeliveryUpdate(ctx context.Context, upd pgdelivery.DeliveryUpdate) error
	ListDeliveryEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.DeliveryEvent, error)
	RefreshDelivery(ctx context.Context, orderID uint64) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Result, error)
}

// пересчёт после вебхука: вебхук не отменяет плановый опрос, просто двигает его
const webhookRecheckAfter = 5 * time.Minute

// ErrInvalidWebhookSignature отдаёт HandleWebhook, когда подпись не сошлась.
// HTTP-слой мапит её в 401.
var ErrInvalidWebhookSignature = errors.New("webhook signature verification failed")

type Service struct {
	repo       Repository
	registry   *providers.Registry
	geocoder   Geocoder
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, registry *providers.Registry, geocoder Geocoder, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, registry: registry, geocoder: geocoder, cache: c, currentTTL: currentTTL}
}

// ActiveDeliveryView — ответ для карты. Поля externalTrackingId и
// riderLastSeenAt дублируют канонические под старые клиенты.
type ActiveDeliveryView struct {
	OrderID        uint64 `json:"orderId"`
	OrderStatus    string `json:"orderStatus"`
	DeliveryStatus string `json:"deliveryStatus"`

	ShippingAddress string   `json:"shippingAddress,omitempty"`
	ShippingLat     *float64 `json:"shippingLat,omitempty"`
	ShippingLng     *float64 `json:"shippingLng,omitempty"`

	RiderLat       *float64   `json:"riderLat,omitempty"`
	RiderLng       *float64   `json:"riderLng,omitempty"`
	RiderUpdatedAt *time.Time `json:"riderUpdatedAt,omitempty"`

	DeliveryProvider   string `json:"deliveryProvider,omitempty"`
	TrackingNumber     string `json:"trackingNumber,omitempty"`
	TrackingURL        string `json:"trackingUrl,omitempty"`
	ExternalDeliveryID string `json:"externalDeliveryId,omitempty"`

	// legacy-алиасы
	ExternalTrackingID string     `json:"externalTrackingId,omitempty"`
	RiderLastSeenAt    *time.Time `json:"riderLastSeenAt,omitempty"`
}

func viewFromOrder(o *models.DeliveryOrder) *ActiveDeliveryView {
	return &ActiveDeliveryView{
		OrderID:            o.ID,
		OrderStatus:        o.OrderStatus,
		DeliveryStatus:     o.DeliveryStatus,
		ShippingAddress:    o.ShippingAddress,
		ShippingLat:        o.ShippingLat,
		ShippingLng:        o.ShippingLng,
		RiderLat:           o.RiderLat,
		RiderLng:           o.RiderLng,
		RiderUpdatedAt:     o.RiderUpdatedAt,
		DeliveryProvider:   o.DeliveryProvider,
		TrackingNumber:     o.TrackingNumber,
		TrackingURL:        o.TrackingURL,
		ExternalDeliveryID: o.ExternalDeliveryID,
		ExternalTrackingID: o.ExternalDeliveryID,
		RiderLastSeenAt:    o.RiderUpdatedAt,
	}
}

// ActiveDelivery отдаёт самый свежий отслеживаемый заказ пользователя.
// Если у заказа есть адрес, но нет координат, один раз геокодит и персистит
// результат — следующие чтения уже без геокодинга. Нет активного — (nil, nil).
func (s *Service) ActiveDelivery(ctx context.Context, userID uint64) (*ActiveDeliveryView, error) {
	if userID == 0 {
		return nil, errors.New("userId is required")
	}

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, activeKey(userID)); err == nil && ok {
			var v ActiveDeliveryView
			if json.Unmarshal(b, &v) == nil {
				return &v, nil
			}
		}
	}

	order, err := s.repo.GetActiveDeliveryOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	view := viewFromOrder(order)
	s.backfillShippingCoords(ctx, order, view)

	// Кэшируем только "полный" ответ: пока координат нет, каждое чтение —
	// шанс добить геокодинг.
	coordsReady := view.ShippingLat != nil || view.ShippingAddress == ""
	if s.cache != nil && s.currentTTL > 0 && coordsReady {
		b, _ := json.Marshal(view)
		_ = s.cache.Set(ctx, activeKey(userID), b, s.currentTTL)
	}

	return view, nil
}

func (s *Service) backfillShippingCoords(ctx context.Context, order *models.DeliveryOrder, view *ActiveDeliveryView) {
	if s.geocoder == nil || order.ShippingAddress == "" {
		return
	}
	if order.ShippingLat != nil && order.ShippingLng != nil {
		return
	}

	res, err := s.geocoder.Geocode(ctx, order.ShippingAddress)
	if err != nil {
		slog.Warn("shipping geocode failed", "orderId", order.ID, "err", err)
		return
	}
	if res.Unavailable {
		return
	}

	if err := s.repo.SetShippingCoords(ctx, order.ID, res.Lat, res.Lng); err != nil {
		slog.Warn("persist shipping coords failed", "orderId", order.ID, "err", err)
		return
	}
	view.ShippingLat = &res.Lat
	view.ShippingLng = &res.Lng
}

type DispatchInput struct {
	UserID          uint64
	ShippingAddress string
	ShippingLat     *float64
	ShippingLng     *float64
	PickupAddress   string
	CourierCode     string
	TrackingNumber  string
}

// Dispatch заводит трекинговую часть заказа и регистрирует доставку у
// провайдера, выбранного регистри. Заказ создаётся до вызова провайдера:
// упавший createDelivery оставляет строку в ORDER_COMPLETE для ретрая.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (*models.DeliveryOrder, error) {
	if in.UserID == 0 {
		return nil, errors.New("userId is required")
	}

	p := s.registry.DispatchProvider()

	order, err := s.repo.CreateDeliveryOrder(ctx, models.DeliveryOrderCreateInput{
		UserID:           in.UserID,
		ShippingAddress:  in.ShippingAddress,
		ShippingLat:      in.ShippingLat,
		ShippingLng:      in.ShippingLng,
		DeliveryProvider: p.Name(),
		CourierCode:      in.CourierCode,
		TrackingNumber:   in.TrackingNumber,
	})
	if err != nil {
		return nil, err
	}

	res, err := p.CreateDelivery(ctx, providers.CreateDeliveryInput{
		OrderID:        order.ID,
		CourierCode:    in.CourierCode,
		TrackingNumber: in.TrackingNumber,
		PickupAddress:  in.PickupAddress,
		DropoffAddress: in.ShippingAddress,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dispatch order %d to %s", order.ID, p.Name())
	}

	err = s.repo.SetDispatchResult(ctx, order.ID, res.ExternalDeliveryID, res.ExternalStatus, res.TrackingNumber, res.TrackingURL)
	if err != nil {
		return nil, err
	}

	return s.repo.GetOrderByID(ctx, order.ID)
}

// ApplyKafkaUpdate применяет апдейт воркера к базе. Зеркало воркерского
// снапшота: статусная монотонность уже применена на стороне воркера.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.DeliveryUpdated) error {
	if msg.OrderID == 0 {
		return errors.New("order_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: воркер не прислал next_check_at — проверим через час
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	var events []*models.DeliveryEvent
	for _, e := range msg.Events {
		var payloadStr *string
		if len(e.Payload) > 0 {
			s := string(e.Payload)
			payloadStr = &s
		}
		events = append(events, &models.DeliveryEvent{
			Status:      e.Status,
			StatusRaw:   e.StatusRaw,
			EventTime:   e.EventTime,
			Location:    e.Location,
			Message:     e.Message,
			PayloadJSON: payloadStr,
		})
	}

	err := s.repo.ApplyDeliveryUpdate(ctx, pgdelivery.DeliveryUpdate{
		OrderID:        msg.OrderID,
		CheckedAt:      msg.CheckedAt,
		DeliveryStatus: msg.DeliveryStatus,
		ExternalStatus: msg.ExternalStatus,
		RiderLat:       msg.RiderLat,
		RiderLng:       msg.RiderLng,
		RiderUpdatedAt: msg.RiderUpdatedAt,
		TrackingURL:    msg.TrackingURL,
		NextCheckAt:    msg.NextCheckAt,
		Events:         events,
		Error:          msg.Error,
	})
	if err != nil {
		return err
	}

	s.refreshCache(ctx, msg.OrderID)
	return nil
}

// HandleWebhook проверяет подпись, нормализует событие и применяет его к
// заказу. Неизвестный externalDeliveryId — не ошибка: вебхуки приходят и по
// чужим/старым доставкам.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, payload []byte, v providers.WebhookVerifyInput) error {
	p := s.registry.ByName(providerName)

	if !p.VerifyWebhook(v) {
		return errors.Wrap(ErrInvalidWebhookSignature, p.Name())
	}

	ev, err := p.NormalizeWebhook(payload, v)
	if err != nil {
		return errors.Wrap(err, "normalize webhook")
	}
	if ev == nil {
		return nil
	}

	order, err := s.repo.GetOrderByExternalID(ctx, p.Name(), ev.ExternalDeliveryID)
	if err != nil {
		return err
	}
	if order == nil {
		slog.Info("webhook for unknown delivery", "provider", p.Name(), "externalDeliveryId", ev.ExternalDeliveryID)
		return nil
	}

	now := time.Now().UTC()
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	upd := pgdelivery.DeliveryUpdate{
		OrderID:        order.ID,
		CheckedAt:      now,
		DeliveryStatus: status.NextDeliveryStatus(order.DeliveryStatus, ev.ExternalStatus),
		ExternalStatus: status.NormalizeExternalStatus(ev.ExternalStatus),
		RiderLat:       ev.Lat,
		RiderLng:       ev.Lng,
		NextCheckAt:    now.Add(webhookRecheckAfter),
	}
	if ev.Lat != nil && ev.Lng != nil {
		upd.RiderUpdatedAt = &occurred
	}
	if upd.ExternalStatus != "" {
		evStatus := upd.DeliveryStatus
		if evStatus == "" {
			evStatus = order.DeliveryStatus
		}
		var payloadStr *string
		if len(ev.Raw) > 0 {
			s := string(ev.Raw)
			payloadStr = &s
		}
		upd.Events = append(upd.Events, &models.DeliveryEvent{
			Status:      evStatus,
			StatusRaw:   upd.ExternalStatus,
			EventTime:   occurred,
			PayloadJSON: payloadStr,
		})
	}

	if err := s.repo.ApplyDeliveryUpdate(ctx, upd); err != nil {
		return err
	}

	s.refreshCache(ctx, order.ID)
	return nil
}

func (s *Service) ListEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.DeliveryEvent, error) {
	return s.repo.ListDeliveryEvents(ctx, orderID, limit, offset)
}

func (s *Service) RefreshDelivery(ctx context.Context, orderID uint64) error {
	if orderID == 0 {
		return errors.New("orderId is required")
	}
	return s.repo.RefreshDelivery(ctx, orderID)
}

// refreshCache перечитывает заказ и перекладывает свежий ответ в кэш.
func (s *Service) refreshCache(ctx context.Context, orderID uint64) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil || order == nil {
		return
	}
	b, _ := json.Marshal(viewFromOrder(order))
	_ = s.cache.Set(ctx, activeKey(order.UserID), b, s.currentTTL)
}

func activeKey(userID uint64) string {
	return fmt.Sprintf("delivery:user:%d:active", userID)
}
