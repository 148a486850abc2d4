// Package deliveryapi — HTTP-ручки для карты доставки: активный заказ,
// directions-прокси, ключ карт и приём вебхуков провайдеров.
package deliveryapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/routes"
	"github.com/BearBump/RiderTrack/internal/services/delivery"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type DeliveryService interface {
	ActiveDelivery(ctx context.Context, userID uint64) (*delivery.ActiveDeliveryView, error)
	ListEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.DeliveryEvent, error)
	RefreshDelivery(ctx context.Context, orderID uint64) error
	HandleWebhook(ctx context.Context, providerName string, payload []byte, v providers.WebhookVerifyInput) error
}

type DirectionsFetcher interface {
	FetchRoute(ctx context.Context, start, goal models.RoutePoint) routes.Route
}

type API struct {
	svc           DeliveryService
	directions    DirectionsFetcher
	naverClientID string
}

func New(svc DeliveryService, directions DirectionsFetcher, naverClientID string) *API {
	return &API{svc: svc, directions: directions, naverClientID: naverClientID}
}

func (a *API) Mount(r chi.Router) {
	r.Get("/api/user/orders/active-delivery", a.activeDelivery)
	r.Get("/api/user/orders/{orderId}/events", a.listEvents)
	r.Post("/api/user/orders/{orderId}/refresh", a.refreshDelivery)
	r.Get("/api/naver/client-id", a.naverClientIDHandler)
	r.Get("/api/naver/directions", a.directionsHandler)
	r.Post("/api/webhooks/delivery/{provider}", a.webhook)
}

// Трекинговые ответы живут секунды, браузеру их кэшировать нельзя.
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) activeDelivery(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	userID, err := userIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user is not authenticated")
		return
	}

	view, err := a.svc.ActiveDelivery(r.Context(), userID)
	if err != nil {
		slog.Error("active delivery lookup failed", "userId", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if view == nil {
		writeError(w, http.StatusNotFound, "no active delivery")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// userIDFromRequest: аутентификация живёт на шлюзе, сюда приходит уже
// проверенный X-User-Id.
func userIDFromRequest(r *http.Request) (uint64, error) {
	raw := r.Header.Get("X-User-Id")
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	if raw == "" {
		return 0, errors.New("missing user id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("bad user id")
	}
	return id, nil
}

type eventView struct {
	ID        uint64    `json:"id"`
	OrderID   uint64    `json:"orderId"`
	Status    string    `json:"status"`
	StatusRaw string    `json:"statusRaw"`
	EventTime time.Time `json:"eventTime"`
	Location  string    `json:"location,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	orderID, err := strconv.ParseUint(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || orderID == 0 {
		writeError(w, http.StatusBadRequest, "bad orderId")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := a.svc.ListEvents(r.Context(), orderID, limit, offset)
	if err != nil {
		slog.Error("list delivery events failed", "orderId", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]eventView, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventView{
			ID:        e.ID,
			OrderID:   e.OrderID,
			Status:    e.Status,
			StatusRaw: e.StatusRaw,
			EventTime: e.EventTime,
			Location:  derefString(e.Location),
			Message:   derefString(e.Message),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// refreshDelivery сбрасывает next_check_at заказа: воркер заберёт его в
// ближайшем цикле вместо планового.
func (a *API) refreshDelivery(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	orderID, err := strconv.ParseUint(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || orderID == 0 {
		writeError(w, http.StatusBadRequest, "bad orderId")
		return
	}

	if err := a.svc.RefreshDelivery(r.Context(), orderID); err != nil {
		slog.Error("refresh delivery failed", "orderId", orderID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) naverClientIDHandler(w http.ResponseWriter, r *http.Request) {
	noStore(w)
	writeJSON(w, http.StatusOK, map[string]string{"clientId": a.naverClientID})
}

// directionsHandler — прокси к Naver Directions. Секрет остаётся на сервере,
// браузер видит только готовый маршрут. Сбои апстрима не превращаются в 5xx:
// FetchRoute уже вернул straight-line фолбэк с причиной.
func (a *API) directionsHandler(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	start, ok1 := pointFromQuery(r, "startLat", "startLng")
	goal, ok2 := pointFromQuery(r, "goalLat", "goalLng")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "startLat, startLng, goalLat, goalLng are required")
		return
	}

	route := a.directions.FetchRoute(r.Context(), start, goal)
	writeJSON(w, http.StatusOK, route)
}

func pointFromQuery(r *http.Request, latKey, lngKey string) (models.RoutePoint, bool) {
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	lng, err2 := strconv.ParseFloat(r.URL.Query().Get(lngKey), 64)
	if err1 != nil || err2 != nil {
		return models.RoutePoint{}, false
	}
	return models.RoutePoint{Lat: lat, Lng: lng}, true
}

func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	v := providers.WebhookVerifyInput{
		Signature: r.Header.Get("X-Signature"),
		RawBody:   body,
	}

	err = a.svc.HandleWebhook(r.Context(), providerName, body, v)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, delivery.ErrInvalidWebhookSignature):
		writeError(w, http.StatusUnauthorized, "invalid signature")
	default:
		slog.Error("webhook handling failed", "provider", providerName, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
