package pgdelivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/RiderTrack/internal/models"
)

// DeliveryUpdate — результат одного опроса провайдера (или вебхука),
// уже прошедший через маппер статусов. Пустой DeliveryStatus значит
// "статус не менять" — маппер не узнал внешний статус.
type DeliveryUpdate struct {
	OrderID uint64

	CheckedAt time.Time

	DeliveryStatus string
	ExternalStatus string

	RiderLat       *float64
	RiderLng       *float64
	RiderUpdatedAt *time.Time

	TrackingURL string

	NextCheckAt time.Time

	Events []*models.DeliveryEvent

	Error *string
}

func (s *Storage) ListDeliveryEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.DeliveryEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, order_id, status, status_raw,
  event_time, location, message, payload, created_at
FROM delivery_events
WHERE order_id = $1
ORDER BY event_time DESC
LIMIT $2 OFFSET $3
`, orderID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.DeliveryEvent
	for rows.Next() {
		var e models.DeliveryEvent
		var location *string
		var message *string
		var payload any
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Status, &e.StatusRaw,
			&e.EventTime, &location, &message, &payload, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}

		e.Location = location
		e.Message = message

		if payload != nil {
			b, _ := json.Marshal(payload)
			s := string(b)
			e.PayloadJSON = &s
		}

		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyDeliveryUpdate атомарно применяет результат опроса: либо фиксирует
// ошибку и наращивает счётчик фейлов, либо обновляет статус/позицию курьера
// и дописывает события (с дедупликацией по уникальному индексу).
func (s *Storage) ApplyDeliveryUpdate(ctx context.Context, upd DeliveryUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE delivery_orders
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.OrderID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update delivery (error)")
		}
	} else {
		// Пустой новый статус оставляет текущий; DELIVERED назад не откатывается
		// (монотонность гарантирует сервис, NULLIF — страховка от пустых значений).
		_, err := tx.Exec(ctx, `
UPDATE delivery_orders
SET
  delivery_status = COALESCE(NULLIF($3, ''), delivery_status),
  external_delivery_status = COALESCE(NULLIF($4, ''), external_delivery_status),
  rider_lat = COALESCE($5, rider_lat),
  rider_lng = COALESCE($6, rider_lng),
  rider_updated_at = COALESCE($7, rider_updated_at),
  tracking_url = COALESCE(NULLIF($8, ''), tracking_url),
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $9,
  updated_at = now()
WHERE id = $1
`, upd.OrderID, upd.CheckedAt.UTC(),
			upd.DeliveryStatus, upd.ExternalStatus,
			upd.RiderLat, upd.RiderLng, upd.RiderUpdatedAt,
			upd.TrackingURL, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update delivery (ok)")
		}

		for _, e := range upd.Events {
			var payload any
			if e.PayloadJSON != nil && *e.PayloadJSON != "" {
				var m any
				if json.Unmarshal([]byte(*e.PayloadJSON), &m) == nil {
					payload = m
				}
			}

			loc := ""
			if e.Location != nil {
				loc = *e.Location
			}
			msgText := ""
			if e.Message != nil {
				msgText = *e.Message
			}

			_, err := tx.Exec(ctx, `
INSERT INTO delivery_events (
  order_id, status, status_raw, event_time, location, message, payload, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7, now())
ON CONFLICT (order_id, status_raw, event_time, location, message) DO NOTHING
`, upd.OrderID, e.Status, e.StatusRaw, e.EventTime.UTC(), loc, msgText, payload)
			if err != nil {
				return errors.Wrap(err, "insert delivery event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
