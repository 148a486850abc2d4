package pgdelivery

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/RiderTrack/internal/models"
)

const orderColumns = `
  id, user_id, order_status, delivery_status,
  shipping_address, shipping_lat, shipping_lng,
  rider_lat, rider_lng, rider_updated_at,
  delivery_provider, courier_code, tracking_number, tracking_url,
  external_delivery_id, external_delivery_status,
  last_checked_at, next_check_at, check_fail_count, last_error,
  created_at, updated_at`

func scanOrder(row pgx.Row) (*models.DeliveryOrder, error) {
	var o models.DeliveryOrder
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderStatus, &o.DeliveryStatus,
		&o.ShippingAddress, &o.ShippingLat, &o.ShippingLng,
		&o.RiderLat, &o.RiderLng, &o.RiderUpdatedAt,
		&o.DeliveryProvider, &o.CourierCode, &o.TrackingNumber, &o.TrackingURL,
		&o.ExternalDeliveryID, &o.ExternalDeliveryStatus,
		&o.LastCheckedAt, &o.NextCheckAt, &o.CheckFailCount, &o.LastError,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Storage) CreateDeliveryOrder(ctx context.Context, in models.DeliveryOrderCreateInput) (*models.DeliveryOrder, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO delivery_orders (
  user_id, order_status, delivery_status,
  shipping_address, shipping_lat, shipping_lng,
  delivery_provider, courier_code, tracking_number, tracking_url,
  external_delivery_id,
  next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
RETURNING `+orderColumns+`
`, in.UserID, models.OrderStatusPaid, models.DeliveryStatusOrderComplete,
		in.ShippingAddress, in.ShippingLat, in.ShippingLng,
		in.DeliveryProvider, in.CourierCode, in.TrackingNumber, in.TrackingURL,
		in.ExternalDeliveryID,
		now, now)

	o, err := scanOrder(row)
	return o, errors.Wrap(err, "insert delivery order")
}

func (s *Storage) GetOrderByID(ctx context.Context, id uint64) (*models.DeliveryOrder, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM delivery_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, errors.Wrap(err, "select delivery order")
}

// GetOrderByExternalID находит заказ по идентификатору во внешней системе.
// Вебхуки несут только его, нашего order_id у провайдера нет.
func (s *Storage) GetOrderByExternalID(ctx context.Context, provider, externalID string) (*models.DeliveryOrder, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
SELECT`+orderColumns+`
FROM delivery_orders
WHERE delivery_provider = $1 AND external_delivery_id = $2
ORDER BY created_at DESC, id DESC
LIMIT 1
`, provider, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, errors.Wrap(err, "select delivery order by external id")
}

// GetActiveDeliveryOrder возвращает самый свежий оплаченный заказ пользователя
// в отслеживаемом статусе. Нет такого — (nil, nil).
func (s *Storage) GetActiveDeliveryOrder(ctx context.Context, userID uint64) (*models.DeliveryOrder, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
SELECT`+orderColumns+`
FROM delivery_orders
WHERE user_id = $1
  AND order_status = $2
  AND delivery_status = ANY($3)
ORDER BY created_at DESC, id DESC
LIMIT 1
`, userID, models.OrderStatusPaid, []string{
		models.DeliveryStatusPreparing,
		models.DeliveryStatusInDelivery,
		models.DeliveryStatusArriving,
		models.DeliveryStatusDelivered,
	}))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, errors.Wrap(err, "select active delivery order")
}

// SetDispatchResult записывает внешние идентификаторы после createDelivery
// у провайдера и переводит заказ в PREPARING.
func (s *Storage) SetDispatchResult(ctx context.Context, orderID uint64, externalID, externalStatus, trackingNumber, trackingURL string) error {
	_, err := s.db.Exec(ctx, `
UPDATE delivery_orders
SET
  delivery_status = $2,
  external_delivery_id = $3,
  external_delivery_status = $4,
  tracking_number = COALESCE(NULLIF($5, ''), tracking_number),
  tracking_url = COALESCE(NULLIF($6, ''), tracking_url),
  updated_at = now()
WHERE id = $1
`, orderID, models.DeliveryStatusPreparing, externalID, externalStatus, trackingNumber, trackingURL)
	return errors.Wrap(err, "set dispatch result")
}

// SetShippingCoords — персист результата гео-бэкофилла. Last-write-wins:
// повторное геокодирование того же адреса идемпотентно.
func (s *Storage) SetShippingCoords(ctx context.Context, orderID uint64, lat, lng float64) error {
	_, err := s.db.Exec(ctx, `
UPDATE delivery_orders
SET shipping_lat = $2, shipping_lng = $3, updated_at = now()
WHERE id = $1
`, orderID, lat, lng)
	return errors.Wrap(err, "set shipping coords")
}

func (s *Storage) RefreshDelivery(ctx context.Context, orderID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE delivery_orders SET next_check_at = now(), updated_at = now() WHERE id = $1`, orderID)
	return errors.Wrap(err, "refresh delivery")
}

// ClaimDueDeliveries выбирает пачку заказов, готовых к опросу провайдера, и
// бронирует их через SELECT ... FOR UPDATE SKIP LOCKED, чтобы параллельные
// воркеры не хватали одни и те же строки.
func (s *Storage) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.DeliveryOrder, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+orderColumns+`
FROM delivery_orders
WHERE next_check_at <= $1
  AND order_status = $2
  AND delivery_status <> $3
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.OrderStatusPaid, models.DeliveryStatusDelivered, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due deliveries")
	}
	defer rows.Close()

	var picked []*models.DeliveryOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due delivery")
		}
		picked = append(picked, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, o := range picked {
		_, err := tx.Exec(ctx, `UPDATE delivery_orders SET next_check_at = $2, updated_at = now() WHERE id = $1`, o.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease delivery")
		}
		o.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
