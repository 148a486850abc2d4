package pgdelivery

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS delivery_orders (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL,
  order_status TEXT NOT NULL,
  delivery_status TEXT NOT NULL,
  shipping_address TEXT NOT NULL DEFAULT '',
  shipping_lat DOUBLE PRECISION NULL,
  shipping_lng DOUBLE PRECISION NULL,
  rider_lat DOUBLE PRECISION NULL,
  rider_lng DOUBLE PRECISION NULL,
  rider_updated_at TIMESTAMPTZ NULL,
  delivery_provider TEXT NOT NULL DEFAULT '',
  courier_code TEXT NOT NULL DEFAULT '',
  tracking_number TEXT NOT NULL DEFAULT '',
  tracking_url TEXT NOT NULL DEFAULT '',
  external_delivery_id TEXT NOT NULL DEFAULT '',
  external_delivery_status TEXT NOT NULL DEFAULT '',
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_orders_next_check_at ON delivery_orders(next_check_at)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_orders_user_created ON delivery_orders(user_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS delivery_events (
  id BIGSERIAL PRIMARY KEY,
  order_id BIGINT NOT NULL REFERENCES delivery_orders(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  payload JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_events_order_id_event_time ON delivery_events(order_id, event_time DESC)`,
		// Повторный снапшот не плодит дубли событий.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_delivery_events_dedup ON delivery_events(order_id, status_raw, event_time, location, message)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
