package pgrecon

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  shipment_ref TEXT NOT NULL,
  order_ref TEXT NOT NULL,
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  last_synced_at TIMESTAMPTZ NULL,
  delivered BOOLEAN NOT NULL DEFAULT FALSE,
  delivered_at TIMESTAMPTZ NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (shipment_ref)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_active ON shipments(active) WHERE active`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  status_raw TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  occurred_at TIMESTAMPTZ NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_shipment_id_occurred_at ON shipment_events(shipment_id, occurred_at DESC)`,
		// Дедупликация истории: повторный прогон синка не плодит записи.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipment_events_dedup ON shipment_events(shipment_id, status_raw, occurred_at, location)`,
		`
CREATE TABLE IF NOT EXISTS order_projections (
  order_ref TEXT PRIMARY KEY,
  shipment_status TEXT NOT NULL,
  delivered_at TIMESTAMPTZ NULL,
  cancelled_at TIMESTAMPTZ NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS wallets (
  user_id BIGINT PRIMARY KEY,
  balance NUMERIC(14,2) NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS transactions (
  id BIGSERIAL PRIMARY KEY,
  transaction_id TEXT NOT NULL,
  gateway_order_ref TEXT NOT NULL,
  user_id BIGINT NOT NULL,
  amount NUMERIC(14,2) NOT NULL,
  status TEXT NOT NULL,
  payment_status_raw TEXT NOT NULL DEFAULT '',
  payment_method TEXT NOT NULL DEFAULT '',
  bank_ref_no TEXT NOT NULL DEFAULT '',
  error_message TEXT NULL,
  opening_balance NUMERIC(14,2) NULL,
  closing_balance NUMERIC(14,2) NULL,
  created_at TIMESTAMPTZ NOT NULL,
  settled_at TIMESTAMPTZ NULL,
  UNIQUE (transaction_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status) WHERE status = 'PENDING'`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
