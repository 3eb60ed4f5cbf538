package pgrecon

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/parcelbay/reconbox/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultInitialStatus    = models.ShipmentStatusUnknown
	defaultInitialStatusRaw = "UNKNOWN"
)

// ApplyResult — итог проекции статуса на запись отправления.
type ApplyResult struct {
	// Changed — статус и/или история реально изменились.
	Changed bool
	// Terminal — отправление в терминальном состоянии (доставлено).
	Terminal bool
}

const shipmentColumns = `
  id, shipment_ref, order_ref,
  status, status_raw,
  last_synced_at, delivered, delivered_at, active,
  created_at, updated_at
`

func (s *Storage) CreateShipments(ctx context.Context, items []models.ShipmentCreateInput) ([]*models.Shipment, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		var id uint64
		err := tx.QueryRow(ctx, `
INSERT INTO shipments (
  shipment_ref, order_ref, status, status_raw, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$5)
ON CONFLICT (shipment_ref)
DO UPDATE SET updated_at = shipments.updated_at
RETURNING id
`, it.ShipmentRef, it.OrderRef, defaultInitialStatus, defaultInitialStatusRaw, now).Scan(&id)
		if err != nil {
			return nil, errors.Wrap(err, "insert shipment")
		}
		ids = append(ids, id)

		_, err = tx.Exec(ctx, `
INSERT INTO order_projections (order_ref, shipment_status, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (order_ref) DO NOTHING
`, it.OrderRef, defaultInitialStatus, now)
		if err != nil {
			return nil, errors.Wrap(err, "insert order projection")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetShipmentsByIDs(ctx, ids)
}

func (s *Storage) GetShipmentsByIDs(ctx context.Context, ids []uint64) ([]*models.Shipment, error) {
	if len(ids) == 0 {
		return []*models.Shipment{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE id = ANY($1)
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, len(ids))
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE shipment_ref = $1
`, shipmentRef)
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, models.ErrNotFound
	}
	return scanShipment(rows)
}

// ListActiveShipments отдаёт отправления, подлежащие синку: давно не
// проверявшиеся — первыми.
func (s *Storage) ListActiveShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 10_000 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE active
ORDER BY last_synced_at ASC NULLS FIRST
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select active shipments")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.ShipmentEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, status, status_raw, location, occurred_at, recorded_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY occurred_at DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.ShipmentEvent
	for rows.Next() {
		var e models.ShipmentEvent
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.Status, &e.StatusRaw,
			&e.Location, &e.OccurredAt, &e.RecordedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetOrderProjection(ctx context.Context, orderRef string) (*models.OrderProjection, error) {
	var p models.OrderProjection
	err := s.db.QueryRow(ctx, `
SELECT order_ref, shipment_status, delivered_at, cancelled_at, updated_at
FROM order_projections
WHERE order_ref = $1
`, orderRef).Scan(&p.OrderRef, &p.ShipmentStatus, &p.DeliveredAt, &p.CancelledAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order projection")
	}
	return &p, nil
}

// ApplyStatus проецирует канонический статус на отправление и его заказ.
// Запись и проекция меняются в одной транзакции: либо обе, либо ни одной.
// Строка блокируется FOR UPDATE, так что два конкурирующих синка по одному
// shipmentRef сериализуются.
func (s *Storage) ApplyStatus(ctx context.Context, shipmentRef string, ext models.ExtractedStatus, canonical string) (ApplyResult, error) {
	now := time.Now().UTC()

	// Незнакомый статус ничего не меняет: прежний канонический статус
	// надёжнее догадок.
	if canonical == models.ShipmentStatusUnknown {
		sh, err := s.GetShipmentByRef(ctx, shipmentRef)
		if err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Changed: false, Terminal: sh.Delivered}, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sh models.Shipment
	err = tx.QueryRow(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE shipment_ref = $1
FOR UPDATE
`, shipmentRef).Scan(
		&sh.ID, &sh.ShipmentRef, &sh.OrderRef,
		&sh.Status, &sh.StatusRaw,
		&sh.LastSyncedAt, &sh.Delivered, &sh.DeliveredAt, &sh.Active,
		&sh.CreatedAt, &sh.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return ApplyResult{}, models.ErrNotFound
	}
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "select shipment for update")
	}

	// DELIVERED терминален: более поздние (или "откатные") статусы
	// перевозчика игнорируются.
	if sh.Delivered {
		_, err := tx.Exec(ctx, `
UPDATE shipments SET last_synced_at = $2, updated_at = now() WHERE id = $1
`, sh.ID, now)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "touch delivered shipment")
		}
		if err := tx.Commit(ctx); err != nil {
			return ApplyResult{}, errors.Wrap(err, "commit tx")
		}
		return ApplyResult{Changed: false, Terminal: true}, nil
	}

	occurredAt := parseEventTime(ext.OccurredAt, now)

	var appended bool
	if ext.OccurredAt == "" {
		// Перевозчик не дал отметку времени — дедуп по occurred_at
		// невозможен (fallback на время синка уникален в каждом прогоне).
		// Новизну определяем по паре (status_raw, location).
		var exists bool
		err = tx.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM shipment_events
  WHERE shipment_id = $1 AND status_raw = $2 AND location = $3
)
`, sh.ID, ext.RawStatus, ext.Location).Scan(&exists)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "check event exists")
		}
		if !exists {
			_, err = tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, status, status_raw, location, occurred_at, recorded_at
)
VALUES ($1,$2,$3,$4,$5,$6)
`, sh.ID, canonical, ext.RawStatus, ext.Location, occurredAt, now)
			if err != nil {
				return ApplyResult{}, errors.Wrap(err, "insert shipment event")
			}
			appended = true
		}
	} else {
		// Уникальный индекс по (shipment_id, status_raw, occurred_at, location)
		// и есть проверка "ничего нового": дубликат не вставится.
		ct, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, status, status_raw, location, occurred_at, recorded_at
)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (shipment_id, status_raw, occurred_at, location) DO NOTHING
`, sh.ID, canonical, ext.RawStatus, ext.Location, occurredAt, now)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "insert shipment event")
		}
		appended = ct.RowsAffected() > 0
	}

	changed := sh.Status != canonical || appended
	delivered := models.ShipmentStatusTerminal(canonical)

	if changed {
		_, err = tx.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  status_raw = $3,
  last_synced_at = $4,
  delivered = delivered OR $5,
  delivered_at = CASE WHEN $5 AND delivered_at IS NULL THEN $6 ELSE delivered_at END,
  active = active AND NOT $5,
  updated_at = now()
WHERE id = $1
`, sh.ID, canonical, ext.RawStatus, now, delivered, occurredAt)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "update shipment")
		}

		_, err = tx.Exec(ctx, `
UPDATE order_projections
SET
  shipment_status = $2,
  delivered_at = CASE WHEN $3 AND delivered_at IS NULL THEN $4 ELSE delivered_at END,
  cancelled_at = CASE WHEN $5 AND cancelled_at IS NULL THEN $4 ELSE cancelled_at END,
  updated_at = now()
WHERE order_ref = $1
`, sh.OrderRef, canonical, delivered, occurredAt, canonical == models.ShipmentStatusCancelled)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "update order projection")
		}
	} else {
		_, err = tx.Exec(ctx, `
UPDATE shipments SET last_synced_at = $2, updated_at = now() WHERE id = $1
`, sh.ID, now)
		if err != nil {
			return ApplyResult{}, errors.Wrap(err, "touch shipment")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, errors.Wrap(err, "commit tx")
	}
	return ApplyResult{Changed: changed, Terminal: delivered}, nil
}

// parseEventTime разбирает строку времени перевозчика.
// Форматы гуляют; что не разобрали — считаем временем синка.
func parseEventTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "02-01-2006 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t
		}
	}
	return fallback
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.ShipmentRef, &sh.OrderRef,
		&sh.Status, &sh.StatusRaw,
		&sh.LastSyncedAt, &sh.Delivered, &sh.DeliveredAt, &sh.Active,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}
	return &sh, nil
}
