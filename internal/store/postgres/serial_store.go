package postgres

import (
	"context"
	"fmt"
	"time"

	"stockout-engine/internal/core"

	"github.com/jackc/pgx/v5"
)

type serialStore struct{ *conn }

const serialColumns = `id, item_id, warehouse_id, code, status, COALESCE(held_by, ''), held_until`

func scanSerialUnits(rows pgx.Rows) ([]core.SerialUnit, error) {
	defer rows.Close()
	var units []core.SerialUnit
	for rows.Next() {
		var u core.SerialUnit
		var status string
		if err := rows.Scan(&u.ID, &u.ItemID, &u.WarehouseID, &u.Code, &status, &u.HeldBy, &u.HeldUntil); err != nil {
			return nil, fmt.Errorf("failed to scan serial unit: %w", err)
		}
		u.Status = core.SerialStatus(status)
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating serial units: %w", err)
	}
	return units, nil
}

func (s *serialStore) ListAvailable(ctx context.Context, itemID string, warehouseIDs []string, now time.Time) ([]core.SerialUnit, error) {
	if warehouseIDs == nil {
		warehouseIDs = []string{}
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+serialColumns+`
		FROM serial_units
		WHERE item_id = $1
		  AND (cardinality($2::text[]) = 0 OR warehouse_id = ANY($2::text[]))
		  AND (status = 'available'
		       OR (status = 'reserved' AND (held_until IS NULL OR held_until <= NOW())))
		ORDER BY code
	`, itemID, warehouseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query available serial units: %w", err)
	}
	return scanSerialUnits(rows)
}

// GetUnits returns units in the order requested. Inside a transaction they stay locked
// until it ends.
func (s *serialStore) GetUnits(ctx context.Context, unitIDs []string) ([]core.SerialUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+serialColumns+`
		FROM serial_units
		WHERE id = ANY($1::text[])
		ORDER BY id
	`+s.forUpdate(" FOR UPDATE"), unitIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query serial units: %w", err)
	}
	found, err := scanSerialUnits(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.SerialUnit, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	units := make([]core.SerialUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrSerialNotFound, id)
		}
		units = append(units, u)
	}
	return units, nil
}

func (s *serialStore) SetStatus(ctx context.Context, unitID string, status core.SerialStatus) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE serial_units
		SET status = $2, held_by = NULL, held_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, unitID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set serial unit %s to %s: %w", unitID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrSerialNotFound, unitID)
	}
	return nil
}

func (s *serialStore) Hold(ctx context.Context, unitID, holder string, now, until time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE serial_units
		SET status = 'reserved', held_by = $2, held_until = $4, updated_at = NOW()
		WHERE id = $1
		  AND (status = 'available'
		       OR (status = 'reserved'
		           AND (held_by = $2 OR held_until IS NULL OR held_until <= $3)))
	`, unitID, holder, now, until)
	if err != nil {
		return fmt.Errorf("failed to hold serial unit %s: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unit %s is issued or held by another request", core.ErrSerialNotAvailable, unitID)
	}
	return nil
}

func (s *serialStore) ReleaseHolds(ctx context.Context, holder string) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE serial_units
		SET status = 'available', held_by = NULL, held_until = NULL, updated_at = NOW()
		WHERE status = 'reserved' AND held_by = $1
	`, holder)
	if err != nil {
		return 0, fmt.Errorf("failed to release serial holds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *serialStore) ReleaseUnits(ctx context.Context, holder string, unitIDs []string) (int, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE serial_units
		SET status = 'available', held_by = NULL, held_until = NULL, updated_at = NOW()
		WHERE status = 'reserved' AND held_by = $1 AND id = ANY($2::text[])
	`, holder, unitIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to release serial units: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *serialStore) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE serial_units
		SET status = 'available', held_by = NULL, held_until = NULL, updated_at = NOW()
		WHERE status = 'reserved' AND (held_until IS NULL OR held_until <= $1)
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired serial holds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
