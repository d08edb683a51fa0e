package postgres

import (
	"context"
	"errors"
	"fmt"

	"stockout-engine/internal/core"

	"github.com/jackc/pgx/v5"
)

type itemCatalog struct{ *conn }

func (s *itemCatalog) GetItem(ctx context.Context, itemID string) (*core.Item, error) {
	var item core.Item
	err := s.q.QueryRow(ctx, `
		SELECT id, name, unit, tracks_serial
		FROM items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.Name, &item.Unit, &item.TracksSerial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrItemNotFound, itemID)
		}
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	return &item, nil
}

type balanceStore struct{ *conn }

func (s *balanceStore) ListBalances(ctx context.Context, itemID string) ([]core.WarehouseBalance, error) {
	rows, err := s.q.Query(ctx, `
		SELECT wb.item_id, wb.warehouse_id, w.name, wb.quantity_on_hand
		FROM warehouse_balances wb
		JOIN warehouses w ON w.id = wb.warehouse_id
		WHERE wb.item_id = $1
		  AND w.is_active = true
		ORDER BY wb.warehouse_id
	`+s.forUpdate(" FOR UPDATE OF wb"), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var balances []core.WarehouseBalance
	for rows.Next() {
		var b core.WarehouseBalance
		if err := rows.Scan(&b.ItemID, &b.WarehouseID, &b.WarehouseName, &b.QuantityOnHand); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

func (s *balanceStore) Decrement(ctx context.Context, itemID, warehouseID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", qty)
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE warehouse_balances
		SET quantity_on_hand = quantity_on_hand - $3, updated_at = NOW()
		WHERE item_id = $1 AND warehouse_id = $2 AND quantity_on_hand >= $3
	`, itemID, warehouseID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s in warehouse %s cannot supply %d",
			core.ErrInsufficientStock, itemID, warehouseID, qty)
	}
	return nil
}

func (s *balanceStore) Increment(ctx context.Context, itemID, warehouseID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("increment quantity must be positive, got %d", qty)
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO warehouse_balances (item_id, warehouse_id, quantity_on_hand)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id, warehouse_id) DO UPDATE
		SET quantity_on_hand = warehouse_balances.quantity_on_hand + EXCLUDED.quantity_on_hand,
		    updated_at       = NOW()
	`, itemID, warehouseID, qty)
	if err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}
	return nil
}
