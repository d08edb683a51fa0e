// Package seed holds the demo dataset used by cmd/seed and by the in-memory store
// when no database is configured.
package seed

import (
	"context"
	"fmt"

	"stockout-engine/internal/core"
	"stockout-engine/internal/store/memory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Warehouse struct {
	ID   string
	Name string
}

type Balance struct {
	ItemID      string
	WarehouseID string
	Quantity    int64
}

// Dataset is a consistent set of master data: every serial-tracked balance equals the
// number of units placed in that warehouse.
type Dataset struct {
	Warehouses []Warehouse
	Items      []core.Item
	Balances   []Balance
	Serials    []core.SerialUnit
}

// Demo returns the demo dataset.
func Demo() Dataset {
	d := Dataset{
		Warehouses: []Warehouse{
			{ID: "WH-MAIN", Name: "Main Warehouse"},
			{ID: "WH-NORTH", Name: "North Depot"},
			{ID: "WH-SITE", Name: "Site Container"},
		},
		Items: []core.Item{
			{ID: "CABLE-FO-12", Name: "Fiber optic cable 12 core", Unit: "m"},
			{ID: "CONN-SC", Name: "SC connector", Unit: "pcs"},
			{ID: "ONT-HG8245", Name: "Optical network terminal", Unit: "pcs", TracksSerial: true},
			{ID: "RTR-AX3000", Name: "Wi-Fi router", Unit: "pcs", TracksSerial: true},
		},
		Balances: []Balance{
			{ItemID: "CABLE-FO-12", WarehouseID: "WH-MAIN", Quantity: 500},
			{ItemID: "CABLE-FO-12", WarehouseID: "WH-NORTH", Quantity: 300},
			{ItemID: "CABLE-FO-12", WarehouseID: "WH-SITE", Quantity: 200},
			{ItemID: "CONN-SC", WarehouseID: "WH-MAIN", Quantity: 120},
			{ItemID: "CONN-SC", WarehouseID: "WH-SITE", Quantity: 40},
		},
	}
	d.addSerials("ONT-HG8245", "ONT", map[string]int{"WH-MAIN": 5, "WH-NORTH": 3})
	d.addSerials("RTR-AX3000", "RTR", map[string]int{"WH-MAIN": 2, "WH-SITE": 2})
	return d
}

func (d *Dataset) addSerials(itemID, prefix string, perWarehouse map[string]int) {
	n := 0
	for _, wh := range d.Warehouses {
		count := perWarehouse[wh.ID]
		if count == 0 {
			continue
		}
		d.Balances = append(d.Balances, Balance{ItemID: itemID, WarehouseID: wh.ID, Quantity: int64(count)})
		for range count {
			n++
			d.Serials = append(d.Serials, core.SerialUnit{
				ID:          fmt.Sprintf("%s-%04d", prefix, n),
				ItemID:      itemID,
				WarehouseID: wh.ID,
				Code:        fmt.Sprintf("SN-%s-%04d", prefix, n),
				Status:      core.SerialAvailable,
			})
		}
	}
}

// LoadMemory copies d into s.
func LoadMemory(s *memory.Store, d Dataset) {
	for _, w := range d.Warehouses {
		s.AddWarehouse(w.ID, w.Name)
	}
	for _, item := range d.Items {
		s.AddItem(item)
	}
	for _, b := range d.Balances {
		s.SetBalance(b.ItemID, b.WarehouseID, b.Quantity)
	}
	for _, u := range d.Serials {
		s.AddSerialUnit(u)
	}
}

// LoadPostgres upserts d in one transaction. Balances and serial units that already
// exist are reset to the dataset's values.
func LoadPostgres(ctx context.Context, pool *pgxpool.Pool, d Dataset) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, w := range d.Warehouses {
		batch.Queue(`
			INSERT INTO warehouses (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = true
		`, w.ID, w.Name)
	}
	for _, item := range d.Items {
		batch.Queue(`
			INSERT INTO items (id, name, unit, tracks_serial) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, unit = EXCLUDED.unit, tracks_serial = EXCLUDED.tracks_serial
		`, item.ID, item.Name, item.Unit, item.TracksSerial)
	}
	for _, b := range d.Balances {
		batch.Queue(`
			INSERT INTO warehouse_balances (item_id, warehouse_id, quantity_on_hand) VALUES ($1, $2, $3)
			ON CONFLICT (item_id, warehouse_id) DO UPDATE
			SET quantity_on_hand = EXCLUDED.quantity_on_hand, updated_at = NOW()
		`, b.ItemID, b.WarehouseID, b.Quantity)
	}
	for _, u := range d.Serials {
		batch.Queue(`
			INSERT INTO serial_units (id, item_id, warehouse_id, code, status) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET warehouse_id = EXCLUDED.warehouse_id, status = EXCLUDED.status,
			    held_by = NULL, held_until = NULL, updated_at = NOW()
		`, u.ID, u.ItemID, u.WarehouseID, u.Code, string(u.Status))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to load seed data: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit seed data: %w", err)
	}
	return nil
}
