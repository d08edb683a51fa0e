package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"stockout-engine/internal/core"
	"stockout-engine/internal/db"
	"stockout-engine/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, *postgres.Store, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../../.env")

	// Use a dedicated TEST database; every test truncates it.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	require.NoError(t, db.Migrate(dbURL, "../../../migrations", nil))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE stock_movements, outbound_line_serials, outbound_allocations, outbound_lines,
		               outbound_requests, outbound_sequences, serial_units, warehouse_balances,
		               items, warehouses CASCADE;

		INSERT INTO warehouses (id, name) VALUES
		('WH-A', 'Warehouse A'),
		('WH-B', 'Warehouse B'),
		('WH-C', 'Warehouse C');

		INSERT INTO items (id, name, unit, tracks_serial) VALUES
		('CABLE', 'Fiber cable', 'm', false),
		('ONT', 'Optical network terminal', 'pcs', true);

		INSERT INTO warehouse_balances (item_id, warehouse_id, quantity_on_hand) VALUES
		('CABLE', 'WH-A', 5),
		('CABLE', 'WH-B', 3),
		('CABLE', 'WH-C', 2),
		('ONT', 'WH-A', 2),
		('ONT', 'WH-B', 1);

		INSERT INTO serial_units (id, item_id, warehouse_id, code) VALUES
		('SU-1', 'ONT', 'WH-A', 'ONT-0001'),
		('SU-2', 'ONT', 'WH-A', 'ONT-0002'),
		('SU-3', 'ONT', 'WH-B', 'ONT-0003');
	`)
	require.NoError(t, err, "failed to seed test database")

	return pool, postgres.NewStore(pool), ctx
}

func onHand(t *testing.T, ctx context.Context, pool *pgxpool.Pool, itemID, warehouseID string) int64 {
	t.Helper()
	var qty int64
	err := pool.QueryRow(ctx, `
		SELECT quantity_on_hand FROM warehouse_balances WHERE item_id = $1 AND warehouse_id = $2
	`, itemID, warehouseID).Scan(&qty)
	require.NoError(t, err)
	return qty
}

func TestPostgres_CommitDrawsLargestFirst(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	coord := core.NewCommitCoordinator(store, core.DefaultRetryPolicy, nil)

	res, err := coord.Commit(ctx, core.OutboundRequest{
		Requester: "site-lead",
		Project:   "P-100",
		Lines: []core.OutboundLine{
			{ItemID: "CABLE", RequestedQuantity: 7, UnitPriceAtIssue: decimal.RequireFromString("12.50")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, core.AllocationPlan{{WarehouseID: "WH-A", Quantity: 5}, {WarehouseID: "WH-B", Quantity: 2}},
		res.Lines[0].AllocationPlan)
	assert.Regexp(t, `^OUT-\d{4}-00001$`, res.Number)

	assert.Equal(t, int64(0), onHand(t, ctx, pool, "CABLE", "WH-A"))
	assert.Equal(t, int64(1), onHand(t, ctx, pool, "CABLE", "WH-B"))
	assert.Equal(t, int64(2), onHand(t, ctx, pool, "CABLE", "WH-C"))

	stored, err := store.Stores().Requests.GetRequest(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateCommitted, stored.State)
	require.Len(t, stored.Lines, 1)
	assert.True(t, stored.Lines[0].UnitPriceAtIssue.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, res.Lines[0].AllocationPlan, stored.Lines[0].AllocationPlan)

	var movements int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_movements WHERE request_id = $1 AND movement_type = 'ISSUE'`, res.ID).Scan(&movements))
	assert.Equal(t, 2, movements)
}

func TestPostgres_EditRestoresThenRedraws(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	coord := core.NewCommitCoordinator(store, core.DefaultRetryPolicy, nil)

	first, err := coord.Commit(ctx, core.OutboundRequest{
		Lines: []core.OutboundLine{{ItemID: "CABLE", RequestedQuantity: 4}},
	})
	require.NoError(t, err)

	edit := first.OutboundRequest
	edit.Lines[0].RequestedQuantity = 8
	second, err := coord.Commit(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)

	total := onHand(t, ctx, pool, "CABLE", "WH-A") +
		onHand(t, ctx, pool, "CABLE", "WH-B") +
		onHand(t, ctx, pool, "CABLE", "WH-C")
	assert.Equal(t, int64(2), total)

	var retired int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbound_lines WHERE request_id = $1 AND retired_at IS NOT NULL`, first.ID).Scan(&retired))
	assert.Equal(t, 1, retired)
}

func TestPostgres_DecrementNeverGoesNegative(t *testing.T) {
	pool, store, ctx := setupTestDB(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx core.Stores) error {
		return tx.Balances.Decrement(ctx, "CABLE", "WH-C", 3)
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)
	assert.Equal(t, int64(2), onHand(t, ctx, pool, "CABLE", "WH-C"))
}

func TestPostgres_SerialIssueAndVoid(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	coord := core.NewCommitCoordinator(store, core.DefaultRetryPolicy, nil)
	reservation := core.NewSerialReservation(store, time.Minute)

	plan, err := core.PlanLine(ctx, store.Stores().Balances, "ONT", 2)
	require.NoError(t, err)
	line := core.OutboundLine{ItemID: "ONT", RequestedQuantity: 2, AllocationPlan: plan}

	_, err = reservation.Reserve(ctx, line, []string{"SU-1", "SU-2"}, "draft-1")
	require.NoError(t, err)

	res, err := coord.Commit(ctx, core.OutboundRequest{
		HoldToken: "draft-1",
		Lines:     []core.OutboundLine{{ItemID: "ONT", RequestedQuantity: 2, SerialUnitIDs: []string{"SU-1", "SU-2"}}},
	})
	require.NoError(t, err)

	units, err := store.Stores().Serials.GetUnits(ctx, []string{"SU-1", "SU-2"})
	require.NoError(t, err)
	for _, u := range units {
		assert.Equal(t, core.SerialIssued, u.Status)
		assert.Empty(t, u.HeldBy)
	}

	require.NoError(t, coord.Void(ctx, res.ID))
	assert.Equal(t, int64(2), onHand(t, ctx, pool, "ONT", "WH-A"))
	units, err = store.Stores().Serials.GetUnits(ctx, []string{"SU-1", "SU-2"})
	require.NoError(t, err)
	for _, u := range units {
		assert.Equal(t, core.SerialAvailable, u.Status)
	}
	assert.ErrorIs(t, coord.Void(ctx, res.ID), core.ErrRequestVoided)
}

func TestPostgres_HoldExpiryUsesCallerClock(t *testing.T) {
	_, store, ctx := setupTestDB(t)
	serials := store.Stores().Serials
	now := time.Now()

	require.NoError(t, serials.Hold(ctx, "SU-1", "draft-1", now, now.Add(time.Hour)))
	require.ErrorIs(t, serials.Hold(ctx, "SU-1", "draft-2", now, now.Add(time.Hour)), core.ErrSerialNotAvailable)

	units, err := serials.ListAvailable(ctx, "ONT", []string{"WH-A"}, now)
	require.NoError(t, err)
	assert.Len(t, units, 1)

	later := now.Add(2 * time.Hour)
	units, err = serials.ListAvailable(ctx, "ONT", []string{"WH-A"}, later)
	require.NoError(t, err)
	assert.Len(t, units, 2)
	require.NoError(t, serials.Hold(ctx, "SU-1", "draft-2", later, later.Add(time.Hour)))
	require.NoError(t, serials.Hold(ctx, "SU-2", "draft-2", later, later.Add(time.Hour)))

	n, err := serials.ReleaseUnits(ctx, "draft-2", []string{"SU-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := serials.GetUnits(ctx, []string{"SU-1", "SU-2"})
	require.NoError(t, err)
	for _, u := range got {
		if u.ID == "SU-1" {
			assert.Equal(t, "draft-2", u.HeldBy)
		} else {
			assert.Equal(t, core.SerialAvailable, u.Status)
		}
	}
}

func TestPostgres_ConcurrentCommitsNeverOversell(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	coord := core.NewCommitCoordinator(store, core.RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Commit(ctx, core.OutboundRequest{
				Lines: []core.OutboundLine{{ItemID: "CABLE", RequestedQuantity: 4}},
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, core.ErrInsufficientStock) || errors.Is(err, core.ErrQuantityExceedsAvailable), err)
		}()
	}
	wg.Wait()

	total := onHand(t, ctx, pool, "CABLE", "WH-A") +
		onHand(t, ctx, pool, "CABLE", "WH-B") +
		onHand(t, ctx, pool, "CABLE", "WH-C")
	assert.Equal(t, int64(10-4*committed), total)
	assert.GreaterOrEqual(t, total, int64(0))
	assert.LessOrEqual(t, committed, 2)
}

func TestPostgres_AuditAfterCommitEditVoid(t *testing.T) {
	pool, store, ctx := setupTestDB(t)
	coord := core.NewCommitCoordinator(store, core.DefaultRetryPolicy, nil)

	first, err := coord.Commit(ctx, core.OutboundRequest{
		Lines: []core.OutboundLine{
			{ItemID: "CABLE", RequestedQuantity: 6},
			{ItemID: "ONT", RequestedQuantity: 1, SerialUnitIDs: []string{"SU-1"}},
		},
	})
	require.NoError(t, err)

	edit := first.OutboundRequest
	edit.Lines[0].RequestedQuantity = 9
	edit.Lines = edit.Lines[:1]
	_, err = coord.Commit(ctx, edit)
	require.NoError(t, err)

	findings, err := store.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)

	require.NoError(t, coord.Void(ctx, first.ID))
	findings, err = store.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)

	_, err = pool.Exec(ctx, `UPDATE warehouse_balances SET quantity_on_hand = 5 WHERE item_id = 'ONT' AND warehouse_id = 'WH-A'`)
	require.NoError(t, err)
	findings, err = store.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "serial_count", findings[0].Check)
}
