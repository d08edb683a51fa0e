package core_test

import (
	"context"
	"slices"
	"testing"

	"stockout-engine/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cableBalances() []core.WarehouseBalance {
	return []core.WarehouseBalance{
		{ItemID: "CABLE", WarehouseID: "WH-C", QuantityOnHand: 2},
		{ItemID: "CABLE", WarehouseID: "WH-A", QuantityOnHand: 5},
		{ItemID: "CABLE", WarehouseID: "WH-B", QuantityOnHand: 3},
	}
}

func TestPlanAllocation_LargestBalanceFirst(t *testing.T) {
	plan, err := core.PlanAllocation("CABLE", 7, cableBalances())
	require.NoError(t, err)
	assert.Equal(t, core.AllocationPlan{
		{WarehouseID: "WH-A", Quantity: 5},
		{WarehouseID: "WH-B", Quantity: 2},
	}, plan)
	assert.Equal(t, int64(7), plan.Total())
}

func TestPlanAllocation_ExactTotalDrainsEveryWarehouse(t *testing.T) {
	plan, err := core.PlanAllocation("CABLE", 10, cableBalances())
	require.NoError(t, err)
	assert.Equal(t, core.AllocationPlan{
		{WarehouseID: "WH-A", Quantity: 5},
		{WarehouseID: "WH-B", Quantity: 3},
		{WarehouseID: "WH-C", Quantity: 2},
	}, plan)
}

func TestPlanAllocation_InsufficientReturnsNoPlan(t *testing.T) {
	plan, err := core.PlanAllocation("CABLE", 11, cableBalances())
	require.ErrorIs(t, err, core.ErrInsufficientStock)
	assert.Nil(t, plan)
}

func TestPlanAllocation_RejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int64{0, -3} {
		_, err := core.PlanAllocation("CABLE", qty, cableBalances())
		assert.ErrorIs(t, err, core.ErrInvalidQuantity)
	}
}

func TestPlanAllocation_TiesBrokenByWarehouseID(t *testing.T) {
	balances := []core.WarehouseBalance{
		{ItemID: "CABLE", WarehouseID: "WH-Z", QuantityOnHand: 4},
		{ItemID: "CABLE", WarehouseID: "WH-M", QuantityOnHand: 4},
	}
	plan, err := core.PlanAllocation("CABLE", 5, balances)
	require.NoError(t, err)
	assert.Equal(t, core.AllocationPlan{
		{WarehouseID: "WH-M", Quantity: 4},
		{WarehouseID: "WH-Z", Quantity: 1},
	}, plan)
}

func TestPlanAllocation_DeterministicAndPure(t *testing.T) {
	balances := cableBalances()
	before := slices.Clone(balances)

	first, err := core.PlanAllocation("CABLE", 6, balances)
	require.NoError(t, err)
	for range 20 {
		again, err := core.PlanAllocation("CABLE", 6, balances)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, before, balances)
}

func TestPlanAllocation_IgnoresOtherItemsAndEmptyBalances(t *testing.T) {
	balances := append(cableBalances(),
		core.WarehouseBalance{ItemID: "ONT", WarehouseID: "WH-0", QuantityOnHand: 100},
		core.WarehouseBalance{ItemID: "CABLE", WarehouseID: "WH-0", QuantityOnHand: 0},
	)
	plan, err := core.PlanAllocation("CABLE", 10, balances)
	require.NoError(t, err)
	assert.NotContains(t, plan.WarehouseIDs(), "WH-0")

	for _, d := range plan {
		assert.Positive(t, d.Quantity)
	}
}

func TestPlanLine_RequiresItem(t *testing.T) {
	store := newFixture(t)
	_, err := core.PlanLine(context.Background(), store.Stores().Balances, "", 1)
	assert.ErrorIs(t, err, core.ErrItemNotSelected)

	plan, err := core.PlanLine(context.Background(), store.Stores().Balances, "CABLE", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"WH-A", "WH-B"}, plan.WarehouseIDs())
}
