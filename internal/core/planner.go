package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// PlanAllocation decides which warehouse balances supply quantity units of itemID.
//
// Candidates are taken largest balance first, ties broken by warehouse ID, and drawn
// greedily until the quantity is covered. The result is all-or-nothing: if the
// candidates run out first, ErrInsufficientStock is returned and no plan. balances is
// never modified; balances of other items and empty balances are ignored.
func PlanAllocation(itemID string, quantity int64, balances []WarehouseBalance) (AllocationPlan, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	candidates := make([]WarehouseBalance, 0, len(balances))
	for _, b := range balances {
		if b.ItemID == itemID && b.QuantityOnHand > 0 {
			candidates = append(candidates, b)
		}
	}
	slices.SortFunc(candidates, func(a, b WarehouseBalance) int {
		if c := cmp.Compare(b.QuantityOnHand, a.QuantityOnHand); c != 0 {
			return c
		}
		return cmp.Compare(a.WarehouseID, b.WarehouseID)
	})

	remaining := quantity
	plan := make(AllocationPlan, 0, len(candidates))
	for _, c := range candidates {
		if remaining == 0 {
			break
		}
		take := min(remaining, c.QuantityOnHand)
		plan = append(plan, Draw{WarehouseID: c.WarehouseID, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, fmt.Errorf("%w: item %s needs %d, on hand %d",
			ErrInsufficientStock, itemID, quantity, quantity-remaining)
	}
	return plan, nil
}

// TotalOnHand sums the on-hand quantity of itemID across balances.
func TotalOnHand(itemID string, balances []WarehouseBalance) int64 {
	var total int64
	for _, b := range balances {
		if b.ItemID == itemID {
			total += b.QuantityOnHand
		}
	}
	return total
}

// balanceBook is a mutable working copy of balances used to plan sibling lines
// against what earlier lines of the same request left behind.
type balanceBook map[string][]WarehouseBalance

func (b balanceBook) load(itemID string, balances []WarehouseBalance) {
	if _, ok := b[itemID]; ok {
		return
	}
	b[itemID] = slices.Clone(balances)
}

// credit adds qty to the item's balance in warehouseID, creating it if needed.
func (b balanceBook) credit(itemID, warehouseID string, qty int64) {
	rows := b[itemID]
	for i := range rows {
		if rows[i].WarehouseID == warehouseID {
			rows[i].QuantityOnHand += qty
			return
		}
	}
	b[itemID] = append(rows, WarehouseBalance{ItemID: itemID, WarehouseID: warehouseID, QuantityOnHand: qty})
}

// take removes a plan's draws from the item's balances.
func (b balanceBook) take(itemID string, plan AllocationPlan) {
	rows := b[itemID]
	for _, d := range plan {
		for i := range rows {
			if rows[i].WarehouseID == d.WarehouseID {
				rows[i].QuantityOnHand -= d.Quantity
				break
			}
		}
	}
}

// requestPlanner plans the lines of one request in order, so each line draws from
// what earlier lines left behind. An edit is credited with what its stored version
// drew, item by item, the first time the item comes up.
type requestPlanner struct {
	reader   BalanceReader
	previous *OutboundRequest
	book     balanceBook
}

func newRequestPlanner(reader BalanceReader, previous *OutboundRequest) *requestPlanner {
	return &requestPlanner{reader: reader, previous: previous, book: balanceBook{}}
}

func (p *requestPlanner) plan(ctx context.Context, itemID string, quantity int64) (AllocationPlan, error) {
	if _, loaded := p.book[itemID]; !loaded {
		balances, err := p.reader.ListBalances(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to list balances for item %s: %w", itemID, err)
		}
		p.book.load(itemID, balances)
		if p.previous != nil {
			for _, prevLine := range p.previous.Lines {
				if prevLine.ItemID != itemID {
					continue
				}
				for _, d := range prevLine.AllocationPlan {
					p.book.credit(itemID, d.WarehouseID, d.Quantity)
				}
			}
		}
	}
	plan, err := PlanAllocation(itemID, quantity, p.book[itemID])
	if err != nil {
		return nil, err
	}
	p.book.take(itemID, plan)
	return plan, nil
}

// PlanLine reads the current balances of itemID and plans quantity against them.
func PlanLine(ctx context.Context, balances BalanceReader, itemID string, quantity int64) (AllocationPlan, error) {
	if itemID == "" {
		return nil, ErrItemNotSelected
	}
	rows, err := balances.ListBalances(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances for item %s: %w", itemID, err)
	}
	return PlanAllocation(itemID, quantity, rows)
}
