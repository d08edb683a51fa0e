package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultSerialHoldTTL bounds how long a reservation made while drafting keeps units
// away from other requests.
const DefaultSerialHoldTTL = 15 * time.Minute

// SerialReservation binds serial-tracked units to a line's allocation plan.
type SerialReservation struct {
	uow     UnitOfWork
	holdTTL time.Duration
	now     func() time.Time
}

func NewSerialReservation(uow UnitOfWork, holdTTL time.Duration) *SerialReservation {
	if holdTTL <= 0 {
		holdTTL = DefaultSerialHoldTTL
	}
	return &SerialReservation{uow: uow, holdTTL: holdTTL, now: time.Now}
}

// WithClock replaces the time source. Used by tests to expire holds.
func (r *SerialReservation) WithClock(now func() time.Time) *SerialReservation {
	r.now = now
	return r
}

// AvailableUnits lists units of itemID that can serve plan: available (or with an
// expired hold), located in a warehouse the plan draws from, and at most as many per
// warehouse as the plan draws there. Units come back in plan order, then by code.
func (r *SerialReservation) AvailableUnits(ctx context.Context, itemID string, plan AllocationPlan) ([]SerialUnit, error) {
	if len(plan) == 0 {
		return nil, nil
	}
	units, err := r.uow.Stores().Serials.ListAvailable(ctx, itemID, plan.WarehouseIDs(), r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list available serial units for item %s: %w", itemID, err)
	}

	byWarehouse := make(map[string][]SerialUnit, len(plan))
	for _, u := range units {
		if u.ItemID != itemID {
			continue
		}
		byWarehouse[u.WarehouseID] = append(byWarehouse[u.WarehouseID], u)
	}

	var out []SerialUnit
	for _, d := range plan {
		group := byWarehouse[d.WarehouseID]
		slices.SortFunc(group, func(a, b SerialUnit) int { return cmp.Compare(a.Code, b.Code) })
		if int64(len(group)) > d.Quantity {
			group = group[:d.Quantity]
		}
		out = append(out, group...)
	}
	return out, nil
}

// Reserve holds chosen units for holder until the hold TTL lapses. The line must
// already carry its allocation plan. Nothing is held unless every unit qualifies.
// It returns the time the hold expires.
func (r *SerialReservation) Reserve(ctx context.Context, line OutboundLine, chosen []string, holder string) (time.Time, error) {
	if holder == "" {
		return time.Time{}, errors.New("reservation holder is required")
	}
	ids, err := checkSerialCount(line, chosen)
	if err != nil {
		return time.Time{}, err
	}

	now := r.now()
	until := now.Add(r.holdTTL)
	err = r.uow.WithinTx(ctx, func(ctx context.Context, tx Stores) error {
		if _, err := tx.Serials.ReleaseExpired(ctx, now); err != nil {
			return fmt.Errorf("failed to release expired serial holds: %w", err)
		}
		units, err := tx.Serials.GetUnits(ctx, ids)
		if err != nil {
			if errors.Is(err, ErrSerialNotFound) {
				return fmt.Errorf("%w: %w", ErrSerialNotAvailable, err)
			}
			return fmt.Errorf("failed to load serial units: %w", err)
		}
		claimable := func(u SerialUnit) bool { return u.ClaimableBy(holder, now) }
		if err := checkSerialUnits(line, units, claimable); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.Serials.Hold(ctx, id, holder, now, until); err != nil {
				return fmt.Errorf("failed to hold serial unit %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Release frees every unit held by holder, for drafts that are abandoned.
func (r *SerialReservation) Release(ctx context.Context, holder string) (int, error) {
	if holder == "" {
		return 0, nil
	}
	n, err := r.uow.Stores().Serials.ReleaseHolds(ctx, holder)
	if err != nil {
		return 0, fmt.Errorf("failed to release serial holds for %s: %w", holder, err)
	}
	return n, nil
}

// ReleaseUnits frees the listed units held by holder and leaves its other holds in
// place, for a draft line whose pick changed.
func (r *SerialReservation) ReleaseUnits(ctx context.Context, holder string, unitIDs []string) (int, error) {
	if holder == "" || len(unitIDs) == 0 {
		return 0, nil
	}
	n, err := r.uow.Stores().Serials.ReleaseUnits(ctx, holder, unitIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to release serial units for %s: %w", holder, err)
	}
	return n, nil
}

// checkSerialCount returns the de-duplicated unit IDs, or ErrSerialCountMismatch if
// they do not match the requested quantity one for one.
func checkSerialCount(line OutboundLine, chosen []string) ([]string, error) {
	seen := make(map[string]bool, len(chosen))
	ids := make([]string, 0, len(chosen))
	for _, id := range chosen {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if int64(len(ids)) != line.RequestedQuantity || len(ids) != len(chosen) {
		return nil, fmt.Errorf("%w: item %s requested %d, got %d serial units",
			ErrSerialCountMismatch, line.ItemID, line.RequestedQuantity, len(chosen))
	}
	return ids, nil
}

// checkSerialUnits verifies that units belong to the line's item, are claimable and
// match the plan warehouse by warehouse.
func checkSerialUnits(line OutboundLine, units []SerialUnit, claimable func(SerialUnit) bool) error {
	if len(line.AllocationPlan) == 0 {
		return fmt.Errorf("%w: item %s has no allocation plan", ErrSerialNotAvailable, line.ItemID)
	}
	perWarehouse := make(map[string]int64, len(line.AllocationPlan))
	for _, u := range units {
		switch {
		case u.ItemID != line.ItemID:
			return fmt.Errorf("%w: unit %s belongs to item %s, not %s", ErrSerialNotAvailable, u.Code, u.ItemID, line.ItemID)
		case !claimable(u):
			return fmt.Errorf("%w: unit %s is %s", ErrSerialNotAvailable, u.Code, u.Status)
		}
		allocated := line.AllocationPlan.QuantityFor(u.WarehouseID)
		if allocated == 0 {
			return fmt.Errorf("%w: unit %s is in warehouse %s, which the plan does not draw from",
				ErrSerialNotAvailable, u.Code, u.WarehouseID)
		}
		perWarehouse[u.WarehouseID]++
		if perWarehouse[u.WarehouseID] > allocated {
			return fmt.Errorf("%w: more units from warehouse %s than the %d allocated there",
				ErrSerialNotAvailable, u.WarehouseID, allocated)
		}
	}
	return nil
}
