// Package memory is an in-process implementation of the core stores. A single mutex
// serializes every operation; WithinTx holds it for the whole transaction and restores
// a snapshot if fn fails.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"stockout-engine/internal/core"
)

type balanceKey struct {
	itemID      string
	warehouseID string
}

type storedRequest struct {
	req   core.OutboundRequest
	state core.RequestState
}

type state struct {
	items      map[string]core.Item
	warehouses map[string]string
	balances   map[balanceKey]int64
	serials    map[string]core.SerialUnit
	requests   map[string]storedRequest
	retired    []core.OutboundLine
	movements  []core.StockMovement
	sequences  map[int]int64
}

func (s *state) clone() *state {
	c := &state{
		items:      maps.Clone(s.items),
		warehouses: maps.Clone(s.warehouses),
		balances:   maps.Clone(s.balances),
		serials:    maps.Clone(s.serials),
		requests:   make(map[string]storedRequest, len(s.requests)),
		retired:    slices.Clone(s.retired),
		movements:  slices.Clone(s.movements),
		sequences:  maps.Clone(s.sequences),
	}
	for id, r := range s.requests {
		c.requests[id] = storedRequest{req: cloneRequest(r.req), state: r.state}
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		items:      map[string]core.Item{},
		warehouses: map[string]string{},
		balances:   map[balanceKey]int64{},
		serials:    map[string]core.SerialUnit{},
		requests:   map[string]storedRequest{},
		sequences:  map[int]int64{},
	}}
}

// ── Seeding and inspection ────────────────────────────────────────────────────

func (s *Store) AddItem(item core.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.items[item.ID] = item
}

func (s *Store) AddWarehouse(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.warehouses[id] = name
}

// SetBalance overwrites the on-hand quantity of an item in a warehouse.
func (s *Store) SetBalance(itemID, warehouseID string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.warehouses[warehouseID]; !ok {
		s.st.warehouses[warehouseID] = warehouseID
	}
	s.st.balances[balanceKey{itemID, warehouseID}] = qty
}

func (s *Store) AddSerialUnit(u core.SerialUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Status == "" {
		u.Status = core.SerialAvailable
	}
	s.st.serials[u.ID] = u
}

// Balance returns the on-hand quantity of an item in a warehouse.
func (s *Store) Balance(itemID, warehouseID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.balances[balanceKey{itemID, warehouseID}]
}

// SerialUnit returns a copy of a stored unit.
func (s *Store) SerialUnit(id string) (core.SerialUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.serials[id]
	return u, ok
}

// Movements returns the stock movement journal in insertion order.
func (s *Store) Movements() []core.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.movements)
}

// RetiredLines returns lines superseded by edits or voids.
func (s *Store) RetiredLines() []core.OutboundLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.retired)
}

// ── UnitOfWork ────────────────────────────────────────────────────────────────

func (s *Store) Stores() core.Stores {
	return views(&view{store: s})
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(ctx, views(&view{store: s, locked: true})); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func views(v *view) core.Stores {
	return core.Stores{Items: v, Balances: v, Serials: v, Requests: v}
}

// view implements every store interface. Outside a transaction each call takes the
// store mutex; inside one the mutex is already held.
type view struct {
	store  *Store
	locked bool
}

func (v *view) lock() func() {
	if v.locked {
		return func() {}
	}
	v.store.mu.Lock()
	return v.store.mu.Unlock
}

// ── ItemCatalog ───────────────────────────────────────────────────────────────

func (v *view) GetItem(_ context.Context, itemID string) (*core.Item, error) {
	defer v.lock()()
	item, ok := v.store.st.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrItemNotFound, itemID)
	}
	return &item, nil
}

// ── BalanceStore ──────────────────────────────────────────────────────────────

func (v *view) ListBalances(_ context.Context, itemID string) ([]core.WarehouseBalance, error) {
	defer v.lock()()
	var out []core.WarehouseBalance
	for k, qty := range v.store.st.balances {
		if k.itemID != itemID {
			continue
		}
		out = append(out, core.WarehouseBalance{
			ItemID:         itemID,
			WarehouseID:    k.warehouseID,
			WarehouseName:  v.store.st.warehouses[k.warehouseID],
			QuantityOnHand: qty,
		})
	}
	slices.SortFunc(out, func(a, b core.WarehouseBalance) int {
		switch {
		case a.WarehouseID < b.WarehouseID:
			return -1
		case a.WarehouseID > b.WarehouseID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (v *view) Decrement(_ context.Context, itemID, warehouseID string, qty int64) error {
	defer v.lock()()
	if qty <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", qty)
	}
	k := balanceKey{itemID, warehouseID}
	onHand := v.store.st.balances[k]
	if onHand < qty {
		return fmt.Errorf("%w: item %s in warehouse %s has %d, need %d",
			core.ErrInsufficientStock, itemID, warehouseID, onHand, qty)
	}
	v.store.st.balances[k] = onHand - qty
	return nil
}

func (v *view) Increment(_ context.Context, itemID, warehouseID string, qty int64) error {
	defer v.lock()()
	if qty <= 0 {
		return fmt.Errorf("increment quantity must be positive, got %d", qty)
	}
	v.store.st.balances[balanceKey{itemID, warehouseID}] += qty
	return nil
}

// ── SerialUnitStore ───────────────────────────────────────────────────────────

func (v *view) ListAvailable(_ context.Context, itemID string, warehouseIDs []string, now time.Time) ([]core.SerialUnit, error) {
	defer v.lock()()
	var out []core.SerialUnit
	for _, u := range v.store.st.serials {
		if u.ItemID != itemID {
			continue
		}
		if len(warehouseIDs) > 0 && !slices.Contains(warehouseIDs, u.WarehouseID) {
			continue
		}
		if u.Status == core.SerialAvailable || u.HoldExpired(now) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b core.SerialUnit) int {
		switch {
		case a.Code < b.Code:
			return -1
		case a.Code > b.Code:
			return 1
		}
		return 0
	})
	return out, nil
}

func (v *view) GetUnits(_ context.Context, unitIDs []string) ([]core.SerialUnit, error) {
	defer v.lock()()
	out := make([]core.SerialUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, ok := v.store.st.serials[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrSerialNotFound, id)
		}
		out = append(out, u)
	}
	return out, nil
}

func (v *view) SetStatus(_ context.Context, unitID string, status core.SerialStatus) error {
	defer v.lock()()
	u, ok := v.store.st.serials[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSerialNotFound, unitID)
	}
	u.Status = status
	u.HeldBy = ""
	u.HeldUntil = nil
	v.store.st.serials[unitID] = u
	return nil
}

func (v *view) Hold(_ context.Context, unitID, holder string, now, until time.Time) error {
	defer v.lock()()
	u, ok := v.store.st.serials[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSerialNotFound, unitID)
	}
	if !u.ClaimableBy(holder, now) {
		return fmt.Errorf("%w: unit %s is %s", core.ErrSerialNotAvailable, u.Code, u.Status)
	}
	u.Status = core.SerialReserved
	u.HeldBy = holder
	u.HeldUntil = &until
	v.store.st.serials[unitID] = u
	return nil
}

func (v *view) ReleaseHolds(_ context.Context, holder string) (int, error) {
	defer v.lock()()
	return v.releaseWhere(func(u core.SerialUnit) bool { return u.HeldBy == holder }), nil
}

func (v *view) ReleaseUnits(_ context.Context, holder string, unitIDs []string) (int, error) {
	defer v.lock()()
	return v.releaseWhere(func(u core.SerialUnit) bool {
		return u.HeldBy == holder && slices.Contains(unitIDs, u.ID)
	}), nil
}

func (v *view) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	defer v.lock()()
	return v.releaseWhere(func(u core.SerialUnit) bool { return u.HoldExpired(now) }), nil
}

func (v *view) releaseWhere(match func(core.SerialUnit) bool) int {
	n := 0
	for id, u := range v.store.st.serials {
		if u.Status != core.SerialReserved || !match(u) {
			continue
		}
		u.Status = core.SerialAvailable
		u.HeldBy = ""
		u.HeldUntil = nil
		v.store.st.serials[id] = u
		n++
	}
	return n
}

// ── RequestStore ──────────────────────────────────────────────────────────────

func (v *view) GetRequest(_ context.Context, requestID string) (*core.OutboundRequest, error) {
	defer v.lock()()
	r, ok := v.store.st.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRequestNotFound, requestID)
	}
	req := cloneRequest(r.req)
	req.State = r.state
	return &req, nil
}

func (v *view) SaveRequest(_ context.Context, req *core.OutboundRequest) error {
	defer v.lock()()
	if req.ID == "" {
		return fmt.Errorf("request id is required")
	}
	if old, ok := v.store.st.requests[req.ID]; ok {
		v.store.st.retired = append(v.store.st.retired, old.req.Lines...)
	}
	v.store.st.requests[req.ID] = storedRequest{req: cloneRequest(*req), state: core.StateCommitted}
	return nil
}

func (v *view) VoidRequest(_ context.Context, requestID string) error {
	defer v.lock()()
	r, ok := v.store.st.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRequestNotFound, requestID)
	}
	v.store.st.retired = append(v.store.st.retired, r.req.Lines...)
	r.req.Lines = nil
	r.state = core.StateVoided
	v.store.st.requests[requestID] = r
	return nil
}

func (v *view) NextNumber(_ context.Context, year int) (string, error) {
	defer v.lock()()
	v.store.st.sequences[year]++
	return fmt.Sprintf("OUT-%d-%05d", year, v.store.st.sequences[year]), nil
}

func (v *view) RecordMovement(_ context.Context, m core.StockMovement) error {
	defer v.lock()()
	v.store.st.movements = append(v.store.st.movements, m)
	return nil
}

func cloneRequest(r core.OutboundRequest) core.OutboundRequest {
	r.Lines = slices.Clone(r.Lines)
	for i := range r.Lines {
		r.Lines[i].AllocationPlan = slices.Clone(r.Lines[i].AllocationPlan)
		r.Lines[i].SerialUnitIDs = slices.Clone(r.Lines[i].SerialUnitIDs)
	}
	return r
}
