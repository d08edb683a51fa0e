package core

import (
	"context"
	"time"
)

// BalanceReader is the read side of a BalanceStore.
// It is all the validator and planner need, so a cache can stand in for the store.
type BalanceReader interface {
	ListBalances(ctx context.Context, itemID string) ([]WarehouseBalance, error)
}

// BalanceStore holds per-(item, warehouse) on-hand quantities.
// Decrement fails with ErrInsufficientStock instead of going negative.
type BalanceStore interface {
	BalanceReader
	Decrement(ctx context.Context, itemID, warehouseID string, qty int64) error
	Increment(ctx context.Context, itemID, warehouseID string, qty int64) error
}

// SerialUnitStore holds serial-tracked units and their status.
type SerialUnitStore interface {
	// ListAvailable returns units of itemID in the given warehouses that are available
	// or whose hold lapsed before now. An empty warehouseIDs means every warehouse.
	ListAvailable(ctx context.Context, itemID string, warehouseIDs []string, now time.Time) ([]SerialUnit, error)
	// GetUnits returns the requested units; unknown IDs fail with ErrSerialNotFound.
	GetUnits(ctx context.Context, unitIDs []string) ([]SerialUnit, error)
	// SetStatus moves a unit to status and clears any hold.
	SetStatus(ctx context.Context, unitID string, status SerialStatus) error
	// Hold reserves a unit claimable by holder at now until the given time.
	// It fails with ErrSerialNotAvailable if the unit is issued or held by someone else.
	Hold(ctx context.Context, unitID, holder string, now, until time.Time) error
	// ReleaseHolds returns every unit reserved by holder to available.
	ReleaseHolds(ctx context.Context, holder string) (int, error)
	// ReleaseUnits returns the listed units reserved by holder to available. Units that
	// are issued or held by someone else are left alone.
	ReleaseUnits(ctx context.Context, holder string, unitIDs []string) (int, error)
	// ReleaseExpired returns every unit whose hold lapsed before now to available.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

// ItemCatalog resolves item master data.
type ItemCatalog interface {
	GetItem(ctx context.Context, itemID string) (*Item, error)
}

// RequestStore persists outbound request headers, lines and their realized allocations.
type RequestStore interface {
	// GetRequest returns the active version of a committed request. Inside a transaction
	// the header row is locked until the transaction ends.
	GetRequest(ctx context.Context, requestID string) (*OutboundRequest, error)
	// SaveRequest inserts a new request or supersedes an existing one: old lines are
	// retired and the request's lines are inserted as new rows.
	SaveRequest(ctx context.Context, req *OutboundRequest) error
	// VoidRequest retires every line of the request and marks it voided.
	VoidRequest(ctx context.Context, requestID string) error
	// NextNumber allocates the next gapless request number for the given year.
	NextNumber(ctx context.Context, year int) (string, error)
	// RecordMovement appends to the stock movement journal.
	RecordMovement(ctx context.Context, m StockMovement) error
}

// Stores groups the collaborators bound to one connection or transaction.
type Stores struct {
	Items    ItemCatalog
	Balances BalanceStore
	Serials  SerialUnitStore
	Requests RequestStore
}

// UnitOfWork gives access to stores outside a transaction and runs fn inside one.
// Everything fn writes through tx lands together or not at all.
type UnitOfWork interface {
	Stores() Stores
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
