package app

import (
	"time"

	"stockout-engine/internal/core"
)

// LineValidationResult is returned by ValidateLine.
type LineValidationResult struct {
	LineIndex int   `json:"line_index"`
	Remaining int64 `json:"remaining"`
}

// RequestResult is returned by ValidateRequest and GetRequest.
type RequestResult struct {
	Request *core.OutboundRequest `json:"request"`
}

// PlanResult is returned by PlanLine.
type PlanResult struct {
	ItemID   string              `json:"item_id"`
	Quantity int64               `json:"quantity"`
	Plan     core.AllocationPlan `json:"plan"`
}

// CommitResult is returned by CommitRequest.
type CommitResult struct {
	Request *core.CommittedRequest `json:"request"`
}

// BalanceListResult is returned by ListBalances.
type BalanceListResult struct {
	ItemID   string                  `json:"item_id"`
	Total    int64                   `json:"total"`
	Balances []core.WarehouseBalance `json:"balances"`
}

// SerialListResult is returned by AvailableSerials.
type SerialListResult struct {
	ItemID    string              `json:"item_id"`
	LineIndex int                 `json:"line_index"`
	Plan      core.AllocationPlan `json:"plan"`
	Units     []core.SerialUnit   `json:"units"`
}

// ReservationResult is returned by ReserveSerials.
type ReservationResult struct {
	HoldToken     string              `json:"hold_token"`
	HeldUntil     time.Time           `json:"held_until"`
	Plan          core.AllocationPlan `json:"plan"`
	SerialUnitIDs []string            `json:"serial_unit_ids"`
}

// ReleaseResult is returned by ReleaseSerials.
type ReleaseResult struct {
	Released int `json:"released"`
}
