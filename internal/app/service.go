package app

import (
	"context"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from the allocation engine. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// ValidateLine checks one line of a draft against on-hand stock and its sibling lines.
	// It returns the quantity the line may still request; a failing line is reported as
	// a *core.LineError.
	ValidateLine(ctx context.Context, req ValidateLineRequest) (*LineValidationResult, error)

	// ValidateRequest validates every line of a draft and returns it with allocation plans
	// attached, without writing anything.
	ValidateRequest(ctx context.Context, req SubmitRequest) (*RequestResult, error)

	// PlanLine shows which warehouses would supply quantity units of an item right now.
	PlanLine(ctx context.Context, itemID string, quantity int64) (*PlanResult, error)

	// CommitRequest validates and commits a new request, or an edit when req.ID is set.
	CommitRequest(ctx context.Context, req SubmitRequest) (*CommitResult, error)

	// VoidRequest restores the full allocation of a committed request.
	VoidRequest(ctx context.Context, requestID string) error

	// GetRequest returns the active version of a committed request.
	GetRequest(ctx context.Context, requestID string) (*RequestResult, error)

	// ListBalances returns per-warehouse on-hand quantities of an item.
	ListBalances(ctx context.Context, itemID string) (*BalanceListResult, error)

	// AvailableSerials lists the serial units that can serve a line of a draft, planned
	// after the draft's earlier lines.
	AvailableSerials(ctx context.Context, req SerialLineRequest) (*SerialListResult, error)

	// ReserveSerials holds chosen serial units for a line of a draft. With no hold token
	// on either the call or the draft a fresh one is made and returned in the result.
	ReserveSerials(ctx context.Context, req ReserveSerialsRequest) (*ReservationResult, error)

	// ReleaseSerials frees units held under a hold token.
	ReleaseSerials(ctx context.Context, req ReleaseSerialsRequest) (*ReleaseResult, error)
}
