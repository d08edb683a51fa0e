package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"stockout-engine/internal/core"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BalanceInvalidator drops cached balances after stock moves.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, itemIDs ...string)
}

type appService struct {
	uow         core.UnitOfWork
	balances    core.BalanceReader
	invalidator BalanceInvalidator
	coordinator *core.CommitCoordinator
	reservation *core.SerialReservation
	log         *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
// balances serves the read-only validate and plan paths; it may be a cache in front of
// uow's balance store. invalidator may be nil.
func NewAppService(
	uow core.UnitOfWork,
	balances core.BalanceReader,
	invalidator BalanceInvalidator,
	coordinator *core.CommitCoordinator,
	reservation *core.SerialReservation,
	logger *zap.Logger,
) ApplicationService {
	if balances == nil {
		balances = uow.Stores().Balances
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &appService{
		uow:         uow,
		balances:    balances,
		invalidator: invalidator,
		coordinator: coordinator,
		reservation: reservation,
		log:         logger,
	}
}

// ValidateLine checks one line of a draft.
func (s *appService) ValidateLine(ctx context.Context, req ValidateLineRequest) (*LineValidationResult, error) {
	out := req.Request.toOutbound()
	if err := s.fillPreviousQuantities(ctx, &out); err != nil {
		return nil, err
	}

	validator := core.NewRequestValidator(s.balances)
	if err := validator.ValidateLine(ctx, out, req.LineIndex); err != nil {
		return nil, err
	}
	remaining, err := validator.RemainingFor(ctx, out.Lines[req.LineIndex].ItemID, req.LineIndex, out)
	if err != nil {
		return nil, err
	}
	return &LineValidationResult{LineIndex: req.LineIndex, Remaining: remaining}, nil
}

// ValidateRequest validates every line and returns the planned request.
func (s *appService) ValidateRequest(ctx context.Context, req SubmitRequest) (*RequestResult, error) {
	validated, err := s.coordinator.Validate(ctx, req.toOutbound())
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: validated}, nil
}

// PlanLine plans quantity units of itemID against current balances.
func (s *appService) PlanLine(ctx context.Context, itemID string, quantity int64) (*PlanResult, error) {
	plan, err := core.PlanLine(ctx, s.balances, itemID, quantity)
	if err != nil {
		return nil, err
	}
	return &PlanResult{ItemID: itemID, Quantity: quantity, Plan: plan}, nil
}

// CommitRequest commits a new request or an edit.
func (s *appService) CommitRequest(ctx context.Context, req SubmitRequest) (*CommitResult, error) {
	touched := itemIDs(req.toOutbound().Lines)
	if req.ID != "" {
		if prev, err := s.uow.Stores().Requests.GetRequest(ctx, req.ID); err == nil {
			touched = append(touched, itemIDs(prev.Lines)...)
		}
	}

	committed, err := s.coordinator.Commit(ctx, req.toOutbound())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, touched)
	return &CommitResult{Request: committed}, nil
}

// VoidRequest voids a committed request.
func (s *appService) VoidRequest(ctx context.Context, requestID string) error {
	prev, err := s.uow.Stores().Requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.coordinator.Void(ctx, requestID); err != nil {
		return err
	}
	s.invalidate(ctx, itemIDs(prev.Lines))
	return nil
}

// GetRequest returns a committed request.
func (s *appService) GetRequest(ctx context.Context, requestID string) (*RequestResult, error) {
	req, err := s.uow.Stores().Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: req}, nil
}

// ListBalances returns the per-warehouse balances of itemID.
func (s *appService) ListBalances(ctx context.Context, itemID string) (*BalanceListResult, error) {
	if itemID == "" {
		return nil, core.ErrItemNotSelected
	}
	if _, err := s.uow.Stores().Items.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	balances, err := s.balances.ListBalances(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances for item %s: %w", itemID, err)
	}
	return &BalanceListResult{
		ItemID:   itemID,
		Total:    core.TotalOnHand(itemID, balances),
		Balances: balances,
	}, nil
}

// AvailableSerials plans a line of a draft and lists the units that can serve it.
func (s *appService) AvailableSerials(ctx context.Context, req SerialLineRequest) (*SerialListResult, error) {
	line, err := s.serialLine(ctx, req.Request, req.LineIndex)
	if err != nil {
		return nil, err
	}
	units, err := s.reservation.AvailableUnits(ctx, line.ItemID, line.AllocationPlan)
	if err != nil {
		return nil, err
	}
	return &SerialListResult{ItemID: line.ItemID, LineIndex: req.LineIndex, Plan: line.AllocationPlan, Units: units}, nil
}

// ReserveSerials holds serial units for a draft line.
func (s *appService) ReserveSerials(ctx context.Context, req ReserveSerialsRequest) (*ReservationResult, error) {
	line, err := s.serialLine(ctx, req.Request, req.LineIndex)
	if err != nil {
		return nil, err
	}

	token := cmp.Or(req.HoldToken, req.Request.HoldToken)
	if token == "" {
		token = uuid.NewString()
	}
	until, err := s.reservation.Reserve(ctx, line, req.SerialUnitIDs, token)
	if err != nil {
		return nil, err
	}
	s.log.Debug("serial units reserved",
		zap.String("item_id", line.ItemID),
		zap.Int("line_index", req.LineIndex),
		zap.String("hold_token", token),
		zap.Strings("serial_unit_ids", req.SerialUnitIDs),
		zap.Time("held_until", until))
	return &ReservationResult{HoldToken: token, HeldUntil: until, Plan: line.AllocationPlan, SerialUnitIDs: req.SerialUnitIDs}, nil
}

// ReleaseSerials frees the listed units held under the token, or all of them.
func (s *appService) ReleaseSerials(ctx context.Context, req ReleaseSerialsRequest) (*ReleaseResult, error) {
	if req.HoldToken == "" {
		return nil, errors.New("hold token is required")
	}
	var (
		n   int
		err error
	)
	if len(req.SerialUnitIDs) > 0 {
		n, err = s.reservation.ReleaseUnits(ctx, req.HoldToken, req.SerialUnitIDs)
	} else {
		n, err = s.reservation.Release(ctx, req.HoldToken)
	}
	if err != nil {
		return nil, err
	}
	return &ReleaseResult{Released: n}, nil
}

// serialLine returns the line at lineIndex with the plan commit would give it. It plans
// against the store rather than the cache, since reservations are checked against the
// plan warehouse by warehouse.
func (s *appService) serialLine(ctx context.Context, req SubmitRequest, lineIndex int) (core.OutboundLine, error) {
	out := req.toOutbound()
	if lineIndex < 0 || lineIndex >= len(out.Lines) {
		return core.OutboundLine{}, fmt.Errorf("%w: index %d, request has %d lines", core.ErrLineOutOfRange, lineIndex, len(out.Lines))
	}
	line := out.Lines[lineIndex]
	if line.ItemID == "" {
		return core.OutboundLine{}, &core.LineError{LineIndex: lineIndex, Err: core.ErrItemNotSelected}
	}
	item, err := s.uow.Stores().Items.GetItem(ctx, line.ItemID)
	if err != nil {
		return core.OutboundLine{}, err
	}
	if !item.TracksSerial {
		return core.OutboundLine{}, fmt.Errorf("%w: item %s does not track serial units", core.ErrSerialNotAvailable, line.ItemID)
	}
	plan, err := s.coordinator.PlanLineInRequest(ctx, out, lineIndex)
	if err != nil {
		return core.OutboundLine{}, err
	}
	line.AllocationPlan = plan
	return line, nil
}

// fillPreviousQuantities credits each line of an edit with the quantity its stored
// counterpart committed, if it still refers to the same item.
func (s *appService) fillPreviousQuantities(ctx context.Context, req *core.OutboundRequest) error {
	for i := range req.Lines {
		req.Lines[i].PreviousQuantity = 0
	}
	if !req.IsEdit() {
		return nil
	}
	prev, err := s.uow.Stores().Requests.GetRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	if prev.State == core.StateVoided {
		return fmt.Errorf("%w: %s", core.ErrRequestVoided, req.ID)
	}
	for i := range req.Lines {
		for _, p := range prev.Lines {
			if p.ID == req.Lines[i].ID && p.ItemID == req.Lines[i].ItemID {
				req.Lines[i].PreviousQuantity = p.RequestedQuantity
			}
		}
	}
	return nil
}

func (s *appService) invalidate(ctx context.Context, ids []string) {
	if s.invalidator == nil || len(ids) == 0 {
		return
	}
	s.invalidator.Invalidate(ctx, ids...)
}

func itemIDs(lines []core.OutboundLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.ItemID != "" && !slices.Contains(ids, l.ItemID) {
			ids = append(ids, l.ItemID)
		}
	}
	return ids
}
