package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommitCoordinator validates, plans and commits outbound requests.
//
// Validation and planning are read-only. The apply step (restoring a superseded
// allocation, drawing the new one, issuing serial units, persisting the request) runs
// inside one UnitOfWork transaction and is retried only on ErrTransient failures.
type CommitCoordinator struct {
	uow   UnitOfWork
	retry RetryPolicy
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewCommitCoordinator(uow UnitOfWork, retry RetryPolicy, logger *zap.Logger) *CommitCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommitCoordinator{
		uow:   uow,
		retry: retry,
		log:   logger,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the time source used for hold expiry and timestamps.
func (c *CommitCoordinator) WithClock(now func() time.Time) *CommitCoordinator {
	c.now = now
	return c
}

// preparedRequest is a request that passed validation, with plans attached.
type preparedRequest struct {
	req      OutboundRequest
	previous *OutboundRequest
}

// Validate runs the DRAFT → VALIDATED step without committing and returns the request
// with previous quantities and allocation plans filled in.
func (c *CommitCoordinator) Validate(ctx context.Context, req OutboundRequest) (*OutboundRequest, error) {
	p, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	p.req.State = StateValidated
	return &p.req, nil
}

// Commit validates req and applies it atomically. A request abandoned (ctx cancelled)
// before the apply step starts has no effect; once started the apply step ignores
// cancellation and ends COMMITTED or FAILED.
func (c *CommitCoordinator) Commit(ctx context.Context, req OutboundRequest) (*CommittedRequest, error) {
	log := c.log.With(zap.String("request_id", req.ID), zap.Bool("edit", req.IsEdit()))
	log.Debug("outbound request state", zap.String("state", string(StateDraft)))

	p, err := c.prepare(ctx, req)
	if err != nil {
		log.Info("outbound request rejected", zap.Error(err))
		return nil, err
	}
	log.Debug("outbound request state", zap.String("state", string(StateValidated)))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("outbound request abandoned before commit: %w", err)
	}

	commitCtx := context.WithoutCancel(ctx)
	log.Debug("outbound request state", zap.String("state", string(StateCommitting)))

	var applied OutboundRequest
	attempts, err := retryTransient(commitCtx, c.retry, func(attempt int) error {
		if attempt > 1 {
			log.Warn("retrying outbound commit", zap.Int("attempt", attempt))
		}
		applied = p.req
		applied.Lines = slices.Clone(p.req.Lines)
		return c.uow.WithinTx(commitCtx, func(ctx context.Context, tx Stores) error {
			return c.apply(ctx, tx, &applied, p.previous)
		})
	})
	if err != nil {
		log.Error("outbound request failed", zap.String("state", string(StateFailed)),
			zap.Int("attempts", attempts), zap.Error(err))
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	applied.State = StateCommitted
	log.Info("outbound request committed",
		zap.String("committed_id", applied.ID),
		zap.String("number", applied.Number),
		zap.Int("lines", len(applied.Lines)),
		zap.Int("attempts", attempts))
	return &CommittedRequest{OutboundRequest: applied, CommittedAt: c.now(), Attempts: attempts}, nil
}

// Void restores the full allocation of a committed request and marks it voided.
func (c *CommitCoordinator) Void(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("%w: empty id", ErrRequestNotFound)
	}
	commitCtx := context.WithoutCancel(ctx)
	_, err := retryTransient(commitCtx, c.retry, func(int) error {
		return c.uow.WithinTx(commitCtx, func(ctx context.Context, tx Stores) error {
			prev, err := tx.Requests.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if prev.State == StateVoided {
				return fmt.Errorf("%w: %s", ErrRequestVoided, requestID)
			}
			if err := c.restore(ctx, tx, prev); err != nil {
				return err
			}
			return tx.Requests.VoidRequest(ctx, requestID)
		})
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	c.log.Info("outbound request voided", zap.String("request_id", requestID))
	return nil
}

// prepare is the DRAFT → VALIDATED step. It reads through the non-transactional stores
// and never writes.
func (c *CommitCoordinator) prepare(ctx context.Context, req OutboundRequest) (*preparedRequest, error) {
	stores := c.uow.Stores()
	p := &preparedRequest{req: req}
	p.req.Lines = slices.Clone(req.Lines)
	if p.req.Timestamp.IsZero() {
		p.req.Timestamp = c.now()
	}

	previousLines := map[string]OutboundLine{}
	previouslyIssued := map[string]bool{}
	if req.IsEdit() {
		prev, err := loadEditable(ctx, stores, req.ID)
		if err != nil {
			return nil, err
		}
		p.previous = prev
		p.req.Number = prev.Number
		for _, l := range prev.Lines {
			previousLines[l.ID] = l
			for _, id := range l.SerialUnitIDs {
				previouslyIssued[id] = true
			}
		}
	}

	// The previous quantity is taken from the stored record, never from the caller,
	// and only credited when the line still refers to the same item.
	for i := range p.req.Lines {
		line := &p.req.Lines[i]
		line.PreviousQuantity = 0
		line.AllocationPlan = nil
		if prev, ok := previousLines[line.ID]; ok && prev.ItemID == line.ItemID {
			line.PreviousQuantity = prev.RequestedQuantity
		}
	}

	reader := newSnapshotReader(stores.Balances)
	if err := NewRequestValidator(reader).ValidateRequest(ctx, p.req); err != nil {
		return nil, err
	}

	now := c.now()
	planner := newRequestPlanner(reader, p.previous)
	items := map[string]*Item{}
	claimedBy := map[string]int{}
	for i := range p.req.Lines {
		line := &p.req.Lines[i]

		item, ok := items[line.ItemID]
		if !ok {
			var err error
			item, err = stores.Items.GetItem(ctx, line.ItemID)
			if err != nil {
				return nil, fmt.Errorf("failed to load item %s: %w", line.ItemID, err)
			}
			items[line.ItemID] = item
		}

		plan, err := planner.plan(ctx, line.ItemID, line.RequestedQuantity)
		if err != nil {
			return nil, &LineError{LineIndex: i, ItemID: line.ItemID, Requested: line.RequestedQuantity, Err: err}
		}
		line.AllocationPlan = plan

		if !item.TracksSerial {
			if len(line.SerialUnitIDs) > 0 {
				return nil, &LineError{LineIndex: i, ItemID: line.ItemID,
					Err: fmt.Errorf("%w: item does not track serial units", ErrSerialNotAvailable)}
			}
			continue
		}

		ids, err := checkSerialCount(*line, line.SerialUnitIDs)
		if err != nil {
			return nil, &LineError{LineIndex: i, ItemID: line.ItemID, Requested: line.RequestedQuantity, Err: err}
		}
		units, err := stores.Serials.GetUnits(ctx, ids)
		if err != nil {
			if errors.Is(err, ErrSerialNotFound) {
				return nil, &LineError{LineIndex: i, ItemID: line.ItemID, Err: fmt.Errorf("%w: %w", ErrSerialNotAvailable, err)}
			}
			return nil, fmt.Errorf("failed to load serial units: %w", err)
		}
		claimable := func(u SerialUnit) bool {
			return u.ClaimableBy(req.HoldToken, now) || (previouslyIssued[u.ID] && u.Status == SerialIssued)
		}
		if err := checkSerialUnits(*line, units, claimable); err != nil {
			return nil, &LineError{LineIndex: i, ItemID: line.ItemID, Err: err}
		}
		for _, id := range ids {
			if other, dup := claimedBy[id]; dup {
				return nil, &LineError{LineIndex: i, ItemID: line.ItemID,
					Err: fmt.Errorf("%w: unit %s is already on line %d", ErrSerialNotAvailable, id, other+1)}
			}
			claimedBy[id] = i
		}
		line.SerialUnitIDs = ids
	}
	return p, nil
}

// PlanLineInRequest plans the line at lineIndex exactly as Commit would: earlier lines
// of req draw first, and an edit is credited with what its stored version drew.
// Earlier lines without an item or a positive quantity are skipped.
func (c *CommitCoordinator) PlanLineInRequest(ctx context.Context, req OutboundRequest, lineIndex int) (AllocationPlan, error) {
	if lineIndex < 0 || lineIndex >= len(req.Lines) {
		return nil, fmt.Errorf("%w: index %d, request has %d lines", ErrLineOutOfRange, lineIndex, len(req.Lines))
	}
	stores := c.uow.Stores()
	var previous *OutboundRequest
	if req.IsEdit() {
		prev, err := loadEditable(ctx, stores, req.ID)
		if err != nil {
			return nil, err
		}
		previous = prev
	}

	planner := newRequestPlanner(newSnapshotReader(stores.Balances), previous)
	for i := 0; i < lineIndex; i++ {
		line := req.Lines[i]
		if line.ItemID == "" || line.RequestedQuantity <= 0 {
			continue
		}
		if _, err := planner.plan(ctx, line.ItemID, line.RequestedQuantity); err != nil {
			return nil, &LineError{LineIndex: i, ItemID: line.ItemID, Requested: line.RequestedQuantity, Err: err}
		}
	}

	line := req.Lines[lineIndex]
	if line.ItemID == "" {
		return nil, &LineError{LineIndex: lineIndex, Err: ErrItemNotSelected}
	}
	plan, err := planner.plan(ctx, line.ItemID, line.RequestedQuantity)
	if err != nil {
		return nil, &LineError{LineIndex: lineIndex, ItemID: line.ItemID, Requested: line.RequestedQuantity, Err: err}
	}
	return plan, nil
}

// loadEditable returns the stored version of a request that is about to be edited.
func loadEditable(ctx context.Context, stores Stores, requestID string) (*OutboundRequest, error) {
	prev, err := stores.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if prev.State == StateVoided {
		return nil, fmt.Errorf("%w: %s", ErrRequestVoided, requestID)
	}
	return prev, nil
}

// apply is the COMMITTING step. It runs inside tx.
func (c *CommitCoordinator) apply(ctx context.Context, tx Stores, req *OutboundRequest, validated *OutboundRequest) error {
	if validated != nil {
		prev, err := tx.Requests.GetRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if prev.State == StateVoided || !sameAllocation(prev, validated) {
			return fmt.Errorf("%w: request %s changed since validation", ErrConcurrentModification, req.ID)
		}
		if err := c.restore(ctx, tx, prev); err != nil {
			return err
		}
		req.Number = prev.Number
	} else {
		req.ID = c.newID()
		number, err := tx.Requests.NextNumber(ctx, req.Timestamp.Year())
		if err != nil {
			return fmt.Errorf("failed to allocate request number: %w", err)
		}
		req.Number = number
	}

	now := c.now()
	for i := range req.Lines {
		line := &req.Lines[i]
		line.ID = c.newID()

		for _, d := range line.AllocationPlan {
			if err := tx.Balances.Decrement(ctx, line.ItemID, d.WarehouseID, d.Quantity); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return fmt.Errorf("%w: item %s in warehouse %s", ErrConcurrentModification, line.ItemID, d.WarehouseID)
				}
				return fmt.Errorf("failed to draw %d of item %s from warehouse %s: %w", d.Quantity, line.ItemID, d.WarehouseID, err)
			}
			if err := tx.Requests.RecordMovement(ctx, StockMovement{
				RequestID:   req.ID,
				LineID:      line.ID,
				ItemID:      line.ItemID,
				WarehouseID: d.WarehouseID,
				Type:        MovementIssue,
				Quantity:    -d.Quantity,
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("failed to record issue movement: %w", err)
			}
		}

		if len(line.SerialUnitIDs) == 0 {
			continue
		}
		units, err := tx.Serials.GetUnits(ctx, line.SerialUnitIDs)
		if err != nil {
			if errors.Is(err, ErrSerialNotFound) {
				return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
			}
			return fmt.Errorf("failed to lock serial units: %w", err)
		}
		claimable := func(u SerialUnit) bool { return u.ClaimableBy(req.HoldToken, now) }
		if err := checkSerialUnits(*line, units, claimable); err != nil {
			return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		}
		for _, id := range line.SerialUnitIDs {
			if err := tx.Serials.SetStatus(ctx, id, SerialIssued); err != nil {
				return fmt.Errorf("failed to issue serial unit %s: %w", id, err)
			}
		}
	}

	if req.HoldToken != "" {
		if _, err := tx.Serials.ReleaseHolds(ctx, req.HoldToken); err != nil {
			return fmt.Errorf("failed to release leftover serial holds: %w", err)
		}
	}

	req.State = StateCommitted
	if err := tx.Requests.SaveRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to save outbound request: %w", err)
	}
	return nil
}

// restore credits back every draw of prev to the warehouse it came from and returns
// its serial units to available.
func (c *CommitCoordinator) restore(ctx context.Context, tx Stores, prev *OutboundRequest) error {
	now := c.now()
	for _, line := range prev.Lines {
		for _, d := range line.AllocationPlan {
			if err := tx.Balances.Increment(ctx, line.ItemID, d.WarehouseID, d.Quantity); err != nil {
				return fmt.Errorf("failed to restore %d of item %s to warehouse %s: %w", d.Quantity, line.ItemID, d.WarehouseID, err)
			}
			if err := tx.Requests.RecordMovement(ctx, StockMovement{
				RequestID:   prev.ID,
				LineID:      line.ID,
				ItemID:      line.ItemID,
				WarehouseID: d.WarehouseID,
				Type:        MovementRestore,
				Quantity:    d.Quantity,
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("failed to record restore movement: %w", err)
			}
		}
		for _, id := range line.SerialUnitIDs {
			if err := tx.Serials.SetStatus(ctx, id, SerialAvailable); err != nil {
				return fmt.Errorf("failed to release serial unit %s: %w", id, err)
			}
		}
	}
	return nil
}

// sameAllocation reports whether two versions of a request drew the same stock.
func sameAllocation(a, b *OutboundRequest) bool {
	if len(a.Lines) != len(b.Lines) {
		return false
	}
	for i := range a.Lines {
		la, lb := a.Lines[i], b.Lines[i]
		if la.ID != lb.ID || la.ItemID != lb.ItemID || la.RequestedQuantity != lb.RequestedQuantity {
			return false
		}
		if !slices.Equal(la.AllocationPlan, lb.AllocationPlan) {
			return false
		}
	}
	return true
}

// isDomainError reports whether err is a business outcome that should reach the caller
// unwrapped rather than as ErrPersistence.
func isDomainError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrSerialNotAvailable) ||
		errors.Is(err, ErrSerialCountMismatch) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrRequestVoided)
}
