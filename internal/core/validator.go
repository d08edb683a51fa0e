package core

import (
	"context"
	"fmt"
)

// RequestValidator checks request lines against on-hand stock.
// It never writes; callers must re-validate when sibling lines change.
type RequestValidator struct {
	balances BalanceReader
}

func NewRequestValidator(balances BalanceReader) *RequestValidator {
	return &RequestValidator{balances: balances}
}

// RemainingFor returns how much of itemID the line at lineIndex may still request:
//
//	total on hand − Σ requested by other lines for the item + the line's previous quantity
func (v *RequestValidator) RemainingFor(ctx context.Context, itemID string, lineIndex int, req OutboundRequest) (int64, error) {
	if lineIndex < 0 || lineIndex >= len(req.Lines) {
		return 0, fmt.Errorf("%w: index %d, request has %d lines", ErrLineOutOfRange, lineIndex, len(req.Lines))
	}

	balances, err := v.balances.ListBalances(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to list balances for item %s: %w", itemID, err)
	}
	total := TotalOnHand(itemID, balances)

	var reservedBySiblings int64
	for i, sibling := range req.Lines {
		if i == lineIndex || sibling.ItemID != itemID || sibling.RequestedQuantity <= 0 {
			continue
		}
		reservedBySiblings += sibling.RequestedQuantity
	}

	creditBack := req.Lines[lineIndex].PreviousQuantity
	return total - reservedBySiblings + creditBack, nil
}

// ValidateLine checks one line of req. Failures are *LineError values wrapping
// ErrItemNotSelected, ErrInvalidQuantity or ErrQuantityExceedsAvailable.
func (v *RequestValidator) ValidateLine(ctx context.Context, req OutboundRequest, lineIndex int) error {
	if lineIndex < 0 || lineIndex >= len(req.Lines) {
		return fmt.Errorf("%w: index %d, request has %d lines", ErrLineOutOfRange, lineIndex, len(req.Lines))
	}
	line := req.Lines[lineIndex]

	if line.ItemID == "" {
		return &LineError{LineIndex: lineIndex, Err: ErrItemNotSelected}
	}
	if line.RequestedQuantity <= 0 {
		return &LineError{LineIndex: lineIndex, ItemID: line.ItemID, Requested: line.RequestedQuantity, Err: ErrInvalidQuantity}
	}

	remaining, err := v.RemainingFor(ctx, line.ItemID, lineIndex, req)
	if err != nil {
		return err
	}
	if line.RequestedQuantity > remaining {
		return &LineError{
			LineIndex: lineIndex,
			ItemID:    line.ItemID,
			Requested: line.RequestedQuantity,
			Remaining: remaining,
			Err:       ErrQuantityExceedsAvailable,
		}
	}
	return nil
}

// ValidateRequest validates every line and returns the first failure.
func (v *RequestValidator) ValidateRequest(ctx context.Context, req OutboundRequest) error {
	if len(req.Lines) == 0 {
		return fmt.Errorf("%w: request has no lines", ErrItemNotSelected)
	}
	for i := range req.Lines {
		if err := v.ValidateLine(ctx, req, i); err != nil {
			return err
		}
	}
	return nil
}

// snapshotReader memoizes ListBalances per item so every line of one request is
// validated and planned against the same read.
type snapshotReader struct {
	next  BalanceReader
	cache map[string][]WarehouseBalance
}

func newSnapshotReader(next BalanceReader) *snapshotReader {
	return &snapshotReader{next: next, cache: make(map[string][]WarehouseBalance)}
}

func (s *snapshotReader) ListBalances(ctx context.Context, itemID string) ([]WarehouseBalance, error) {
	if rows, ok := s.cache[itemID]; ok {
		return rows, nil
	}
	rows, err := s.next.ListBalances(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.cache[itemID] = rows
	return rows, nil
}
