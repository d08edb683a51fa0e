package core

import (
	"errors"
	"fmt"
)

// Validation errors. They are user-correctable and raised before any store write.
var (
	ErrItemNotSelected          = errors.New("item not selected")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrQuantityExceedsAvailable = errors.New("quantity exceeds available stock")
	ErrLineOutOfRange           = errors.New("line index out of range")
)

var (
	// ErrInsufficientStock is returned when on-hand stock cannot cover a requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrentModification is returned when another commit consumed stock or serial
	// units between validation and apply. The caller must re-validate from DRAFT.
	ErrConcurrentModification = fmt.Errorf("concurrent modification: %w", ErrInsufficientStock)

	ErrSerialCountMismatch = errors.New("serial unit count does not match requested quantity")
	ErrSerialNotAvailable  = errors.New("serial unit not available")

	// ErrPersistence wraps store failures that happen while committing.
	ErrPersistence = errors.New("persistence failure")
	// ErrTransient marks store failures that are safe to retry (serialization failures,
	// deadlocks, dropped connections). Stores wrap their errors with it.
	ErrTransient = errors.New("transient store failure")

	ErrRequestNotFound = errors.New("outbound request not found")
	ErrRequestVoided   = errors.New("outbound request already voided")
	ErrItemNotFound    = errors.New("item not found")
	ErrSerialNotFound  = errors.New("serial unit not found")
)

// LineError reports which line of a request failed and why.
// It unwraps to one of the sentinel errors above.
type LineError struct {
	LineIndex int
	ItemID    string
	Requested int64
	Remaining int64
	Err       error
}

func (e *LineError) Error() string {
	if errors.Is(e.Err, ErrQuantityExceedsAvailable) {
		return fmt.Sprintf("line %d (item %s): %v: requested %d, remaining %d",
			e.LineIndex+1, e.ItemID, e.Err, e.Requested, e.Remaining)
	}
	if e.ItemID == "" {
		return fmt.Sprintf("line %d: %v", e.LineIndex+1, e.Err)
	}
	return fmt.Sprintf("line %d (item %s): %v", e.LineIndex+1, e.ItemID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// IsValidationError reports whether err belongs to the user-correctable validation class.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrItemNotSelected) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrQuantityExceedsAvailable) ||
		errors.Is(err, ErrSerialCountMismatch) ||
		errors.Is(err, ErrSerialNotAvailable)
}
