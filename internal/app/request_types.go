package app

import (
	"time"

	"stockout-engine/internal/core"

	"github.com/shopspring/decimal"
)

// SubmitRequest is a draft outbound request as entered by the user.
// ID is empty for a new request and set to the committed request's ID for an edit.
type SubmitRequest struct {
	ID        string      `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Requester string      `json:"requester"`
	Project   string      `json:"project"`
	Location  string      `json:"location"`
	Reference string      `json:"reference"`
	Note      string      `json:"note"`
	HoldToken string      `json:"hold_token,omitempty"`
	Lines     []LineInput `json:"lines"`
}

// LineInput is a single line within a SubmitRequest. ID refers to a line of the
// committed request when editing.
type LineInput struct {
	ID            string          `json:"id,omitempty"`
	ItemID        string          `json:"item_id"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	SerialUnitIDs []string        `json:"serial_unit_ids,omitempty"`
}

// ValidateLineRequest asks for the validation of Request.Lines[LineIndex].
type ValidateLineRequest struct {
	Request   SubmitRequest `json:"request"`
	LineIndex int           `json:"line_index"`
}

// SerialLineRequest names a serial-tracked line of a draft. The line is planned after
// the lines before it, the way commit plans it.
type SerialLineRequest struct {
	Request   SubmitRequest `json:"request"`
	LineIndex int           `json:"line_index"`
}

// ReserveSerialsRequest holds SerialUnitIDs for Request.Lines[LineIndex]. HoldToken
// defaults to the draft's own hold token.
type ReserveSerialsRequest struct {
	Request       SubmitRequest `json:"request"`
	LineIndex     int           `json:"line_index"`
	SerialUnitIDs []string      `json:"serial_unit_ids"`
	HoldToken     string        `json:"hold_token,omitempty"`
}

// ReleaseSerialsRequest frees units held under HoldToken: only SerialUnitIDs when
// given, every unit otherwise.
type ReleaseSerialsRequest struct {
	HoldToken     string   `json:"hold_token"`
	SerialUnitIDs []string `json:"serial_unit_ids,omitempty"`
}

// SingleLine asks about the only line of a draft holding quantity units of itemID.
func SingleLine(itemID string, quantity int64) SerialLineRequest {
	return SerialLineRequest{Request: SubmitRequest{Lines: []LineInput{{ItemID: itemID, Quantity: quantity}}}}
}

// toOutbound converts the draft into the engine's request shape.
func (r SubmitRequest) toOutbound() core.OutboundRequest {
	out := core.OutboundRequest{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Requester: r.Requester,
		Project:   r.Project,
		Location:  r.Location,
		Reference: r.Reference,
		Note:      r.Note,
		HoldToken: r.HoldToken,
		State:     core.StateDraft,
		Lines:     make([]core.OutboundLine, len(r.Lines)),
	}
	for i, l := range r.Lines {
		out.Lines[i] = core.OutboundLine{
			ID:                l.ID,
			ItemID:            l.ItemID,
			RequestedQuantity: l.Quantity,
			UnitPriceAtIssue:  l.UnitPrice,
			SerialUnitIDs:     l.SerialUnitIDs,
		}
	}
	return out
}
