package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Draw is the quantity a plan takes from one warehouse balance.
type Draw struct {
	WarehouseID string `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
}

// AllocationPlan is an ordered list of draws whose quantities sum to the line quantity.
type AllocationPlan []Draw

// Total returns the summed quantity of all draws.
func (p AllocationPlan) Total() int64 {
	var total int64
	for _, d := range p {
		total += d.Quantity
	}
	return total
}

// QuantityFor returns how much the plan draws from warehouseID.
func (p AllocationPlan) QuantityFor(warehouseID string) int64 {
	var qty int64
	for _, d := range p {
		if d.WarehouseID == warehouseID {
			qty += d.Quantity
		}
	}
	return qty
}

// WarehouseIDs returns the warehouses of the plan in draw order.
func (p AllocationPlan) WarehouseIDs() []string {
	ids := make([]string, 0, len(p))
	for _, d := range p {
		ids = append(ids, d.WarehouseID)
	}
	return ids
}

// RequestState tracks an outbound request through the commit pipeline:
//
//	DRAFT → VALIDATED → COMMITTING → COMMITTED | FAILED
//
// A committed request can later be VOIDED, which restores its allocation.
type RequestState string

const (
	StateDraft      RequestState = "DRAFT"
	StateValidated  RequestState = "VALIDATED"
	StateCommitting RequestState = "COMMITTING"
	StateCommitted  RequestState = "COMMITTED"
	StateFailed     RequestState = "FAILED"
	StateVoided     RequestState = "VOIDED"
)

// OutboundRequest is a stock-out request header with its ordered lines.
// A new request has an empty ID; an edit carries the ID of the request it supersedes.
type OutboundRequest struct {
	ID        string         `json:"id,omitempty"`
	Number    string         `json:"number,omitempty"` // assigned at commit
	Timestamp time.Time      `json:"timestamp"`
	Requester string         `json:"requester"` // person in charge
	Project   string         `json:"project"`
	Location  string         `json:"location"`
	Reference string         `json:"reference"`
	Note      string         `json:"note"`
	HoldToken string         `json:"hold_token,omitempty"` // owner of serial holds made while drafting
	State     RequestState   `json:"state,omitempty"`
	Lines     []OutboundLine `json:"lines"`
}

// IsEdit reports whether the request supersedes an already committed one.
func (r *OutboundRequest) IsEdit() bool {
	return r.ID != ""
}

// OutboundLine is one item withdrawal inside an OutboundRequest.
// PreviousQuantity is the quantity this line committed before the current edit (0 for new lines).
type OutboundLine struct {
	ID                string          `json:"id,omitempty"`
	ItemID            string          `json:"item_id"`
	RequestedQuantity int64           `json:"requested_quantity"`
	UnitPriceAtIssue  decimal.Decimal `json:"unit_price_at_issue"`
	PreviousQuantity  int64           `json:"previous_quantity,omitempty"`
	AllocationPlan    AllocationPlan  `json:"allocation_plan,omitempty"`
	SerialUnitIDs     []string        `json:"serial_unit_ids,omitempty"`
}

// LineTotal returns quantity × unit price at issue.
func (l OutboundLine) LineTotal() decimal.Decimal {
	return l.UnitPriceAtIssue.Mul(decimal.NewFromInt(l.RequestedQuantity))
}

// CommittedRequest is returned by a successful commit.
type CommittedRequest struct {
	OutboundRequest
	CommittedAt time.Time `json:"committed_at"`
	Attempts    int       `json:"attempts"`
}
