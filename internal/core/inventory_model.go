package core

import "time"

// Item is a catalog entry that can be issued from stock.
// Items with TracksSerial set must bind one serial unit per issued quantity.
type Item struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	TracksSerial bool   `json:"tracks_serial"`
}

// WarehouseBalance is the on-hand quantity of one item in one warehouse.
// QuantityOnHand is never negative.
type WarehouseBalance struct {
	ItemID         string `json:"item_id"`
	WarehouseID    string `json:"warehouse_id"`
	WarehouseName  string `json:"warehouse_name"`
	QuantityOnHand int64  `json:"quantity_on_hand"`
}

// SerialStatus is the lifecycle state of a serial-tracked unit.
type SerialStatus string

const (
	SerialAvailable SerialStatus = "available"
	SerialReserved  SerialStatus = "reserved"
	SerialIssued    SerialStatus = "issued"
)

// CountsOnHand reports whether a unit in this status is part of its warehouse's on-hand quantity.
func (s SerialStatus) CountsOnHand() bool {
	return s == SerialAvailable || s == SerialReserved
}

// SerialUnit is a single physically identifiable unit of a serial-tracked item.
// HeldBy and HeldUntil are set while the unit is reserved for a draft request.
type SerialUnit struct {
	ID          string       `json:"id"`
	ItemID      string       `json:"item_id"`
	WarehouseID string       `json:"warehouse_id"`
	Code        string       `json:"code"`
	Status      SerialStatus `json:"status"`
	HeldBy      string       `json:"held_by,omitempty"`
	HeldUntil   *time.Time   `json:"held_until,omitempty"`
}

// HoldExpired reports whether a reserved unit's hold has lapsed at now.
// Units that are not reserved never have an expired hold.
func (u SerialUnit) HoldExpired(now time.Time) bool {
	if u.Status != SerialReserved {
		return false
	}
	return u.HeldUntil == nil || !u.HeldUntil.After(now)
}

// ClaimableBy reports whether holder may bind this unit at now: the unit is available,
// its hold has expired, or holder already owns the hold.
func (u SerialUnit) ClaimableBy(holder string, now time.Time) bool {
	switch u.Status {
	case SerialAvailable:
		return true
	case SerialReserved:
		if holder != "" && u.HeldBy == holder {
			return true
		}
		return u.HoldExpired(now)
	default:
		return false
	}
}

// MovementType classifies a row in the stock movement journal.
type MovementType string

const (
	MovementIssue   MovementType = "ISSUE"
	MovementRestore MovementType = "RESTORE"
)

// StockMovement is one balance change caused by committing, editing or voiding a request.
// Quantity is negative for issues and positive for restores.
type StockMovement struct {
	RequestID   string       `json:"request_id"`
	LineID      string       `json:"line_id"`
	ItemID      string       `json:"item_id"`
	WarehouseID string       `json:"warehouse_id"`
	Type        MovementType `json:"movement_type"`
	Quantity    int64        `json:"quantity"`
	CreatedAt   time.Time    `json:"created_at"`
}
