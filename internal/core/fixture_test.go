package core_test

import (
	"testing"

	"stockout-engine/internal/core"
	"stockout-engine/internal/store/memory"
)

// newFixture seeds a store with a bulk item spread over three warehouses and a
// serial-tracked item in two of them.
//
//	CABLE: WH-A 5, WH-B 3, WH-C 2
//	ONT:   WH-A 2 (SU-1, SU-2), WH-B 1 (SU-3)
func newFixture(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	s.AddWarehouse("WH-A", "Warehouse A")
	s.AddWarehouse("WH-B", "Warehouse B")
	s.AddWarehouse("WH-C", "Warehouse C")

	s.AddItem(core.Item{ID: "CABLE", Name: "Fiber cable", Unit: "m"})
	s.SetBalance("CABLE", "WH-A", 5)
	s.SetBalance("CABLE", "WH-B", 3)
	s.SetBalance("CABLE", "WH-C", 2)

	s.AddItem(core.Item{ID: "ONT", Name: "Optical network terminal", Unit: "pcs", TracksSerial: true})
	s.SetBalance("ONT", "WH-A", 2)
	s.SetBalance("ONT", "WH-B", 1)
	s.AddSerialUnit(core.SerialUnit{ID: "SU-1", ItemID: "ONT", WarehouseID: "WH-A", Code: "ONT-0001"})
	s.AddSerialUnit(core.SerialUnit{ID: "SU-2", ItemID: "ONT", WarehouseID: "WH-A", Code: "ONT-0002"})
	s.AddSerialUnit(core.SerialUnit{ID: "SU-3", ItemID: "ONT", WarehouseID: "WH-B", Code: "ONT-0003"})
	return s
}

func totalOnHand(s *memory.Store, itemID string) int64 {
	return s.Balance(itemID, "WH-A") + s.Balance(itemID, "WH-B") + s.Balance(itemID, "WH-C")
}
