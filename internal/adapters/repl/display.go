package repl

import (
	"fmt"
	"io"
	"strings"

	"stockout-engine/internal/app"
	"stockout-engine/internal/core"
)

func printBalances(out io.Writer, result *app.BalanceListResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-58s\n", "STOCK ON HAND: "+result.ItemID)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	if len(result.Balances) == 0 {
		fmt.Fprintln(out, "  No stock held.")
		fmt.Fprintln(out, strings.Repeat("=", 62))
		return
	}
	fmt.Fprintf(out, "  %-12s %-30s %15s\n", "WAREHOUSE", "NAME", "ON HAND")
	fmt.Fprintln(out, strings.Repeat("-", 62))
	for _, b := range result.Balances {
		fmt.Fprintf(out, "  %-12s %-30s %15d\n", b.WarehouseID, b.WarehouseName, b.QuantityOnHand)
	}
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  %-43s %15d\n", "TOTAL", result.Total)
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printPlan(out io.Writer, plan core.AllocationPlan) {
	for _, d := range plan {
		fmt.Fprintf(out, "    from %-12s %10d\n", d.WarehouseID, d.Quantity)
	}
}

func printSerials(out io.Writer, units []core.SerialUnit) {
	fmt.Fprintf(out, "  %-14s %-20s %-12s\n", "UNIT", "CODE", "WAREHOUSE")
	for _, u := range units {
		fmt.Fprintf(out, "  %-14s %-20s %-12s\n", u.ID, u.Code, u.WarehouseID)
	}
}

func printRequest(out io.Writer, r *core.OutboundRequest) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 72))
	title := "OUTBOUND REQUEST (draft)"
	if r.Number != "" {
		title = fmt.Sprintf("OUTBOUND REQUEST %s  [%s]", r.Number, r.State)
	}
	fmt.Fprintf(out, "  %s\n", title)
	fmt.Fprintf(out, "  Requester: %-20s Project: %-15s Location: %s\n", r.Requester, r.Project, r.Location)
	fmt.Fprintln(out, strings.Repeat("-", 72))
	fmt.Fprintf(out, "  %-4s %-16s %10s %12s %14s\n", "#", "ITEM", "QTY", "UNIT PRICE", "TOTAL")
	for i, l := range r.Lines {
		fmt.Fprintf(out, "  %-4d %-16s %10d %12s %14s\n",
			i+1, l.ItemID, l.RequestedQuantity, l.UnitPriceAtIssue.StringFixed(2), l.LineTotal().StringFixed(2))
		printPlan(out, l.AllocationPlan)
		if len(l.SerialUnitIDs) > 0 {
			fmt.Fprintf(out, "    units: %s\n", strings.Join(l.SerialUnitIDs, ", "))
		}
	}
	fmt.Fprintln(out, strings.Repeat("=", 72))
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /balances <item-id>        per-warehouse stock of an item")
	fmt.Fprintln(out, "  /plan <item-id> <qty>      show which warehouses would supply a line")
	fmt.Fprintln(out, "  /new                       draft and commit a new outbound request")
	fmt.Fprintln(out, "  /edit <request-id>         edit a committed request")
	fmt.Fprintln(out, "  /show <request-id>         print a committed request")
	fmt.Fprintln(out, "  /void <request-id>         void a request and restore its stock")
	fmt.Fprintln(out, "  /help                      this list")
	fmt.Fprintln(out, "  /exit                      leave")
}
