package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"stockout-engine/internal/app"
)

// Usage lists the one-shot commands.
const Usage = `Available commands:
  plan <item-id> <quantity>      show the warehouse draws for a line
  validate                       validate a request read as JSON from stdin
  commit                         commit a request read as JSON from stdin (set "id" to edit)
  void <request-id>              void a committed request and restore its stock
  show <request-id>              print a committed request
  balances <item-id>             list per-warehouse balances of an item
  serials <item-id> <quantity>   list serial units available for a line`

// Run executes a one-shot CLI command. args is os.Args[1:], the first element is the
// subcommand name. Request bodies are read from in and results written to out.
func Run(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given\n%s", Usage)
	}

	switch args[0] {
	case "plan", "p":
		if len(args) < 3 {
			return fmt.Errorf("usage: app plan <item-id> <quantity>")
		}
		qty, err := parseQuantity(args[2])
		if err != nil {
			return err
		}
		result, err := svc.PlanLine(ctx, args[1], qty)
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}
		printPlan(out, result)

	case "validate", "val", "v":
		req, err := readRequest(in)
		if err != nil {
			return err
		}
		result, err := svc.ValidateRequest(ctx, req)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(out, "Request is valid.")
		return encode(out, result.Request)

	case "commit", "com", "c":
		req, err := readRequest(in)
		if err != nil {
			return err
		}
		result, err := svc.CommitRequest(ctx, req)
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		fmt.Fprintf(out, "Request %s committed (id %s).\n", result.Request.Number, result.Request.ID)
		return encode(out, result.Request)

	case "void":
		if len(args) < 2 {
			return fmt.Errorf("usage: app void <request-id>")
		}
		if err := svc.VoidRequest(ctx, args[1]); err != nil {
			return fmt.Errorf("void failed: %w", err)
		}
		fmt.Fprintf(out, "Request %s voided.\n", args[1])

	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: app show <request-id>")
		}
		result, err := svc.GetRequest(ctx, args[1])
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		return encode(out, result.Request)

	case "bal", "balances":
		if len(args) < 2 {
			return fmt.Errorf("usage: app balances <item-id>")
		}
		result, err := svc.ListBalances(ctx, args[1])
		if err != nil {
			return fmt.Errorf("failed to get balances: %w", err)
		}
		printBalances(out, result)

	case "serials":
		if len(args) < 3 {
			return fmt.Errorf("usage: app serials <item-id> <quantity>")
		}
		qty, err := parseQuantity(args[2])
		if err != nil {
			return err
		}
		result, err := svc.AvailableSerials(ctx, app.SingleLine(args[1], qty))
		if err != nil {
			return fmt.Errorf("failed to list serial units: %w", err)
		}
		printSerials(out, result)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], Usage)
	}
	return nil
}

func readRequest(in io.Reader) (app.SubmitRequest, error) {
	var req app.SubmitRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}

func parseQuantity(raw string) (int64, error) {
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", raw)
	}
	return qty, nil
}

func encode(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPlan(out io.Writer, result *app.PlanResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Plan for %d × %s\n", result.Quantity, result.ItemID)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "  %-20s %15s\n", "WAREHOUSE", "DRAW")
	for _, d := range result.Plan {
		fmt.Fprintf(out, "  %-20s %15d\n", d.WarehouseID, d.Quantity)
	}
	fmt.Fprintln(out, strings.Repeat("-", 40))
}

func printBalances(out io.Writer, result *app.BalanceListResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-58s\n", "STOCK ON HAND: "+result.ItemID)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-12s %-30s %15s\n", "WAREHOUSE", "NAME", "ON HAND")
	fmt.Fprintln(out, strings.Repeat("-", 62))
	for _, b := range result.Balances {
		fmt.Fprintf(out, "  %-12s %-30s %15d\n", b.WarehouseID, b.WarehouseName, b.QuantityOnHand)
	}
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  %-43s %15d\n", "TOTAL", result.Total)
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printSerials(out io.Writer, result *app.SerialListResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %-14s %-20s %-12s\n", "UNIT", "CODE", "WAREHOUSE")
	fmt.Fprintln(out, strings.Repeat("-", 50))
	for _, u := range result.Units {
		fmt.Fprintf(out, "  %-14s %-20s %-12s\n", u.ID, u.Code, u.WarehouseID)
	}
}
