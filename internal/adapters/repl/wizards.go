package repl

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"stockout-engine/internal/app"
	"stockout-engine/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// draftFrom turns a committed request back into an editable draft.
func draftFrom(result *app.RequestResult) app.SubmitRequest {
	r := result.Request
	draft := app.SubmitRequest{
		ID:        r.ID,
		Requester: r.Requester,
		Project:   r.Project,
		Location:  r.Location,
		Reference: r.Reference,
		Note:      r.Note,
	}
	for _, l := range r.Lines {
		draft.Lines = append(draft.Lines, app.LineInput{
			ID:            l.ID,
			ItemID:        l.ItemID,
			Quantity:      l.RequestedQuantity,
			UnitPrice:     l.UnitPriceAtIssue,
			SerialUnitIDs: l.SerialUnitIDs,
		})
	}
	return draft
}

// handleDraft runs an interactive drafting session. Each entered line is validated
// against current stock before it is accepted; serial-tracked lines reserve their
// units for the lifetime of the draft. Holds still open when the session ends are
// released, including when input runs out mid-draft.
func (s *session) handleDraft(draft app.SubmitRequest) error {
	draft.HoldToken = uuid.NewString()
	defer s.release(draft.HoldToken)

	if draft.ID == "" {
		fmt.Fprintln(s.out, "New outbound request.")
		for _, f := range []struct {
			label string
			dst   *string
		}{
			{"  Requester: ", &draft.Requester},
			{"  Project: ", &draft.Project},
			{"  Location: ", &draft.Location},
		} {
			v, err := s.prompt(f.label)
			if err != nil {
				return err
			}
			*f.dst = v
		}
	} else {
		fmt.Fprintf(s.out, "Editing request %s. Existing lines:\n", draft.ID)
		for i, l := range draft.Lines {
			fmt.Fprintf(s.out, "  %d. %s × %d\n", i+1, l.ItemID, l.Quantity)
		}
	}

	fmt.Fprintln(s.out, "Enter lines. Type 'done' when finished, 'cancel' to abort.")
	fmt.Fprintln(s.out, "Format: <item-id> <quantity> [unit-price]  |  set <n> <quantity>  |  drop <n>")

	for {
		raw, err := s.prompt(fmt.Sprintf("  Line %d: ", len(draft.Lines)+1))
		if err != nil {
			return err
		}
		switch strings.ToLower(raw) {
		case "":
			continue
		case "cancel":
			fmt.Fprintln(s.out, "Draft discarded.")
			return nil
		case "done":
			committed, err := s.commitDraft(draft)
			if err != nil || committed {
				return err
			}
			continue
		}

		parts := strings.Fields(raw)
		switch strings.ToLower(parts[0]) {
		case "set":
			err = s.setQuantity(&draft, parts[1:])
		case "drop":
			s.dropLine(&draft, parts[1:])
		default:
			err = s.addLine(&draft, parts)
		}
		if err != nil {
			return err
		}
	}
}

func (s *session) addLine(draft *app.SubmitRequest, parts []string) error {
	if len(parts) < 2 {
		fmt.Fprintln(s.out, "  Invalid format. Use: <item-id> <quantity> [unit-price]")
		return nil
	}
	qty, ok := parseQuantity(parts[1])
	if !ok {
		fmt.Fprintln(s.out, "  Invalid quantity.")
		return nil
	}
	line := app.LineInput{ItemID: parts[0], Quantity: qty}
	if len(parts) >= 3 {
		price, err := decimal.NewFromString(parts[2])
		if err != nil || price.IsNegative() {
			fmt.Fprintln(s.out, "  Invalid price.")
			return nil
		}
		line.UnitPrice = price
	}

	draft.Lines = append(draft.Lines, line)
	idx := len(draft.Lines) - 1
	accepted := s.checkLine(*draft, idx)
	if accepted {
		var err error
		if accepted, err = s.pickSerials(draft, idx); err != nil {
			return err
		}
	}
	if !accepted {
		draft.Lines = draft.Lines[:idx]
	}
	return nil
}

// setQuantity changes the quantity of a line and picks its serial units again. Units
// the old pick held that the new pick does not use are released.
func (s *session) setQuantity(draft *app.SubmitRequest, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "  Usage: set <line-number> <quantity>")
		return nil
	}
	idx, ok := s.lineNumber(*draft, args[0])
	if !ok {
		return nil
	}
	qty, ok := parseQuantity(args[1])
	if !ok {
		fmt.Fprintln(s.out, "  Invalid quantity.")
		return nil
	}
	old := draft.Lines[idx]
	old.SerialUnitIDs = slices.Clone(old.SerialUnitIDs)
	draft.Lines[idx].Quantity = qty
	draft.Lines[idx].SerialUnitIDs = nil

	accepted := s.checkLine(*draft, idx)
	if accepted {
		var err error
		if accepted, err = s.pickSerials(draft, idx); err != nil {
			draft.Lines[idx] = old
			return err
		}
	}
	if !accepted {
		draft.Lines[idx] = old
		return nil
	}

	var dropped []string
	for _, id := range old.SerialUnitIDs {
		if !slices.Contains(draft.Lines[idx].SerialUnitIDs, id) {
			dropped = append(dropped, id)
		}
	}
	s.releaseUnits(draft.HoldToken, dropped)
	return nil
}

func (s *session) dropLine(draft *app.SubmitRequest, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "  Usage: drop <line-number>")
		return
	}
	idx, ok := s.lineNumber(*draft, args[0])
	if !ok {
		return
	}
	s.releaseUnits(draft.HoldToken, draft.Lines[idx].SerialUnitIDs)
	draft.Lines = slices.Delete(draft.Lines, idx, idx+1)
	fmt.Fprintf(s.out, "  Line %d removed.\n", idx+1)
}

func (s *session) lineNumber(draft app.SubmitRequest, raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(draft.Lines) {
		fmt.Fprintf(s.out, "  No line %s.\n", raw)
		return 0, false
	}
	return n - 1, true
}

// checkLine validates draft.Lines[idx] and prints what is left for the item.
func (s *session) checkLine(draft app.SubmitRequest, idx int) bool {
	result, err := s.svc.ValidateLine(s.ctx, app.ValidateLineRequest{Request: draft, LineIndex: idx})
	if err != nil {
		var lineErr *core.LineError
		if errors.As(err, &lineErr) && errors.Is(err, core.ErrQuantityExceedsAvailable) {
			fmt.Fprintf(s.out, "  Only %d of %s can be requested on this line.\n", lineErr.Remaining, lineErr.ItemID)
			return false
		}
		fmt.Fprintf(s.out, "  Rejected: %v\n", err)
		return false
	}
	fmt.Fprintf(s.out, "  OK. Up to %d available for this line.\n", result.Remaining)
	return true
}

// pickSerials asks for unit IDs when the line's item tracks serial units, offering
// the first units of the plan as the default choice. The plan accounts for the lines
// before idx, the way commit does.
func (s *session) pickSerials(draft *app.SubmitRequest, idx int) (bool, error) {
	avail, err := s.svc.AvailableSerials(s.ctx, app.SerialLineRequest{Request: *draft, LineIndex: idx})
	if err != nil {
		if errors.Is(err, core.ErrSerialNotAvailable) && !errors.Is(err, core.ErrInsufficientStock) {
			// item does not track serial units
			return true, nil
		}
		fmt.Fprintf(s.out, "  Rejected: %v\n", err)
		return false, nil
	}

	line := &draft.Lines[idx]
	printSerials(s.out, avail.Units)
	defaults := make([]string, 0, line.Quantity)
	for _, u := range avail.Units {
		if int64(len(defaults)) == line.Quantity {
			break
		}
		defaults = append(defaults, u.ID)
	}
	raw, err := s.prompt(fmt.Sprintf("  Serial units [%s]: ", strings.Join(defaults, " ")))
	if err != nil {
		return false, err
	}
	chosen := defaults
	if raw != "" {
		chosen = strings.Fields(raw)
	}

	if _, err := s.svc.ReserveSerials(s.ctx, app.ReserveSerialsRequest{
		Request:       *draft,
		LineIndex:     idx,
		SerialUnitIDs: chosen,
	}); err != nil {
		fmt.Fprintf(s.out, "  Rejected: %v\n", err)
		return false, nil
	}
	line.SerialUnitIDs = chosen
	return true, nil
}

func (s *session) commitDraft(draft app.SubmitRequest) (bool, error) {
	if len(draft.Lines) == 0 {
		fmt.Fprintln(s.out, "  No lines entered.")
		return false, nil
	}
	validated, err := s.svc.ValidateRequest(s.ctx, draft)
	if err != nil {
		fmt.Fprintf(s.out, "  Request invalid: %v\n", err)
		return false, nil
	}
	printRequest(s.out, validated.Request)

	choice, err := s.prompt("\nCommit this request? (y/n): ")
	if err != nil {
		return false, err
	}
	if choice = strings.ToLower(choice); choice != "y" && choice != "yes" {
		fmt.Fprintln(s.out, "  Keep editing, or type 'cancel' to discard.")
		return false, nil
	}
	result, err := s.svc.CommitRequest(s.ctx, draft)
	if err != nil {
		fmt.Fprintf(s.out, "Commit FAILED: %v\n", err)
		return false, nil
	}
	fmt.Fprintf(s.out, "Request %s COMMITTED (id %s).\n", result.Request.Number, result.Request.ID)
	return true, nil
}

func (s *session) release(holdToken string) {
	if _, err := s.svc.ReleaseSerials(s.ctx, app.ReleaseSerialsRequest{HoldToken: holdToken}); err != nil {
		fmt.Fprintf(s.out, "  Warning: failed to release serial holds: %v\n", err)
	}
}

func (s *session) releaseUnits(holdToken string, unitIDs []string) {
	if len(unitIDs) == 0 {
		return
	}
	req := app.ReleaseSerialsRequest{HoldToken: holdToken, SerialUnitIDs: unitIDs}
	if _, err := s.svc.ReleaseSerials(s.ctx, req); err != nil {
		fmt.Fprintf(s.out, "  Warning: failed to release serial holds: %v\n", err)
	}
}

// prompt reads one trimmed line. It fails with errInputClosed only once input is
// exhausted; a last line without a newline is still returned.
func (s *session) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	raw, err := s.reader.ReadString('\n')
	raw = strings.TrimSpace(raw)
	if err != nil && raw == "" {
		return "", fmt.Errorf("%w: %w", errInputClosed, err)
	}
	return raw, nil
}

func parseQuantity(raw string) (int64, bool) {
	qty, err := strconv.ParseInt(raw, 10, 64)
	return qty, err == nil
}
