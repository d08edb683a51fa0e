package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"stockout-engine/internal/app"
)

var (
	errExit        = errors.New("exit")
	errInputClosed = errors.New("input closed")
)

// Run starts the interactive loop. Slash commands are dispatched deterministically;
// /new and /edit open a drafting session that validates each line as it is entered.
func Run(ctx context.Context, svc app.ApplicationService, reader *bufio.Reader, out io.Writer) {
	fmt.Fprintln(out, "Stock-out Engine")
	fmt.Fprintln(out, "Draft outbound requests against warehouse stock. Type /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))

	s := &session{ctx: ctx, svc: svc, reader: reader, out: out}
	for {
		fmt.Fprint(out, "\n> ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
			continue
		}
		if !strings.HasPrefix(input, "/") {
			fmt.Fprintln(out, "Commands start with /. Type /help for all commands.")
			continue
		}
		if derr := s.dispatch(input); derr != nil {
			if errors.Is(derr, errExit) || errors.Is(derr, errInputClosed) {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
			fmt.Fprintf(out, "Error: %v\n", derr)
		}
		if err != nil {
			fmt.Fprintln(out, "Goodbye!")
			return
		}
	}
}

type session struct {
	ctx    context.Context
	svc    app.ApplicationService
	reader *bufio.Reader
	out    io.Writer
}

func (s *session) dispatch(input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "bal", "balances", "stock":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /balances <item-id>")
			return nil
		}
		result, err := s.svc.ListBalances(s.ctx, args[0])
		if err != nil {
			return err
		}
		printBalances(s.out, result)

	case "plan":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: /plan <item-id> <quantity>")
			return nil
		}
		qty, ok := parseQuantity(args[1])
		if !ok {
			fmt.Fprintf(s.out, "Invalid quantity: %s\n", args[1])
			return nil
		}
		result, err := s.svc.PlanLine(s.ctx, args[0], qty)
		if err != nil {
			return err
		}
		printPlan(s.out, result.Plan)

	case "new":
		return s.handleDraft(app.SubmitRequest{})

	case "edit":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /edit <request-id>")
			return nil
		}
		result, err := s.svc.GetRequest(s.ctx, args[0])
		if err != nil {
			return err
		}
		return s.handleDraft(draftFrom(result))

	case "show":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /show <request-id>")
			return nil
		}
		result, err := s.svc.GetRequest(s.ctx, args[0])
		if err != nil {
			return err
		}
		printRequest(s.out, result.Request)

	case "void":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /void <request-id>")
			return nil
		}
		if err := s.svc.VoidRequest(s.ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Request %s VOIDED. Stock restored.\n", args[0])

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}
