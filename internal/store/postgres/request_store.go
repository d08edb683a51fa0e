package postgres

import (
	"context"
	"errors"
	"fmt"

	"stockout-engine/internal/core"

	"github.com/jackc/pgx/v5"
)

type requestStore struct{ *conn }

func (s *requestStore) GetRequest(ctx context.Context, requestID string) (*core.OutboundRequest, error) {
	var req core.OutboundRequest
	var status string
	err := s.q.QueryRow(ctx, `
		SELECT id, number, requested_at, requester, project, location, reference, note, status
		FROM outbound_requests
		WHERE id = $1
	`+s.forUpdate(" FOR UPDATE"), requestID).Scan(
		&req.ID, &req.Number, &req.Timestamp, &req.Requester, &req.Project,
		&req.Location, &req.Reference, &req.Note, &status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrRequestNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to load outbound request %s: %w", requestID, err)
	}
	req.State = core.RequestState(status)

	lines, err := s.loadLines(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.loadAllocations(ctx, requestID, lines); err != nil {
		return nil, err
	}
	if err := s.loadSerials(ctx, requestID, lines); err != nil {
		return nil, err
	}
	req.Lines = lines
	return &req, nil
}

func (s *requestStore) loadLines(ctx context.Context, requestID string) ([]core.OutboundLine, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, item_id, quantity, unit_price
		FROM outbound_lines
		WHERE request_id = $1 AND retired_at IS NULL
		ORDER BY line_number
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbound lines: %w", err)
	}
	defer rows.Close()

	var lines []core.OutboundLine
	for rows.Next() {
		var l core.OutboundLine
		if err := rows.Scan(&l.ID, &l.ItemID, &l.RequestedQuantity, &l.UnitPriceAtIssue); err != nil {
			return nil, fmt.Errorf("failed to scan outbound line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbound lines: %w", err)
	}
	return lines, nil
}

func lineIndex(lines []core.OutboundLine) map[string]int {
	idx := make(map[string]int, len(lines))
	for i, l := range lines {
		idx[l.ID] = i
	}
	return idx
}

func (s *requestStore) loadAllocations(ctx context.Context, requestID string, lines []core.OutboundLine) error {
	rows, err := s.q.Query(ctx, `
		SELECT a.line_id, a.warehouse_id, a.quantity
		FROM outbound_allocations a
		JOIN outbound_lines l ON l.id = a.line_id
		WHERE l.request_id = $1 AND l.retired_at IS NULL
		ORDER BY a.line_id, a.seq
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	idx := lineIndex(lines)
	for rows.Next() {
		var lineID string
		var d core.Draw
		if err := rows.Scan(&lineID, &d.WarehouseID, &d.Quantity); err != nil {
			return fmt.Errorf("failed to scan allocation: %w", err)
		}
		if i, ok := idx[lineID]; ok {
			lines[i].AllocationPlan = append(lines[i].AllocationPlan, d)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating allocations: %w", err)
	}
	return nil
}

func (s *requestStore) loadSerials(ctx context.Context, requestID string, lines []core.OutboundLine) error {
	rows, err := s.q.Query(ctx, `
		SELECT ls.line_id, ls.serial_unit_id
		FROM outbound_line_serials ls
		JOIN outbound_lines l ON l.id = ls.line_id
		WHERE l.request_id = $1 AND l.retired_at IS NULL
		ORDER BY ls.line_id, ls.seq
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to query line serial units: %w", err)
	}
	defer rows.Close()

	idx := lineIndex(lines)
	for rows.Next() {
		var lineID, unitID string
		if err := rows.Scan(&lineID, &unitID); err != nil {
			return fmt.Errorf("failed to scan line serial unit: %w", err)
		}
		if i, ok := idx[lineID]; ok {
			lines[i].SerialUnitIDs = append(lines[i].SerialUnitIDs, unitID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating line serial units: %w", err)
	}
	return nil
}

// SaveRequest upserts the header, retires the active lines and inserts req.Lines with
// their allocations and serial units.
func (s *requestStore) SaveRequest(ctx context.Context, req *core.OutboundRequest) error {
	if req.ID == "" {
		return fmt.Errorf("request id is required")
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO outbound_requests
		    (id, number, requested_at, requester, project, location, reference, note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'COMMITTED')
		ON CONFLICT (id) DO UPDATE
		SET requested_at = EXCLUDED.requested_at,
		    requester    = EXCLUDED.requester,
		    project      = EXCLUDED.project,
		    location     = EXCLUDED.location,
		    reference    = EXCLUDED.reference,
		    note         = EXCLUDED.note,
		    status       = 'COMMITTED',
		    updated_at   = NOW()
	`, req.ID, req.Number, req.Timestamp, req.Requester, req.Project, req.Location, req.Reference, req.Note)
	if err != nil {
		return fmt.Errorf("failed to upsert outbound request: %w", err)
	}

	if err := s.retireLines(ctx, req.ID); err != nil {
		return err
	}

	for i, l := range req.Lines {
		_, err := s.q.Exec(ctx, `
			INSERT INTO outbound_lines (id, request_id, line_number, item_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.ID, req.ID, i+1, l.ItemID, l.RequestedQuantity, l.UnitPriceAtIssue)
		if err != nil {
			return fmt.Errorf("failed to insert outbound line %d: %w", i+1, err)
		}
		for seq, d := range l.AllocationPlan {
			_, err := s.q.Exec(ctx, `
				INSERT INTO outbound_allocations (line_id, seq, warehouse_id, quantity)
				VALUES ($1, $2, $3, $4)
			`, l.ID, seq+1, d.WarehouseID, d.Quantity)
			if err != nil {
				return fmt.Errorf("failed to insert allocation for line %d: %w", i+1, err)
			}
		}
		for seq, unitID := range l.SerialUnitIDs {
			_, err := s.q.Exec(ctx, `
				INSERT INTO outbound_line_serials (line_id, seq, serial_unit_id)
				VALUES ($1, $2, $3)
			`, l.ID, seq+1, unitID)
			if err != nil {
				return fmt.Errorf("failed to link serial unit %s to line %d: %w", unitID, i+1, err)
			}
		}
	}
	return nil
}

func (s *requestStore) retireLines(ctx context.Context, requestID string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE outbound_lines SET retired_at = NOW()
		WHERE request_id = $1 AND retired_at IS NULL
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to retire outbound lines: %w", err)
	}
	return nil
}

func (s *requestStore) VoidRequest(ctx context.Context, requestID string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE outbound_requests
		SET status = 'VOIDED', voided_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to void outbound request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrRequestNotFound, requestID)
	}
	return s.retireLines(ctx, requestID)
}

// NextNumber increments the per-year counter under its row lock, so numbers are
// gapless as long as the surrounding transaction commits.
func (s *requestStore) NextNumber(ctx context.Context, year int) (string, error) {
	var next int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO outbound_sequences (year, last_number)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE
		SET last_number = outbound_sequences.last_number + 1
		RETURNING last_number
	`, year).Scan(&next)
	if err != nil {
		return "", fmt.Errorf("failed to allocate request number: %w", err)
	}
	return fmt.Sprintf("OUT-%d-%05d", year, next), nil
}

func (s *requestStore) RecordMovement(ctx context.Context, m core.StockMovement) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO stock_movements (request_id, line_id, item_id, warehouse_id, movement_type, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.RequestID, m.LineID, m.ItemID, m.WarehouseID, string(m.Type), m.Quantity, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert stock movement: %w", err)
	}
	return nil
}
