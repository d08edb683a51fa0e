package postgres

import (
	"context"
	"fmt"
)

// Finding is one inconsistency reported by Audit.
type Finding struct {
	Check  string
	Detail string
}

type auditCheck struct {
	name  string
	query string
}

// Each query returns one text column per inconsistency found.
var auditChecks = []auditCheck{
	{
		name: "negative_balance",
		query: `
			SELECT format('%s @ %s: %s on hand', item_id, warehouse_id, quantity_on_hand)
			FROM warehouse_balances
			WHERE quantity_on_hand < 0
			ORDER BY item_id, warehouse_id`,
	},
	{
		name: "serial_count",
		query: `
			WITH units AS (
				SELECT item_id, warehouse_id, COUNT(*) AS n
				FROM serial_units
				WHERE status IN ('available', 'reserved')
				GROUP BY item_id, warehouse_id
			)
			SELECT format('%s @ %s: %s on hand, %s serial units in stock',
			              COALESCE(wb.item_id, u.item_id), COALESCE(wb.warehouse_id, u.warehouse_id),
			              COALESCE(wb.quantity_on_hand, 0), COALESCE(u.n, 0))
			FROM warehouse_balances wb
			JOIN items i ON i.id = wb.item_id AND i.tracks_serial
			FULL OUTER JOIN units u ON u.item_id = wb.item_id AND u.warehouse_id = wb.warehouse_id
			WHERE COALESCE(wb.quantity_on_hand, 0) <> COALESCE(u.n, 0)
			ORDER BY 1`,
	},
	{
		name: "plan_sum",
		query: `
			SELECT format('line %s of request %s: quantity %s, planned %s',
			              l.id, l.request_id, l.quantity, COALESCE(SUM(a.quantity), 0))
			FROM outbound_lines l
			LEFT JOIN outbound_allocations a ON a.line_id = l.id
			WHERE l.retired_at IS NULL
			GROUP BY l.id, l.request_id, l.quantity
			HAVING COALESCE(SUM(a.quantity), 0) <> l.quantity
			ORDER BY 1`,
	},
	{
		name: "line_serials",
		query: `
			SELECT format('line %s of request %s: quantity %s, %s serial units',
			              l.id, l.request_id, l.quantity, COUNT(ls.serial_unit_id))
			FROM outbound_lines l
			JOIN items i ON i.id = l.item_id AND i.tracks_serial
			LEFT JOIN outbound_line_serials ls ON ls.line_id = l.id
			WHERE l.retired_at IS NULL
			GROUP BY l.id, l.request_id, l.quantity
			HAVING COUNT(ls.serial_unit_id) <> l.quantity
			ORDER BY 1`,
	},
	{
		name: "movement_net",
		query: `
			WITH net AS (
				SELECT line_id, SUM(quantity) AS moved
				FROM stock_movements
				GROUP BY line_id
			), planned AS (
				SELECT line_id, SUM(quantity) AS drawn
				FROM outbound_allocations
				GROUP BY line_id
			)
			SELECT format('line %s of request %s: movements net %s, expected %s',
			              l.id, l.request_id, COALESCE(n.moved, 0),
			              CASE WHEN l.retired_at IS NULL THEN -COALESCE(p.drawn, 0) ELSE 0 END)
			FROM outbound_lines l
			LEFT JOIN net n ON n.line_id = l.id
			LEFT JOIN planned p ON p.line_id = l.id
			WHERE COALESCE(n.moved, 0) <>
			      CASE WHEN l.retired_at IS NULL THEN -COALESCE(p.drawn, 0) ELSE 0 END
			ORDER BY 1`,
	},
}

// Audit runs the stock consistency checks and returns every inconsistency found.
// An empty result means balances, serial units, plans and the movement journal agree.
func (s *Store) Audit(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, c := range auditChecks {
		rows, err := s.pool.Query(ctx, c.query)
		if err != nil {
			return nil, fmt.Errorf("failed to run audit check %s: %w", c.name, err)
		}
		for rows.Next() {
			var detail string
			if err := rows.Scan(&detail); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan audit check %s: %w", c.name, err)
			}
			findings = append(findings, Finding{Check: c.name, Detail: detail})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating audit check %s: %w", c.name, err)
		}
	}
	return findings, nil
}
