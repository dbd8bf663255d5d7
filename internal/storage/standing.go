package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"tesoro/internal/core"
)

// StandingOrderState is a standing order together with its execution
// state and the names the UI displays.
type StandingOrderState struct {
	core.StandingOrder
	VaultName string
	Username  string
	LastRun   core.Date // zero when never executed
	Active    bool
}

const dateLayout = "2006-01-02"

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

// CreateStandingOrder stores a recurring entry template.
func (r *SQLiteRepository) CreateStandingOrder(ctx context.Context, so core.StandingOrder) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO standing_orders (vault_id, type, amount_cents, category, description, frequency, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		so.VaultID, string(so.Type), so.Amount.Cents, so.Category, so.Description,
		string(so.Every), formatDate(so.StartDate), formatDate(so.EndDate))
	if err != nil {
		return 0, fmt.Errorf("insert standing order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("standing order id: %w", err)
	}

	slog.InfoContext(ctx, "Standing order created",
		"id", id,
		"type", string(so.Type),
		"frequency", string(so.Every))
	return id, nil
}

// ListStandingOrders returns all of the user's standing orders, active
// and inactive, for the settings view.
func (r *SQLiteRepository) ListStandingOrders(ctx context.Context, userID int64) ([]StandingOrderState, error) {
	return r.queryStandingOrders(ctx,
		standingOrderSelect+" WHERE v.user_id = ? ORDER BY so.id", userID)
}

// ListActiveStandingOrders returns every active order across all users,
// for the scheduler.
func (r *SQLiteRepository) ListActiveStandingOrders(ctx context.Context) ([]StandingOrderState, error) {
	return r.queryStandingOrders(ctx,
		standingOrderSelect+" WHERE so.active = 1 ORDER BY so.id")
}

const standingOrderSelect = `
	SELECT so.id, so.vault_id, v.name, u.username, so.type, so.amount_cents, so.category,
	       so.description, so.frequency, so.start_date, so.end_date, so.last_run_date, so.active
	FROM standing_orders so
	JOIN vaults v ON v.id = so.vault_id
	JOIN users u ON u.id = v.user_id`

func (r *SQLiteRepository) queryStandingOrders(ctx context.Context, query string, args ...any) ([]StandingOrderState, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list standing orders: %w", err)
	}
	defer rows.Close()

	var orders []StandingOrderState
	for rows.Next() {
		var s StandingOrderState
		var typ, freq, start, end, lastRun string
		if err := rows.Scan(&s.ID, &s.VaultID, &s.VaultName, &s.Username, &typ, &s.Amount.Cents,
			&s.Category, &s.Description, &freq, &start, &end, &lastRun, &s.Active); err != nil {
			return nil, fmt.Errorf("scan standing order: %w", err)
		}
		s.Type = core.TransactionType(typ)
		s.Every = core.Frequency(freq)
		if s.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if s.EndDate, err = parseDate(end); err != nil {
			return nil, err
		}
		if s.LastRun, err = parseDate(lastRun); err != nil {
			return nil, err
		}
		orders = append(orders, s)
	}
	return orders, rows.Err()
}

// MarkStandingOrderRun records the date an order was last executed.
func (r *SQLiteRepository) MarkStandingOrderRun(ctx context.Context, id int64, ran core.Date) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE standing_orders SET last_run_date = ? WHERE id = ?", formatDate(ran), id); err != nil {
		return fmt.Errorf("mark standing order run: %w", err)
	}
	return nil
}

// SetStandingOrderActive enables or disables an order. The user id guards
// against toggling someone else's order.
func (r *SQLiteRepository) SetStandingOrderActive(ctx context.Context, userID, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE standing_orders SET active = ?
		 WHERE id = ? AND vault_id IN (SELECT id FROM vaults WHERE user_id = ?)`,
		active, id, userID)
	if err != nil {
		return fmt.Errorf("set standing order active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	slog.InfoContext(ctx, "Standing order toggled", "id", id, "active", active)
	return nil
}
