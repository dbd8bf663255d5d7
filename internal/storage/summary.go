package storage

import (
	"context"
	"fmt"

	"tesoro/internal/core"
)

// ReadMonthSummary aggregates one user's month: signed net movement,
// spending and income totals, a per-category spending breakdown and the
// current balance of every live vault.
func (r *SQLiteRepository) ReadMonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error) {
	summary := core.MonthSummary{Year: year, Month: month}

	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(t.amount_cents), 0),
		        COALESCE(SUM(CASE WHEN t.amount_cents < 0 THEN -t.amount_cents ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN t.amount_cents > 0 THEN t.amount_cents ELSE 0 END), 0)
		 FROM transactions t JOIN vaults v ON v.id = t.vault_id
		 WHERE v.user_id = ? AND t.year = ? AND t.month = ?`,
		userID, year, month).
		Scan(&summary.Net.Cents, &summary.Spent.Cents, &summary.Received.Cents)
	if err != nil {
		return summary, fmt.Errorf("get month totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT t.category, SUM(-t.amount_cents)
		 FROM transactions t JOIN vaults v ON v.id = t.vault_id
		 WHERE v.user_id = ? AND t.year = ? AND t.month = ? AND t.amount_cents < 0
		 GROUP BY t.category
		 ORDER BY SUM(-t.amount_cents) DESC`,
		userID, year, month)
	if err != nil {
		return summary, fmt.Errorf("get category sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return summary, fmt.Errorf("scan category sum: %w", err)
		}
		summary.ByCategory = append(summary.ByCategory, ca)
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("category sums: %w", err)
	}

	vaults, err := r.ListVaults(ctx, userID)
	if err != nil {
		return summary, err
	}
	for _, v := range vaults {
		summary.Vaults = append(summary.Vaults, core.VaultBalance{Name: v.Name, Balance: v.Balance})
		summary.Total.Cents += v.Balance.Cents
	}

	return summary, nil
}

// ReadLoanOverview lists the outstanding loan positions touching any of
// the user's vaults. Settled pairs (zero balance) are omitted.
func (r *SQLiteRepository) ReadLoanOverview(ctx context.Context, userID int64) ([]core.LoanBalance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT fu.username, fv.name, tu.username, tv.name, l.amount_cents
		 FROM loans l
		 JOIN vaults fv ON fv.id = l.from_vault_id
		 JOIN users fu ON fu.id = fv.user_id
		 JOIN vaults tv ON tv.id = l.to_vault_id
		 JOIN users tu ON tu.id = tv.user_id
		 WHERE (fv.user_id = ? OR tv.user_id = ?) AND l.amount_cents != 0
		 ORDER BY l.updated_at DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []core.LoanBalance
	for rows.Next() {
		var lb core.LoanBalance
		if err := rows.Scan(&lb.FromUser, &lb.FromVault, &lb.ToUser, &lb.ToVault, &lb.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, lb)
	}
	return loans, rows.Err()
}
