package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"tesoro/internal/core"
)

// LedgerEntry is a transaction joined with the name of the vault it
// belongs to, for history views and CSV export.
type LedgerEntry struct {
	core.Transaction
	VaultName string
}

// applyEntry moves the entry's signed amount through the vault balance
// and appends the ledger row, all inside the caller's transaction.
// Outflows are guarded: the update only matches when enough money is
// left, so concurrent withdrawals serialize on the database instead of
// racing in Go.
func applyEntry(ctx context.Context, tx *sql.Tx, t core.Transaction) (int64, error) {
	var res sql.Result
	var err error
	if t.Amount.Cents < 0 {
		res, err = tx.ExecContext(ctx,
			"UPDATE vaults SET balance_cents = balance_cents + ? WHERE id = ? AND deleted = 0 AND balance_cents + ? >= 0",
			t.Amount.Cents, t.VaultID, t.Amount.Cents)
	} else {
		res, err = tx.ExecContext(ctx,
			"UPDATE vaults SET balance_cents = balance_cents + ? WHERE id = ? AND deleted = 0",
			t.Amount.Cents, t.VaultID)
	}
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int64
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM vaults WHERE id = ? AND deleted = 0", t.VaultID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.ErrUnknownVault
		}
		if err != nil {
			return 0, fmt.Errorf("check vault: %w", err)
		}
		return 0, core.ErrInsufficientFunds
	}

	ins, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (vault_id, type, amount_cents, category, description, quantity, unit, day, month, year)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.VaultID, string(t.Type), t.Amount.Cents, t.Category, t.Description,
		t.Quantity, t.Unit, t.Date.Day(), t.Date.Month(), t.Date.Year())
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}
	return id, nil
}

// Append records a single deposit or withdrawal.
func (r *SQLiteRepository) Append(ctx context.Context, t core.Transaction) (int64, error) {
	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = applyEntry(ctx, tx, t)
		return err
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"type", string(t.Type),
		"vault_id", t.VaultID,
		"amount_cents", t.Amount.Cents)
	return id, nil
}

// AppendPair records the two legs of a transfer atomically. The debit is
// guarded, so an underfunded source vault fails the whole pair.
func (r *SQLiteRepository) AppendPair(ctx context.Context, out, in core.Transaction) (outID, inID int64, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if outID, err = applyEntry(ctx, tx, out); err != nil {
			return err
		}
		inID, err = applyEntry(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	slog.InfoContext(ctx, "Transfer saved",
		"out_id", outID,
		"in_id", inID,
		"amount_cents", in.Amount.Cents)
	return outID, inID, nil
}

// AppendLoan records a loan transfer and accumulates the owed amount in
// the loans table, keyed by the vault pair.
func (r *SQLiteRepository) AppendLoan(ctx context.Context, out, in core.Transaction) (outID, inID int64, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if outID, err = applyEntry(ctx, tx, out); err != nil {
			return err
		}
		if inID, err = applyEntry(ctx, tx, in); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO loans (from_vault_id, to_vault_id, amount_cents) VALUES (?, ?, ?)
			 ON CONFLICT (from_vault_id, to_vault_id) DO UPDATE
			 SET amount_cents = amount_cents + excluded.amount_cents, updated_at = CURRENT_TIMESTAMP`,
			out.VaultID, in.VaultID, in.Amount.Cents)
		if err != nil {
			return fmt.Errorf("upsert loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	slog.InfoContext(ctx, "Loan saved",
		"from_vault_id", out.VaultID,
		"to_vault_id", in.VaultID,
		"amount_cents", in.Amount.Cents)
	return outID, inID, nil
}

// AppendBatch records every entry in one transaction. Any failing entry
// rolls the whole batch back.
func (r *SQLiteRepository) AppendBatch(ctx context.Context, entries []core.Transaction) ([]int64, error) {
	ids := make([]int64, 0, len(entries))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			id, err := applyEntry(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("entry %q: %w", e.Description, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Batch saved", "count", len(ids))
	return ids, nil
}

// ListLedger returns the user's transactions for one month, newest first.
func (r *SQLiteRepository) ListLedger(ctx context.Context, userID int64, year, month int) ([]LedgerEntry, error) {
	return r.queryLedger(ctx,
		`SELECT t.id, v.name, t.type, t.amount_cents, t.category, t.description, t.quantity, t.unit, t.day, t.month, t.year, t.vault_id
		 FROM transactions t JOIN vaults v ON v.id = t.vault_id
		 WHERE v.user_id = ? AND t.year = ? AND t.month = ?
		 ORDER BY t.id DESC`,
		userID, year, month)
}

// ListLedgerAll returns the user's complete transaction history.
func (r *SQLiteRepository) ListLedgerAll(ctx context.Context, userID int64) ([]LedgerEntry, error) {
	return r.queryLedger(ctx,
		`SELECT t.id, v.name, t.type, t.amount_cents, t.category, t.description, t.quantity, t.unit, t.day, t.month, t.year, t.vault_id
		 FROM transactions t JOIN vaults v ON v.id = t.vault_id
		 WHERE v.user_id = ?
		 ORDER BY t.year, t.month, t.day, t.id`,
		userID)
}

func (r *SQLiteRepository) queryLedger(ctx context.Context, query string, args ...any) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var typ string
		var day, month, year int
		if err := rows.Scan(&e.ID, &e.VaultName, &typ, &e.Amount.Cents, &e.Category,
			&e.Description, &e.Quantity, &e.Unit, &day, &month, &year, &e.VaultID); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = core.TransactionType(typ)
		e.Date = core.NewDate(year, month, day)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
