package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tesoro/internal/core"
)

// PendingSyncEntry is the minimal identity of a ledger row awaiting
// export, enough to build a queue message.
type PendingSyncEntry struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// SyncRow is one ledger row denormalized for export: usernames and vault
// names instead of ids, ready to become a spreadsheet row.
type SyncRow struct {
	ID          int64
	Version     int64
	Username    string
	Vault       string
	Type        core.TransactionType
	Amount      core.Money
	Category    string
	Description string
	Quantity    float64
	Unit        string
	Date        core.Date
	SyncStatus  string
}

// ListPendingSync returns up to limit unsynced ledger rows, oldest first.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]PendingSyncEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, version, created_at FROM transactions WHERE sync_status = 'pending' ORDER BY id LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncEntry
	for rows.Next() {
		var p PendingSyncEntry
		if err := rows.Scan(&p.ID, &p.Version, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// GetSyncRow loads one ledger row with its owner and vault names.
func (r *SQLiteRepository) GetSyncRow(ctx context.Context, id int64) (SyncRow, error) {
	var row SyncRow
	var typ string
	var day, month, year int
	err := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.version, u.username, v.name, t.type, t.amount_cents, t.category,
		        t.description, t.quantity, t.unit, t.day, t.month, t.year, t.sync_status
		 FROM transactions t
		 JOIN vaults v ON v.id = t.vault_id
		 JOIN users u ON u.id = v.user_id
		 WHERE t.id = ?`, id).
		Scan(&row.ID, &row.Version, &row.Username, &row.Vault, &typ, &row.Amount.Cents,
			&row.Category, &row.Description, &row.Quantity, &row.Unit, &day, &month, &year, &row.SyncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRow{}, fmt.Errorf("transaction %d not found", id)
	}
	if err != nil {
		return SyncRow{}, fmt.Errorf("get sync row: %w", err)
	}
	row.Type = core.TransactionType(typ)
	row.Date = core.NewDate(year, month, day)
	return row, nil
}

// MarkSynced records a successful export of the ledger row.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError flags the row so the scheduler stops retrying it until
// someone looks at it.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET sync_status = 'error' WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}
