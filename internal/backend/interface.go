// Package backend selects the persistence layer at startup: SQLite for
// real deployments, an in-memory store for development and tests.
package backend

import (
	"context"

	"tesoro/internal/core"
	"tesoro/internal/storage"
)

// Store is everything the HTTP layer, the CLI and the workers need from
// persistence. *storage.SQLiteRepository and *MemoryStore both satisfy it.
type Store interface {
	// Users
	CreateUser(ctx context.Context, username, passwordHash string) (core.User, error)
	GetUser(ctx context.Context, username string) (core.User, error)
	EnsureUser(ctx context.Context, username string) (core.User, error)

	// Vaults
	CreateVault(ctx context.Context, userID int64, name string) (core.Vault, error)
	GetVault(ctx context.Context, userID int64, name string) (core.Vault, error)
	ListVaults(ctx context.Context, userID int64) ([]core.Vault, error)
	DeleteVault(ctx context.Context, userID int64, name string) error

	// Ledger
	Append(ctx context.Context, t core.Transaction) (int64, error)
	AppendPair(ctx context.Context, out, in core.Transaction) (outID, inID int64, err error)
	AppendLoan(ctx context.Context, out, in core.Transaction) (outID, inID int64, err error)
	AppendBatch(ctx context.Context, entries []core.Transaction) ([]int64, error)
	ListLedger(ctx context.Context, userID int64, year, month int) ([]storage.LedgerEntry, error)
	ListLedgerAll(ctx context.Context, userID int64) ([]storage.LedgerEntry, error)

	// Aggregates
	ReadMonthSummary(ctx context.Context, userID int64, year, month int) (core.MonthSummary, error)
	ReadLoanOverview(ctx context.Context, userID int64) ([]core.LoanBalance, error)

	// Export queue
	ListPendingSync(ctx context.Context, limit int) ([]storage.PendingSyncEntry, error)
	GetSyncRow(ctx context.Context, id int64) (storage.SyncRow, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error

	// Standing orders
	CreateStandingOrder(ctx context.Context, so core.StandingOrder) (int64, error)
	ListStandingOrders(ctx context.Context, userID int64) ([]storage.StandingOrderState, error)
	ListActiveStandingOrders(ctx context.Context) ([]storage.StandingOrderState, error)
	MarkStandingOrderRun(ctx context.Context, id int64, ran core.Date) error
	SetStandingOrderActive(ctx context.Context, userID, id int64, active bool) error

	// Bulk-entry lookups and taxonomy
	core.BulkLookup
	Taxonomy(ctx context.Context) (categories, units []string, err error)

	Close() error
}

// CleanupFunc releases backend resources at shutdown.
type CleanupFunc func() error

// Type names a persistence backend.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) String() string { return string(t) }

// IsValid reports whether the backend type is one this build knows.
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}
