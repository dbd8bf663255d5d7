package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tesoro/internal/amqp"
	"tesoro/internal/export"
	"tesoro/internal/storage"
)

// startupConcurrency bounds parallel spreadsheet appends during the
// startup recovery pass.
const startupConcurrency = 4

// SyncStore is the slice of storage the worker needs to drain the
// export queue.
type SyncStore interface {
	GetSyncRow(ctx context.Context, id int64) (storage.SyncRow, error)
	ListPendingSync(ctx context.Context, limit int) ([]storage.PendingSyncEntry, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker pushes ledger rows from SQLite to the export target
// (Google Sheets in production).
type SyncWorker struct {
	store     SyncStore
	target    export.LedgerAppender
	batchSize int
}

func NewSyncWorker(store SyncStore, target export.LedgerAppender, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		target:    target,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single entry sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.EntrySyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	row, err := w.store.GetSyncRow(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}

	// The scheduler re-enqueues pending rows, so a message can arrive
	// for a row another consumer already exported.
	if row.SyncStatus == "synced" {
		slog.InfoContext(ctx, "Entry already synced, skipping", "id", msg.ID)
		return nil
	}

	if err := w.syncEntry(ctx, row); err != nil {
		return fmt.Errorf("sync entry to export target: %w", err)
	}

	return nil
}

// ProcessPending drains a batch of unsynced entries. This is a backup
// mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.ListPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending entries", "count", len(pending))

	for _, p := range pending {
		row, err := w.store.GetSyncRow(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load entry", "id", p.ID, "error", err)
			if err := w.store.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			continue
		}

		if err := w.syncEntry(ctx, row); err != nil {
			slog.ErrorContext(ctx, "Failed to sync entry", "id", p.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck syncs any entries left pending while the worker was
// down. It takes a larger batch than the periodic pass and fans out a
// few appends at a time.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.ListPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending entries for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending entries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending entries on startup, processing...",
		"count", len(pending))

	var synced, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(startupConcurrency)

	results := make([]error, len(pending))
	for i, p := range pending {
		g.Go(func() error {
			row, err := w.store.GetSyncRow(gctx, p.ID)
			if err != nil {
				slog.ErrorContext(gctx, "Failed to load entry for startup sync",
					"id", p.ID, "error", err)
				if err := w.store.MarkSyncError(gctx, p.ID); err != nil {
					slog.ErrorContext(gctx, "Failed to mark sync error", "id", p.ID, "error", err)
				}
				results[i] = err
				return nil
			}
			if err := w.syncEntry(gctx, row); err != nil {
				slog.ErrorContext(gctx, "Failed to sync entry during startup",
					"id", p.ID, "error", err)
				results[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}

	for _, err := range results {
		if err != nil {
			failed++
		} else {
			synced++
		}
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)

	return nil
}

func (w *SyncWorker) syncEntry(ctx context.Context, row storage.SyncRow) error {
	// Tag the description with a millisecond timestamp so identical
	// entries (standing orders especially) stay distinguishable on the
	// spreadsheet.
	out := export.Row{
		ID:          row.ID,
		Username:    row.Username,
		Vault:       row.Vault,
		Type:        row.Type,
		Amount:      row.Amount,
		Category:    row.Category,
		Description: fmt.Sprintf("%s [ts:%d]", row.Description, time.Now().UnixMilli()),
		Quantity:    row.Quantity,
		Unit:        row.Unit,
		Date:        row.Date,
	}

	ref, err := w.target.Append(ctx, out)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, row.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", row.ID, "error", markErr)
		}
		return fmt.Errorf("append to export target: %w", err)
	}

	if err := w.store.MarkSynced(ctx, row.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", row.ID, "error", err)
		// The append worked, so do not fail the message.
	}

	slog.InfoContext(ctx, "Successfully synced entry",
		"id", row.ID,
		"export_ref", ref,
		"description", row.Description,
		"amount_cents", row.Amount.Cents)

	return nil
}
