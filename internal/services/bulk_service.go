package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tesoro/internal/core"
)

// BulkStore is the repository surface bulk processing needs: reference
// data for validation plus atomic batch application.
type BulkStore interface {
	core.BulkLookup
	GetUser(ctx context.Context, username string) (core.User, error)
	GetVault(ctx context.Context, userID int64, name string) (core.Vault, error)
	AppendBatch(ctx context.Context, entries []core.Transaction) ([]int64, error)
}

// BulkService validates a batch of entry rows and, only when every row
// passes, applies them all in one database transaction.
type BulkService struct {
	store     BulkStore
	publisher SyncPublisher
}

func NewBulkService(store BulkStore, publisher SyncPublisher) *BulkService {
	return &BulkService{store: store, publisher: publisher}
}

// Validate checks the batch without touching the ledger.
func (s *BulkService) Validate(user core.User, rows []core.BulkRow) (core.BulkResult, error) {
	return core.NewBulkValidator(s.store).Validate(user.Username, rows)
}

// Process validates and applies a batch. On validation failure the
// result carries the per-row errors and nothing is written.
func (s *BulkService) Process(ctx context.Context, user core.User, rows []core.BulkRow) (core.BulkResult, error) {
	result, err := s.Validate(user, rows)
	if err != nil {
		return core.BulkResult{}, err
	}
	if !result.Valid {
		return result, nil
	}

	var entries []core.Transaction
	for _, row := range rows {
		if row.IsEmpty() {
			continue
		}
		rowEntries, err := s.rowToEntries(ctx, user, row)
		if err != nil {
			return core.BulkResult{}, fmt.Errorf("row %d: %w", row.RowNumber, err)
		}
		entries = append(entries, rowEntries...)
	}

	ids, err := s.store.AppendBatch(ctx, entries)
	if err != nil {
		return core.BulkResult{}, err
	}

	for _, id := range ids {
		s.publishSync(ctx, id)
	}

	slog.InfoContext(ctx, "Bulk batch applied",
		"username", user.Username,
		"rows", result.TotalCount,
		"entries", len(ids))
	return result, nil
}

// rowToEntries resolves a validated row into one or two ledger entries.
// Transfers become a debit plus a credit, like the single-entry path.
func (s *BulkService) rowToEntries(ctx context.Context, user core.User, row core.BulkRow) ([]core.Transaction, error) {
	date, err := bulkRowDate(row.Date)
	if err != nil {
		return nil, err
	}

	vault, err := s.store.GetVault(ctx, user.ID, row.Vault)
	if err != nil {
		return nil, err
	}

	switch row.Type {
	case core.Deposit:
		return []core.Transaction{{
			VaultID:     vault.ID,
			Type:        core.Deposit,
			Amount:      core.Money{Cents: row.Amount},
			Category:    row.Category,
			Description: row.Desc,
			Quantity:    row.Quantity,
			Unit:        row.Unit,
			Date:        date,
		}}, nil

	case core.Withdraw:
		return []core.Transaction{{
			VaultID:     vault.ID,
			Type:        core.Withdraw,
			Amount:      core.Money{Cents: -row.Amount},
			Category:    row.Category,
			Description: row.Desc,
			Quantity:    row.Quantity,
			Unit:        row.Unit,
			Date:        date,
		}}, nil

	case core.Transfer:
		recipient := user
		toUsername := row.ToUser
		if toUsername == "" {
			toUsername = user.Username
		}
		if toUsername != user.Username {
			recipient, err = s.store.GetUser(ctx, toUsername)
			if err != nil {
				return nil, err
			}
		}
		toVault, err := s.store.GetVault(ctx, recipient.ID, row.ToVault)
		if err != nil {
			return nil, err
		}
		return []core.Transaction{
			{
				VaultID:     vault.ID,
				Type:        core.Transfer,
				Amount:      core.Money{Cents: -row.Amount},
				Category:    "Transfer",
				Description: row.Desc,
				Date:        date,
			},
			{
				VaultID:     toVault.ID,
				Type:        core.Deposit,
				Amount:      core.Money{Cents: row.Amount},
				Category:    "Transfer",
				Description: row.Desc,
				Date:        date,
			},
		}, nil
	}

	return nil, fmt.Errorf("unsupported bulk type %q", row.Type)
}

func bulkRowDate(s string) (core.Date, error) {
	if s == "" {
		now := time.Now()
		return core.NewDate(now.Year(), int(now.Month()), now.Day()), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func (s *BulkService) publishSync(ctx context.Context, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEntrySync(ctx, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
}
