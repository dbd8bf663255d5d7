package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tesoro/internal/core"
	"tesoro/internal/storage"
)

// StandingStore is the repository surface the standing order processor
// needs.
type StandingStore interface {
	ListActiveStandingOrders(ctx context.Context) ([]storage.StandingOrderState, error)
	MarkStandingOrderRun(ctx context.Context, id int64, ran core.Date) error
}

// EntryCreator appends one ledger entry. Satisfied by LedgerService.
type EntryCreator interface {
	CreateEntry(ctx context.Context, t core.Transaction) (int64, error)
}

// StandingProcessor turns due standing orders into ledger entries. One
// order failing never blocks the rest of the run.
type StandingProcessor struct {
	store   StandingStore
	creator EntryCreator
}

func NewStandingProcessor(store StandingStore, creator EntryCreator) *StandingProcessor {
	return &StandingProcessor{store: store, creator: creator}
}

// ProcessDue executes every active order that is due at now and returns
// how many entries were created.
func (p *StandingProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.creator == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	orders, err := p.store.ListActiveStandingOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active standing orders: %w", err)
	}

	slog.InfoContext(ctx, "Processing standing orders",
		"total_active", len(orders),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, order := range orders {
		if now.Before(order.StartDate.Time) {
			continue
		}
		if !order.EndDate.IsZero() && now.After(order.EndDate.Time.AddDate(0, 0, 1)) {
			continue
		}

		checker, err := GetDuenessChecker(order.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping standing order",
				"id", order.ID, "error", err)
			continue
		}
		if !checker.IsDue(order.LastRun.Time, now, order.StartDate) {
			continue
		}

		amount := order.Amount
		if order.Type == core.Withdraw {
			amount = amount.Neg()
		}
		entry := core.Transaction{
			VaultID:     order.VaultID,
			Type:        order.Type,
			Amount:      amount,
			Category:    order.Category,
			Description: order.Description,
			Date:        core.NewDate(now.Year(), int(now.Month()), now.Day()),
		}

		if _, err := p.creator.CreateEntry(ctx, entry); err != nil {
			// An underfunded vault retries on the next tick once money
			// arrives; everything else is logged and skipped too.
			level := slog.LevelError
			if errors.Is(err, core.ErrInsufficientFunds) {
				level = slog.LevelWarn
			}
			slog.LogAttrs(ctx, level, "Failed to execute standing order",
				slog.Int64("id", order.ID),
				slog.String("vault", order.VaultName),
				slog.String("username", order.Username),
				slog.String("error", err.Error()))
			continue
		}

		ran := core.NewDate(now.Year(), int(now.Month()), now.Day())
		if err := p.store.MarkStandingOrderRun(ctx, order.ID, ran); err != nil {
			// Entry exists; worst case the order fires again next tick.
			slog.ErrorContext(ctx, "Failed to record standing order run",
				"id", order.ID, "error", err)
		}

		processed++
		slog.InfoContext(ctx, "Executed standing order",
			"id", order.ID,
			"description", order.Description,
			"amount_cents", order.Amount.Cents,
			"frequency", string(order.Every))
	}

	slog.InfoContext(ctx, "Standing order processing complete",
		"processed", processed,
		"total_checked", len(orders))
	return processed, nil
}
