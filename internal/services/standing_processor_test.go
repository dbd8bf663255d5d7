package services

import (
	"context"
	"testing"
	"time"

	"tesoro/internal/core"
	"tesoro/internal/storage"
)

type standingFake struct {
	orders  []storage.StandingOrderState
	ran     map[int64]core.Date
	created []core.Transaction
	failAll bool
	nextID  int64
}

func newStandingFake() *standingFake {
	return &standingFake{ran: make(map[int64]core.Date)}
}

func (f *standingFake) ListActiveStandingOrders(context.Context) ([]storage.StandingOrderState, error) {
	return f.orders, nil
}

func (f *standingFake) MarkStandingOrderRun(_ context.Context, id int64, ran core.Date) error {
	f.ran[id] = ran
	return nil
}

func (f *standingFake) CreateEntry(_ context.Context, t core.Transaction) (int64, error) {
	if f.failAll {
		return 0, core.ErrInsufficientFunds
	}
	f.created = append(f.created, t)
	f.nextID++
	return f.nextID, nil
}

func order(id int64, typ core.TransactionType, freq core.Frequency, lastRun core.Date) storage.StandingOrderState {
	return storage.StandingOrderState{
		StandingOrder: core.StandingOrder{
			ID:          id,
			VaultID:     1,
			Type:        typ,
			Amount:      core.Money{Cents: 1000},
			Category:    "Other",
			Description: "rent",
			Every:       freq,
			StartDate:   core.NewDate(2026, 1, 5),
		},
		VaultName: "Main",
		Username:  "Alice",
		LastRun:   lastRun,
		Active:    true,
	}
}

func TestProcessDueExecutesDueOrders(t *testing.T) {
	fake := newStandingFake()
	fake.orders = []storage.StandingOrderState{
		order(1, core.Deposit, core.Daily, core.Date{}),               // never ran, due
		order(2, core.Withdraw, core.Daily, core.NewDate(2026, 3, 10)), // ran today, not due
		order(3, core.Withdraw, core.Monthly, core.NewDate(2026, 2, 5)), // new month, due
	}

	p := NewStandingProcessor(fake, fake)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	processed, err := p.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}

	if fake.created[0].Amount.Cents != 1000 {
		t.Errorf("deposit amount = %d, want 1000", fake.created[0].Amount.Cents)
	}
	if fake.created[1].Amount.Cents != -1000 {
		t.Errorf("withdrawal amount = %d, want -1000", fake.created[1].Amount.Cents)
	}
	if _, ok := fake.ran[1]; !ok {
		t.Error("order 1 run not recorded")
	}
	if _, ok := fake.ran[2]; ok {
		t.Error("order 2 should not have run")
	}
}

func TestProcessDueSkipsBeforeStartAndAfterEnd(t *testing.T) {
	fake := newStandingFake()

	notStarted := order(1, core.Deposit, core.Daily, core.Date{})
	notStarted.StartDate = core.NewDate(2026, 6, 1)

	ended := order(2, core.Deposit, core.Daily, core.Date{})
	ended.EndDate = core.NewDate(2026, 2, 1)

	fake.orders = []storage.StandingOrderState{notStarted, ended}

	p := NewStandingProcessor(fake, fake)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	processed, err := p.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if len(fake.created) != 0 {
		t.Errorf("created %d entries, want 0", len(fake.created))
	}
}

func TestProcessDueFailedEntryNotMarkedRun(t *testing.T) {
	fake := newStandingFake()
	fake.failAll = true
	fake.orders = []storage.StandingOrderState{
		order(1, core.Withdraw, core.Daily, core.Date{}),
	}

	p := NewStandingProcessor(fake, fake)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	processed, err := p.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	// not marked, so it retries once the vault is funded
	if _, ok := fake.ran[1]; ok {
		t.Error("failed order should not be marked as run")
	}
}
