package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"tesoro/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCreateUser(t *testing.T, repo *SQLiteRepository, username string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
	return u
}

func mustDeposit(t *testing.T, repo *SQLiteRepository, vaultID, cents int64) int64 {
	t.Helper()
	id, err := repo.Append(context.Background(), core.Transaction{
		VaultID:     vaultID,
		Type:        core.Deposit,
		Amount:      core.Money{Cents: cents},
		Category:    "Salary",
		Description: "pay",
		Date:        core.NewDate(2026, 8, 15),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	return id
}

func TestCreateUserMakesMainVault(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")

	vaults, err := repo.ListVaults(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListVaults() error = %v", err)
	}
	if len(vaults) != 1 || vaults[0].Name != core.DefaultVaultName {
		t.Errorf("new user vaults = %+v, want a single Main vault", vaults)
	}

	if _, err := repo.CreateUser(ctx, "Alice", "other"); !errors.Is(err, core.ErrUserExists) {
		t.Errorf("duplicate CreateUser error = %v, want ErrUserExists", err)
	}
}

func TestCreateUserClaimsCounterparty(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	ghost, err := repo.EnsureUser(ctx, "Bob")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if ghost.CanLogIn() {
		t.Fatal("counterparty account should not be able to log in")
	}

	claimed, err := repo.CreateUser(ctx, "Bob", "hash")
	if err != nil {
		t.Fatalf("CreateUser() after EnsureUser error = %v", err)
	}
	if claimed.ID != ghost.ID {
		t.Errorf("claimed ID = %d, want the counterparty's %d", claimed.ID, ghost.ID)
	}
	if !claimed.CanLogIn() {
		t.Error("claimed account should be able to log in")
	}
}

func TestBalanceGuardRejectsOverdraft(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	main, err := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	if err != nil {
		t.Fatalf("GetVault() error = %v", err)
	}
	mustDeposit(t, repo, main.ID, 1000)

	_, err = repo.Append(ctx, core.Transaction{
		VaultID:     main.ID,
		Type:        core.Withdraw,
		Amount:      core.Money{Cents: -1500},
		Category:    "Groceries",
		Description: "too much",
		Date:        core.NewDate(2026, 8, 16),
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientFunds", err)
	}

	got, err := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	if err != nil {
		t.Fatalf("GetVault() error = %v", err)
	}
	if got.Balance.Cents != 1000 {
		t.Errorf("balance after rejected overdraft = %d, want 1000", got.Balance.Cents)
	}
}

func TestAppendPairIsAtomic(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	main, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	mustDeposit(t, repo, main.ID, 1000)

	out := core.Transaction{
		VaultID: main.ID, Type: core.Transfer, Amount: core.Money{Cents: -400},
		Category: "Transfer", Description: "out", Date: core.NewDate(2026, 8, 17),
	}
	in := core.Transaction{
		VaultID: 9999, Type: core.Deposit, Amount: core.Money{Cents: 400},
		Category: "Transfer", Description: "in", Date: core.NewDate(2026, 8, 17),
	}
	if _, _, err := repo.AppendPair(ctx, out, in); !errors.Is(err, core.ErrUnknownVault) {
		t.Fatalf("AppendPair() error = %v, want ErrUnknownVault", err)
	}

	got, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	if got.Balance.Cents != 1000 {
		t.Errorf("balance after failed pair = %d, want 1000 (debit rolled back)", got.Balance.Cents)
	}
	entries, err := repo.ListLedger(ctx, u.ID, 2026, 8)
	if err != nil {
		t.Fatalf("ListLedger() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ledger rows = %d, want 1 (the seed deposit only)", len(entries))
	}
}

func TestAppendLoanAccumulates(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "Alice")
	bob, err := repo.EnsureUser(ctx, "Bob")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	aliceMain, _ := repo.GetVault(ctx, alice.ID, core.DefaultVaultName)
	bobMain, _ := repo.GetVault(ctx, bob.ID, core.DefaultVaultName)
	mustDeposit(t, repo, aliceMain.ID, 5000)

	lend := func(cents int64) {
		t.Helper()
		out := core.Transaction{
			VaultID: aliceMain.ID, Type: core.Loan, Amount: core.Money{Cents: -cents},
			Category: "Loan", Description: "lend", Date: core.NewDate(2026, 8, 18),
		}
		in := core.Transaction{
			VaultID: bobMain.ID, Type: core.Deposit, Amount: core.Money{Cents: cents},
			Category: "Loan", Description: "borrow", Date: core.NewDate(2026, 8, 18),
		}
		if _, _, err := repo.AppendLoan(ctx, out, in); err != nil {
			t.Fatalf("AppendLoan() error = %v", err)
		}
	}
	lend(1000)
	lend(500)

	loans, err := repo.ReadLoanOverview(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ReadLoanOverview() error = %v", err)
	}
	if len(loans) != 1 {
		t.Fatalf("loan positions = %d, want 1", len(loans))
	}
	got := loans[0]
	if got.Amount.Cents != 1500 {
		t.Errorf("accumulated loan = %d, want 1500", got.Amount.Cents)
	}
	if got.FromUser != "Alice" || got.ToUser != "Bob" {
		t.Errorf("loan parties = %s -> %s, want Alice -> Bob", got.FromUser, got.ToUser)
	}
}

func TestDeleteVaultMovesBalanceToMain(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	savings, err := repo.CreateVault(ctx, u.ID, "Savings")
	if err != nil {
		t.Fatalf("CreateVault() error = %v", err)
	}
	mustDeposit(t, repo, savings.ID, 2500)

	if err := repo.DeleteVault(ctx, u.ID, core.DefaultVaultName); !errors.Is(err, core.ErrMainVaultDelete) {
		t.Errorf("deleting Main error = %v, want ErrMainVaultDelete", err)
	}

	if err := repo.DeleteVault(ctx, u.ID, "Savings"); err != nil {
		t.Fatalf("DeleteVault() error = %v", err)
	}

	if _, err := repo.GetVault(ctx, u.ID, "Savings"); !errors.Is(err, core.ErrUnknownVault) {
		t.Errorf("deleted vault lookup error = %v, want ErrUnknownVault", err)
	}
	main, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	if main.Balance.Cents != 2500 {
		t.Errorf("Main balance after delete = %d, want 2500", main.Balance.Cents)
	}

	// History keeps the dead vault's name.
	entries, err := repo.ListLedger(ctx, u.ID, 2026, 8)
	if err != nil {
		t.Fatalf("ListLedger() error = %v", err)
	}
	if len(entries) != 1 || entries[0].VaultName != "Savings" {
		t.Errorf("history after delete = %+v, want the Savings deposit", entries)
	}

	// The name is reusable once the old vault is gone.
	if _, err := repo.CreateVault(ctx, u.ID, "Savings"); err != nil {
		t.Errorf("recreating a deleted vault name error = %v", err)
	}
}

func TestMonthSummaryAggregates(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	main, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)

	entries := []core.Transaction{
		{VaultID: main.ID, Type: core.Deposit, Amount: core.Money{Cents: 200000}, Category: "Salary", Description: "pay", Date: core.NewDate(2026, 8, 1)},
		{VaultID: main.ID, Type: core.Withdraw, Amount: core.Money{Cents: -5000}, Category: "Groceries", Description: "shop", Date: core.NewDate(2026, 8, 3)},
		{VaultID: main.ID, Type: core.Withdraw, Amount: core.Money{Cents: -7000}, Category: "Dining", Description: "out", Date: core.NewDate(2026, 8, 5)},
		// another month, must not count
		{VaultID: main.ID, Type: core.Withdraw, Amount: core.Money{Cents: -999}, Category: "Other", Description: "july", Date: core.NewDate(2026, 7, 30)},
	}
	if _, err := repo.AppendBatch(ctx, entries); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	s, err := repo.ReadMonthSummary(ctx, u.ID, 2026, 8)
	if err != nil {
		t.Fatalf("ReadMonthSummary() error = %v", err)
	}
	if s.Net.Cents != 188000 {
		t.Errorf("Net = %d, want 188000", s.Net.Cents)
	}
	if s.Spent.Cents != 12000 {
		t.Errorf("Spent = %d, want 12000", s.Spent.Cents)
	}
	if s.Received.Cents != 200000 {
		t.Errorf("Received = %d, want 200000", s.Received.Cents)
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Name != "Dining" {
		t.Errorf("ByCategory = %+v, want Dining first (biggest spend)", s.ByCategory)
	}
	if s.Total.Cents != 187001 {
		t.Errorf("Total = %d, want 187001 (all months counted)", s.Total.Cents)
	}
}

func TestSyncLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	main, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	id := mustDeposit(t, repo, main.ID, 4250)

	pending, err := repo.ListPendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingSync() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v, want the new row", pending)
	}

	row, err := repo.GetSyncRow(ctx, id)
	if err != nil {
		t.Fatalf("GetSyncRow() error = %v", err)
	}
	if row.Username != "Alice" || row.Vault != core.DefaultVaultName {
		t.Errorf("sync row names = %s/%s, want Alice/Main", row.Username, row.Vault)
	}
	if row.SyncStatus != "pending" {
		t.Errorf("SyncStatus = %q, want pending", row.SyncStatus)
	}

	if err := repo.MarkSynced(ctx, id); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	pending, _ = repo.ListPendingSync(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("pending after MarkSynced = %+v, want none", pending)
	}
	row, _ = repo.GetSyncRow(ctx, id)
	if row.SyncStatus != "synced" {
		t.Errorf("SyncStatus after MarkSynced = %q, want synced", row.SyncStatus)
	}

	if err := repo.MarkSyncError(ctx, id); err != nil {
		t.Fatalf("MarkSyncError() error = %v", err)
	}
	row, _ = repo.GetSyncRow(ctx, id)
	if row.SyncStatus != "error" {
		t.Errorf("SyncStatus after MarkSyncError = %q, want error", row.SyncStatus)
	}
}

func TestBulkLookupAgainstSeededTaxonomy(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	u := mustCreateUser(t, repo, "Alice")
	main, _ := repo.GetVault(ctx, u.ID, core.DefaultVaultName)
	mustDeposit(t, repo, main.ID, 300)

	if ok, err := repo.UserExists("Alice"); err != nil || !ok {
		t.Errorf("UserExists(Alice) = %v, %v", ok, err)
	}
	if ok, err := repo.UserExists("Nobody"); err != nil || ok {
		t.Errorf("UserExists(Nobody) = %v, %v", ok, err)
	}
	if ok, err := repo.VaultExists("Alice", core.DefaultVaultName); err != nil || !ok {
		t.Errorf("VaultExists(Alice, Main) = %v, %v", ok, err)
	}

	balances, err := repo.VaultBalances("Alice")
	if err != nil {
		t.Fatalf("VaultBalances() error = %v", err)
	}
	if balances[core.DefaultVaultName] != 300 {
		t.Errorf("Main balance = %d, want 300", balances[core.DefaultVaultName])
	}

	categories, units, err := repo.Taxonomy(ctx)
	if err != nil {
		t.Fatalf("Taxonomy() error = %v", err)
	}
	if !contains(categories, "Groceries") || !contains(categories, "Salary") {
		t.Errorf("categories = %v, want the seeded set", categories)
	}
	if !contains(units, "kg") {
		t.Errorf("units = %v, want the seeded set", units)
	}
}

func TestStandingOrderOwnershipGuard(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	alice := mustCreateUser(t, repo, "Alice")
	bob := mustCreateUser(t, repo, "Bob")
	main, _ := repo.GetVault(ctx, alice.ID, core.DefaultVaultName)

	id, err := repo.CreateStandingOrder(ctx, core.StandingOrder{
		VaultID: main.ID, Type: core.Withdraw, Amount: core.Money{Cents: 999},
		Category: "Leisure", Description: "subscription", Every: core.Monthly,
		StartDate: core.NewDate(2026, 8, 1),
	})
	if err != nil {
		t.Fatalf("CreateStandingOrder() error = %v", err)
	}

	if err := repo.SetStandingOrderActive(ctx, bob.ID, id, false); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("toggling another user's order error = %v, want sql.ErrNoRows", err)
	}
	if err := repo.SetStandingOrderActive(ctx, alice.ID, id, false); err != nil {
		t.Fatalf("SetStandingOrderActive() error = %v", err)
	}

	active, err := repo.ListActiveStandingOrders(ctx)
	if err != nil {
		t.Fatalf("ListActiveStandingOrders() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active orders after pause = %d, want 0", len(active))
	}

	all, err := repo.ListStandingOrders(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListStandingOrders() error = %v", err)
	}
	if len(all) != 1 || all[0].Active {
		t.Errorf("orders = %+v, want the paused order listed", all)
	}

	ran := core.NewDate(2026, 8, 20)
	if err := repo.MarkStandingOrderRun(ctx, id, ran); err != nil {
		t.Fatalf("MarkStandingOrderRun() error = %v", err)
	}
	all, _ = repo.ListStandingOrders(ctx, alice.ID)
	if all[0].LastRun.IsZero() || all[0].LastRun.Day() != 20 {
		t.Errorf("LastRun = %v, want 2026-08-20", all[0].LastRun)
	}
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
