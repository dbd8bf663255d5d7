// Package services orchestrates ledger operations across storage and
// the export queue.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tesoro/internal/core"
)

// LedgerStore is the slice of the repository the ledger service needs.
type LedgerStore interface {
	GetUser(ctx context.Context, username string) (core.User, error)
	EnsureUser(ctx context.Context, username string) (core.User, error)
	GetVault(ctx context.Context, userID int64, name string) (core.Vault, error)
	Taxonomy(ctx context.Context) (categories, units []string, err error)
	Append(ctx context.Context, t core.Transaction) (int64, error)
	AppendPair(ctx context.Context, out, in core.Transaction) (int64, int64, error)
	AppendLoan(ctx context.Context, out, in core.Transaction) (int64, int64, error)
}

// SyncPublisher enqueues export requests. Nil-able: without a broker the
// ledger still works, rows just wait for the scheduler.
type SyncPublisher interface {
	PublishEntrySync(ctx context.Context, id, version int64) error
}

// LedgerService applies deposits, withdrawals, transfers and loans. The
// database write always comes first; the export message is best effort
// and never fails the request.
type LedgerService struct {
	store     LedgerStore
	publisher SyncPublisher
}

func NewLedgerService(store LedgerStore, publisher SyncPublisher) *LedgerService {
	return &LedgerService{store: store, publisher: publisher}
}

// EntryParams describes a single-vault deposit or withdrawal. Amount is
// always positive; the operation decides the sign.
type EntryParams struct {
	Vault       string
	Amount      core.Money
	Category    string
	Description string
	Quantity    float64
	Unit        string
	Date        core.Date // zero means today
}

// TransferParams describes moving money between two vaults. ToUser empty
// means one of the caller's own vaults.
type TransferParams struct {
	FromVault   string
	ToUser      string
	ToVault     string
	Amount      core.Money
	Description string
	Date        core.Date
}

func entryDate(d core.Date) core.Date {
	if d.IsZero() {
		now := time.Now()
		return core.NewDate(now.Year(), int(now.Month()), now.Day())
	}
	return d
}

// Deposit adds money to one of the user's vaults.
func (s *LedgerService) Deposit(ctx context.Context, userID int64, p EntryParams) (core.Transaction, error) {
	return s.appendSingle(ctx, userID, core.Deposit, p)
}

// Withdraw removes money from one of the user's vaults. Fails with
// core.ErrInsufficientFunds when the vault cannot cover the amount.
func (s *LedgerService) Withdraw(ctx context.Context, userID int64, p EntryParams) (core.Transaction, error) {
	return s.appendSingle(ctx, userID, core.Withdraw, p)
}

func (s *LedgerService) appendSingle(ctx context.Context, userID int64, typ core.TransactionType, p EntryParams) (core.Transaction, error) {
	if err := p.Amount.Validate(); err != nil {
		return core.Transaction{}, err
	}

	vault, err := s.store.GetVault(ctx, userID, core.CanonicalName(p.Vault))
	if err != nil {
		return core.Transaction{}, err
	}

	amount := p.Amount
	if typ.Outflow() {
		amount = amount.Neg()
	}

	t := core.Transaction{
		VaultID:     vault.ID,
		Type:        typ,
		Amount:      amount,
		Category:    p.Category,
		Description: p.Description,
		Quantity:    p.Quantity,
		Unit:        p.Unit,
		Date:        entryDate(p.Date),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkTaxonomy(ctx, t.Category, t.Unit); err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.Append(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id

	s.publishSync(ctx, id)
	return t, nil
}

// CreateEntry appends an already-built transaction, for callers that
// resolved the vault themselves (standing orders, bulk application).
func (s *LedgerService) CreateEntry(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	id, err := s.store.Append(ctx, t)
	if err != nil {
		return 0, err
	}
	s.publishSync(ctx, id)
	return id, nil
}

// Transfer moves money between vaults, the caller's own or another
// user's. The recipient must already exist; transfers never create
// accounts. Both ledger rows are written in one database transaction.
func (s *LedgerService) Transfer(ctx context.Context, user core.User, p TransferParams) error {
	out, in, err := s.buildPair(ctx, user, p, core.Transfer, false)
	if err != nil {
		return err
	}

	outID, inID, err := s.store.AppendPair(ctx, out, in)
	if err != nil {
		return err
	}

	s.publishSync(ctx, outID)
	s.publishSync(ctx, inID)
	return nil
}

// Loan is a transfer that also accumulates the owed amount per vault
// pair. Unknown recipients are created as counterparty accounts, so you
// can lend to someone before they ever sign up.
func (s *LedgerService) Loan(ctx context.Context, user core.User, p TransferParams) error {
	out, in, err := s.buildPair(ctx, user, p, core.Loan, true)
	if err != nil {
		return err
	}

	outID, inID, err := s.store.AppendLoan(ctx, out, in)
	if err != nil {
		return err
	}

	s.publishSync(ctx, outID)
	s.publishSync(ctx, inID)
	return nil
}

func (s *LedgerService) buildPair(ctx context.Context, user core.User, p TransferParams, typ core.TransactionType, createRecipient bool) (out, in core.Transaction, err error) {
	if err := p.Amount.Validate(); err != nil {
		return out, in, err
	}

	fromName := core.CanonicalName(p.FromVault)
	toName := core.CanonicalName(p.ToVault)
	toUsername := core.CanonicalName(p.ToUser)
	if toUsername == "" {
		toUsername = user.Username
	}

	if toUsername == user.Username && toName == fromName {
		return out, in, core.ErrSameVaultTransfer
	}

	fromVault, err := s.store.GetVault(ctx, user.ID, fromName)
	if err != nil {
		return out, in, err
	}

	recipient := user
	if toUsername != user.Username {
		if createRecipient {
			recipient, err = s.store.EnsureUser(ctx, toUsername)
		} else {
			recipient, err = s.store.GetUser(ctx, toUsername)
		}
		if err != nil {
			return out, in, err
		}
	}

	toVault, err := s.store.GetVault(ctx, recipient.ID, toName)
	if err != nil {
		return out, in, err
	}

	category := "Transfer"
	if typ == core.Loan {
		category = "Loan"
	}
	description := p.Description
	if description == "" {
		description = fmt.Sprintf("%s to %s/%s", category, toUsername, toName)
	}
	inDescription := p.Description
	if inDescription == "" {
		inDescription = fmt.Sprintf("%s from %s/%s", category, user.Username, fromName)
	}

	date := entryDate(p.Date)
	out = core.Transaction{
		VaultID:     fromVault.ID,
		Type:        typ,
		Amount:      p.Amount.Neg(),
		Category:    category,
		Description: description,
		Date:        date,
	}
	in = core.Transaction{
		VaultID:     toVault.ID,
		Type:        core.Deposit,
		Amount:      p.Amount,
		Category:    category,
		Description: inDescription,
		Date:        date,
	}

	if err := out.Validate(); err != nil {
		return out, in, err
	}
	if err := in.Validate(); err != nil {
		return out, in, err
	}
	return out, in, nil
}

// checkTaxonomy rejects categories and units outside the seeded tables,
// matching what bulk validation enforces. Units are optional.
func (s *LedgerService) checkTaxonomy(ctx context.Context, category, unit string) error {
	categories, units, err := s.store.Taxonomy(ctx)
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}
	if !containsName(categories, category) {
		return fmt.Errorf("%w: %q", core.ErrUnknownCategory, category)
	}
	if unit != "" && !containsName(units, unit) {
		return fmt.Errorf("%w: %q", core.ErrUnknownUnit, unit)
	}
	return nil
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func (s *LedgerService) publishSync(ctx context.Context, id int64) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "No broker configured, entry waits for the scheduler", "id", id)
		return
	}
	if err := s.publisher.PublishEntrySync(ctx, id, 1); err != nil {
		// The entry is already saved; the scheduler will pick it up.
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
}
