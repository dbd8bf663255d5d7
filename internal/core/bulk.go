package core

import (
	"fmt"
	"strings"
	"time"
)

// BulkErrorKind classifies validation failures for one bulk entry row.
type BulkErrorKind string

const (
	BulkEmptyBatch        BulkErrorKind = "empty_batch"
	BulkMissingField      BulkErrorKind = "missing_required_field"
	BulkInvalidAmount     BulkErrorKind = "invalid_amount"
	BulkInvalidVault      BulkErrorKind = "invalid_vault"
	BulkInvalidCategory   BulkErrorKind = "invalid_category"
	BulkInvalidUnit       BulkErrorKind = "invalid_unit"
	BulkInvalidDate       BulkErrorKind = "invalid_date"
	BulkInvalidUser       BulkErrorKind = "invalid_user"
	BulkInsufficientFunds BulkErrorKind = "insufficient_funds"
	BulkSameVault         BulkErrorKind = "same_vault_transfer"
)

// BulkRow is one row of a bulk entry batch, as submitted by the user.
// Amount is in cents and always positive; AmountSet distinguishes a missing
// amount from zero.
type BulkRow struct {
	RowNumber int
	Type      TransactionType
	Vault     string
	Amount    int64
	AmountSet bool
	Category  string
	Desc      string
	Quantity  float64
	Unit      string
	ToUser    string // transfers only
	ToVault   string // transfers only
	Date      string // optional, YYYY-MM-DD
}

// IsEmpty reports whether the row carries no data at all. Empty rows are
// skipped rather than rejected, so trailing blank grid rows do not fail a
// batch.
func (r BulkRow) IsEmpty() bool {
	return r.Type == "" && r.Vault == "" && !r.AmountSet && r.Category == "" && r.Desc == ""
}

// RowError is a validation failure tied to one row and field.
type RowError struct {
	RowNumber int
	Field     string
	Kind      BulkErrorKind
	Message   string
}

// BulkResult is the outcome of validating a batch.
type BulkResult struct {
	Valid      bool
	Errors     []RowError
	ValidCount int
	TotalCount int
}

// Summary returns a single human-readable line describing the outcome.
func (r BulkResult) Summary() string {
	if r.Valid {
		return fmt.Sprintf("All %d transactions are valid", r.TotalCount)
	}
	return fmt.Sprintf("Found %d errors in %d transactions", len(r.Errors), r.TotalCount)
}

// BulkLookup supplies the reference data the validator checks rows against.
// Implemented by the storage layer; a map-backed fake serves in tests.
type BulkLookup interface {
	VaultBalances(username string) (map[string]int64, error)
	VaultExists(username, vault string) (bool, error)
	UserExists(username string) (bool, error)
	CategoryNames() ([]string, error)
	UnitNames() ([]string, error)
}

// BulkValidator validates a batch of rows against current vault balances,
// carrying running balances forward so a later withdrawal sees the effect
// of an earlier deposit in the same batch.
type BulkValidator struct {
	lookup BulkLookup
}

func NewBulkValidator(lookup BulkLookup) *BulkValidator {
	return &BulkValidator{lookup: lookup}
}

// Validate checks every non-empty row for the given user. It never mutates
// anything; callers apply the batch only when Valid is true.
func (v *BulkValidator) Validate(username string, rows []BulkRow) (BulkResult, error) {
	var nonEmpty []BulkRow
	for _, r := range rows {
		if !r.IsEmpty() {
			nonEmpty = append(nonEmpty, r)
		}
	}

	if len(nonEmpty) == 0 {
		return BulkResult{
			Errors: []RowError{{
				Field:   "batch",
				Kind:    BulkEmptyBatch,
				Message: "No transactions to process",
			}},
		}, nil
	}

	balances, err := v.lookup.VaultBalances(username)
	if err != nil {
		return BulkResult{}, fmt.Errorf("load vault balances: %w", err)
	}
	running := make(map[string]int64, len(balances))
	for name, cents := range balances {
		running[name] = cents
	}

	categories, err := v.lookup.CategoryNames()
	if err != nil {
		return BulkResult{}, fmt.Errorf("load categories: %w", err)
	}
	units, err := v.lookup.UnitNames()
	if err != nil {
		return BulkResult{}, fmt.Errorf("load units: %w", err)
	}

	var errs []RowError
	failedRows := make(map[int]bool)
	for _, row := range nonEmpty {
		rowErrs := v.validateRow(username, row, running, categories, units)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			failedRows[row.RowNumber] = true
			continue
		}
		applyToRunning(row, running)
	}

	return BulkResult{
		Valid:      len(errs) == 0,
		Errors:     errs,
		ValidCount: len(nonEmpty) - len(failedRows),
		TotalCount: len(nonEmpty),
	}, nil
}

func (v *BulkValidator) validateRow(username string, row BulkRow, running map[string]int64, categories, units []string) []RowError {
	var errs []RowError

	if row.Type == "" {
		// Nothing else can be checked without a type.
		return []RowError{{
			RowNumber: row.RowNumber,
			Field:     "type",
			Kind:      BulkMissingField,
			Message:   "Transaction type is required",
		}}
	}
	if !row.Type.Valid() || row.Type == Loan {
		return []RowError{{
			RowNumber: row.RowNumber,
			Field:     "type",
			Kind:      BulkMissingField,
			Message:   fmt.Sprintf("Unsupported transaction type %q", row.Type),
		}}
	}

	errs = append(errs, v.validateCommon(username, row)...)

	switch row.Type {
	case Deposit:
		errs = append(errs, validateCategory(row, categories)...)
	case Withdraw:
		errs = append(errs, validateCategory(row, categories)...)
		errs = append(errs, validateUnit(row, units)...)
		errs = append(errs, validateFunds(row, row.Vault, running)...)
	case Transfer:
		errs = append(errs, v.validateTransfer(username, row, running)...)
	}

	return errs
}

func (v *BulkValidator) validateCommon(username string, row BulkRow) []RowError {
	var errs []RowError

	if row.Vault == "" {
		errs = append(errs, RowError{row.RowNumber, "vault", BulkMissingField, "Vault is required"})
	} else if ok, err := v.lookup.VaultExists(username, row.Vault); err != nil || !ok {
		errs = append(errs, RowError{row.RowNumber, "vault", BulkInvalidVault,
			fmt.Sprintf("Vault %q does not exist", row.Vault)})
	}

	if !row.AmountSet {
		errs = append(errs, RowError{row.RowNumber, "amount", BulkMissingField, "Amount is required"})
	} else if row.Amount <= 0 {
		errs = append(errs, RowError{row.RowNumber, "amount", BulkInvalidAmount, "Amount must be positive"})
	}

	if strings.TrimSpace(row.Desc) == "" {
		errs = append(errs, RowError{row.RowNumber, "description", BulkMissingField, "Description is required"})
	}

	if row.Date != "" {
		if _, err := time.Parse("2006-01-02", row.Date); err != nil {
			errs = append(errs, RowError{row.RowNumber, "date", BulkInvalidDate, "Date must be in YYYY-MM-DD format"})
		}
	}

	return errs
}

func (v *BulkValidator) validateTransfer(username string, row BulkRow, running map[string]int64) []RowError {
	var errs []RowError

	toUser := row.ToUser
	if toUser == "" {
		toUser = username
	}
	if toUser != username {
		if ok, err := v.lookup.UserExists(toUser); err != nil || !ok {
			errs = append(errs, RowError{row.RowNumber, "to_user", BulkInvalidUser,
				fmt.Sprintf("User %q does not exist", toUser)})
		}
	}

	if row.ToVault == "" {
		errs = append(errs, RowError{row.RowNumber, "to_vault", BulkMissingField, "Destination vault is required"})
	} else {
		if toUser == username && row.ToVault == row.Vault {
			errs = append(errs, RowError{row.RowNumber, "to_vault", BulkSameVault, "Cannot transfer to the same vault"})
		}
		if ok, err := v.lookup.VaultExists(toUser, row.ToVault); err != nil || !ok {
			errs = append(errs, RowError{row.RowNumber, "to_vault", BulkInvalidVault,
				fmt.Sprintf("Vault %q does not exist", row.ToVault)})
		}
	}

	errs = append(errs, validateFunds(row, row.Vault, running)...)
	return errs
}

func validateCategory(row BulkRow, categories []string) []RowError {
	if row.Category == "" {
		return []RowError{{row.RowNumber, "category", BulkMissingField, "Category is required"}}
	}
	for _, c := range categories {
		if c == row.Category {
			return nil
		}
	}
	return []RowError{{row.RowNumber, "category", BulkInvalidCategory,
		fmt.Sprintf("Category %q does not exist", row.Category)}}
}

func validateUnit(row BulkRow, units []string) []RowError {
	if row.Unit == "" {
		return nil // units are optional
	}
	for _, u := range units {
		if u == row.Unit {
			return nil
		}
	}
	return []RowError{{row.RowNumber, "unit", BulkInvalidUnit,
		fmt.Sprintf("Unit %q does not exist", row.Unit)}}
}

func validateFunds(row BulkRow, vault string, running map[string]int64) []RowError {
	if !row.AmountSet || row.Amount <= 0 || vault == "" {
		return nil // already reported by the common checks
	}
	balance, ok := running[vault]
	if !ok {
		return nil // unknown vault already reported
	}
	if balance < row.Amount {
		return []RowError{{row.RowNumber, "amount", BulkInsufficientFunds,
			fmt.Sprintf("Insufficient funds in %q: balance %s, required %s",
				vault, Money{Cents: balance}.Format(), Money{Cents: row.Amount}.Format())}}
	}
	return nil
}

// applyToRunning moves the row's amount through the running balances.
// Cross-user transfer credits are not tracked: the running map only covers
// the submitting user's vaults.
func applyToRunning(row BulkRow, running map[string]int64) {
	switch row.Type {
	case Deposit:
		running[row.Vault] += row.Amount
	case Withdraw:
		running[row.Vault] -= row.Amount
	case Transfer:
		running[row.Vault] -= row.Amount
		if row.ToUser == "" {
			if _, ok := running[row.ToVault]; ok {
				running[row.ToVault] += row.Amount
			}
		}
	}
}
