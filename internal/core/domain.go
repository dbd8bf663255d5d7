package core

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

const (
	Deposit  TransactionType = "deposit"
	Withdraw TransactionType = "withdraw"
	Transfer TransactionType = "transfer"
	Loan     TransactionType = "loan"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// DefaultVaultName is created for every new user and cannot be removed.
const DefaultVaultName = "Main"

const maxDescriptionLen = 200

type (
	TransactionType string

	Frequency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// User is an account holder. PasswordHash is empty for loan-only
	// counterparties: they appear in the users table so loans can point at
	// them, but they cannot log in.
	User struct {
		ID           int64
		Username     string
		PasswordHash string
	}

	// Vault is a named bucket of money belonging to one user.
	Vault struct {
		ID      int64
		UserID  int64
		Name    string
		Balance Money
	}

	// Transaction is one ledger row. Amount is signed: positive for money
	// entering the vault, negative for money leaving it.
	Transaction struct {
		ID          int64
		VaultID     int64
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		Quantity    float64 // 0 when not set
		Unit        string  // empty when not set
		Date        Date
	}

	// LoanBalance is the accumulated amount owed from one vault to another.
	LoanBalance struct {
		FromUser  string
		FromVault string
		ToUser    string
		ToVault   string
		Amount    Money
	}

	// StandingOrder is a template for a recurring deposit or withdrawal.
	StandingOrder struct {
		ID          int64
		VaultID     int64
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		Every       Frequency
		StartDate   Date
		EndDate     Date // zero when open-ended
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptyVaultName    = errors.New("empty vault name")
	ErrEmptyUsername     = errors.New("empty username")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameVaultTransfer = errors.New("cannot transfer to the same vault")
	ErrUserExists        = errors.New("username already exists")
	ErrUnknownUser       = errors.New("unknown user")
	ErrUnknownVault      = errors.New("unknown vault")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrVaultExists       = errors.New("vault already exists")
	ErrWrongPassword     = errors.New("wrong password")
	ErrPasswordMismatch  = errors.New("passwords must match")
	ErrMainVaultDelete   = errors.New("the Main vault cannot be removed")
)

func (t TransactionType) Valid() bool {
	switch t {
	case Deposit, Withdraw, Transfer, Loan:
		return true
	}
	return false
}

// Outflow reports whether this transaction type removes money from the
// originating vault.
func (t TransactionType) Outflow() bool {
	return t == Withdraw || t == Transfer || t == Loan
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) Day() int   { return d.Time.Day() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Year() int  { return d.Time.Year() }

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Neg returns the amount with the sign flipped.
func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

// CanonicalName normalizes usernames and vault names the way the ledger
// stores them: trimmed, first rune upper-cased. "food" and "Food" are the
// same vault.
func CanonicalName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (u User) CanLogIn() bool { return u.PasswordHash != "" }

func (v Vault) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return ErrEmptyVaultName
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return errors.New("invalid transaction type")
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if t.Type.Outflow() && t.Amount.Cents > 0 {
		return errors.New("outflow amount must be negative")
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.Quantity < 0 {
		return errors.New("quantity cannot be negative")
	}
	return t.Date.Validate()
}

func (so StandingOrder) Validate() error {
	switch so.Type {
	case Deposit, Withdraw:
		// Only simple single-vault entries can recur.
	default:
		return errors.New("standing orders support deposit and withdraw only")
	}
	if err := so.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(so.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(so.Description) > maxDescriptionLen {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(so.Category) == "" {
		return ErrEmptyCategory
	}
	if !so.Every.Valid() {
		return errors.New("invalid frequency")
	}
	if err := so.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !so.EndDate.IsZero() && so.EndDate.Before(so.StartDate.Time) {
		return errors.New("end date must be after start date")
	}
	return nil
}
