// Package core holds the ledger domain: users, vaults, transactions and the
// validation rules that govern them.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountToCents converts a user-entered decimal string to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Anything
// beyond two decimal places is rounded half-up. The result is always
// positive; signs are applied by the transaction type, not by the user.
func ParseAmountToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || !cents.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Amount returns the decimal value of the money, e.g. 1234 cents -> 12.34.
func (m Money) Amount() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Format renders cents as a currency string, e.g. "€12,34" or "-€0,05".
func (m Money) Format() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("€%d,%02d", cents/100, cents%100)
	if neg {
		return "-" + s
	}
	return s
}
