// Package export defines the outbound ports for spreadsheet export.
package export

import (
	"context"

	"tesoro/internal/core"
)

// Row is one ledger row denormalized for a spreadsheet: names instead of
// ids, the signed amount still in cents.
type Row struct {
	ID          int64
	Username    string
	Vault       string
	Type        core.TransactionType
	Amount      core.Money
	Category    string
	Description string
	Quantity    float64
	Unit        string
	Date        core.Date
}

type (
	// LedgerAppender writes one row to the export target and returns an
	// opaque reference to where it landed.
	LedgerAppender interface {
		Append(ctx context.Context, row Row) (rowRef string, err error)
	}

	// RowLister reads exported rows back, for verification tooling.
	RowLister interface {
		ListRows(ctx context.Context, year, month int) ([]Row, error)
	}
)
