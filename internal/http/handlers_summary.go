package http

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"

	"tesoro/internal/auth"
)

// handleMonthSummary renders the monthly dashboard partial: totals, a
// per-category spending breakdown with scaled bars, vault balances and
// the month's entries.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	session, _ := auth.SessionFromContext(r.Context())
	year, month := parseYearMonth(r)

	summary, err := s.getSummary(r.Context(), session.UserID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Month summary error", "error", err, "year", year, "month", month)
		_, _ = w.Write([]byte(`<section id="month-summary"><div class="placeholder">Could not load the summary</div></section>`))
		return
	}

	// Scale category bars against the biggest spender.
	var maxCents int64
	for _, c := range summary.ByCategory {
		if c.Amount.Cents > maxCents {
			maxCents = c.Amount.Cents
		}
	}

	type categoryRow struct {
		Name, Amount string
		Width        int
	}
	type vaultRow struct {
		Name, Balance string
	}
	type entryRow struct {
		Day                         int
		Vault, Type, Desc, Amt, Cat string
		Outflow                     bool
	}
	data := struct {
		Year     int
		Month    int
		Net      string
		Spent    string
		Received string
		Total    string
		Rows     []categoryRow
		Vaults   []vaultRow
		Entries  []entryRow
	}{
		Year:     summary.Year,
		Month:    summary.Month,
		Net:      summary.Net.Format(),
		Spent:    summary.Spent.Format(),
		Received: summary.Received.Format(),
		Total:    summary.Total.Format(),
	}

	for _, c := range summary.ByCategory {
		width := 0
		if maxCents > 0 && c.Amount.Cents > 0 {
			width = int((c.Amount.Cents*100 + maxCents/2) / maxCents)
			if width > 0 && width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Rows = append(data.Rows, categoryRow{Name: c.Name, Amount: c.Amount.Format(), Width: width})
	}
	for _, v := range summary.Vaults {
		data.Vaults = append(data.Vaults, vaultRow{Name: v.Name, Balance: v.Balance.Format()})
	}

	entries, err := s.getMonthLedger(r.Context(), session.UserID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Month ledger error", "error", err, "year", year, "month", month)
	}
	for _, e := range entries {
		data.Entries = append(data.Entries, entryRow{
			Day:     e.Date.Day(),
			Vault:   e.VaultName,
			Type:    string(e.Type),
			Desc:    e.Description,
			Amt:     e.Amount.Format(),
			Cat:     e.Category,
			Outflow: e.Amount.Cents < 0,
		})
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="month-summary"><div class="placeholder">Total: ` + data.Total + `</div></section>`))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "month_summary.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "month_summary.html")
		_, _ = w.Write([]byte(`<section id="month-summary"><div class="placeholder">Could not render the summary</div></section>`))
	}
}

// handleLoanOverview renders the outstanding loan positions partial.
func (s *Server) handleLoanOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	session, _ := auth.SessionFromContext(r.Context())

	loans, err := s.store.ReadLoanOverview(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Loan overview error", "error", err)
		_, _ = w.Write([]byte(`<section id="loans"><div class="placeholder">Could not load loans</div></section>`))
		return
	}

	type row struct {
		From, To, Amount string
		Owed             bool // true when the session user is the borrower
	}
	data := struct{ Loans []row }{}
	for _, l := range loans {
		data.Loans = append(data.Loans, row{
			From:   l.FromUser + " / " + l.FromVault,
			To:     l.ToUser + " / " + l.ToVault,
			Amount: l.Amount.Format(),
			Owed:   l.ToUser == session.Username,
		})
	}

	if err := s.templates.ExecuteTemplate(w, "loans.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "loans.html")
	}
}

// handleExportCSV streams the user's full history as a CSV download, the
// synchronous counterpart of the spreadsheet export.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	entries, err := s.store.ListLedgerAll(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "CSV export error", "error", err)
		http.Error(w, "could not export the ledger", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "vault", "type", "description", "amount", "category", "quantity", "unit"})
	for _, e := range entries {
		quantity := ""
		if e.Quantity != 0 {
			quantity = strconv.FormatFloat(e.Quantity, 'f', -1, 64)
		}
		_ = cw.Write([]string{
			e.Date.Format("2006-01-02"),
			e.VaultName,
			string(e.Type),
			e.Description,
			e.Amount.Amount().String(),
			e.Category,
			quantity,
			e.Unit,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.ErrorContext(r.Context(), "CSV write error", "error", err)
	}
}
