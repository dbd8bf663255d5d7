package http

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tesoro/internal/auth"
	"tesoro/internal/core"
)

// parseBulkRows reads the parallel form arrays of the bulk-entry grid
// into rows. Row numbers are 1-based, matching what the grid displays.
func parseBulkRows(r *http.Request) []core.BulkRow {
	form := r.Form
	types := form["type[]"]
	vaults := form["vault[]"]
	amounts := form["amount[]"]
	categories := form["category[]"]
	descriptions := form["description[]"]
	quantities := form["quantity[]"]
	units := form["unit[]"]
	toUsers := form["to_user[]"]
	toVaults := form["to_vault[]"]
	dates := form["date[]"]

	n := len(types)
	for _, arr := range [][]string{vaults, amounts, categories, descriptions} {
		if len(arr) > n {
			n = len(arr)
		}
	}

	at := func(arr []string, i int) string {
		if i < len(arr) {
			return sanitizeInput(arr[i])
		}
		return ""
	}

	rows := make([]core.BulkRow, 0, n)
	for i := 0; i < n; i++ {
		// Vault and user names are canonicalized like the single-entry
		// forms, so "main" and "Main" are the same vault on both paths.
		row := core.BulkRow{
			RowNumber: i + 1,
			Type:      core.TransactionType(strings.ToLower(at(types, i))),
			Vault:     core.CanonicalName(at(vaults, i)),
			Category:  at(categories, i),
			Desc:      at(descriptions, i),
			Unit:      at(units, i),
			ToUser:    core.CanonicalName(at(toUsers, i)),
			ToVault:   core.CanonicalName(at(toVaults, i)),
			Date:      at(dates, i),
		}
		if raw := at(amounts, i); raw != "" {
			row.AmountSet = true
			// A malformed amount stays zero and fails validation with
			// the row number attached.
			if cents, err := core.ParseAmountToCents(raw); err == nil {
				row.Amount = cents
			}
		}
		if q := at(quantities, i); q != "" {
			if v, err := parseQuantity(q); err == nil {
				row.Quantity = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderBulkPage(w, r)
	case http.MethodPost:
		s.processBulk(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderBulkPage(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	session, _ := auth.SessionFromContext(r.Context())
	categories, units, err := s.store.Taxonomy(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Taxonomy list error", "error", err)
	}
	vaults, err := s.store.ListVaults(r.Context(), session.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Vault list error", "error", err)
	}

	data := struct {
		Username   string
		Vaults     []core.Vault
		Categories []string
		Units      []string
	}{session.Username, vaults, categories, units}

	if err := s.templates.ExecuteTemplate(w, "bulk.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Bulk template execution failed", "error", err, "template", "bulk.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) processBulk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	user := core.User{ID: session.UserID, Username: session.Username}
	rows := parseBulkRows(r)
	validateOnly := r.Form.Get("action") == "validate"

	var result core.BulkResult
	var err error
	if validateOnly {
		result, err = s.bulk.Validate(user, rows)
	} else {
		result, err = s.bulk.Process(r.Context(), user, rows)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Bulk processing error", "error", err, "rows", len(rows))
		InternalServerError("Could not process the batch").Write(w)
		return
	}

	resp := NewHTMXResponse()
	if !result.Valid {
		resp.Status(http.StatusUnprocessableEntity)
	}
	if result.Valid && !validateOnly {
		s.invalidateBulkMonths(session.UserID, rows)
		resp.TriggerVaultsChanged()
	}

	resp.BodyHTML(renderBulkResult(result, validateOnly)).Write(w)
}

// invalidateBulkMonths drops the cached summaries for every month the
// applied rows touch. Rows can carry arbitrary dates, so the current
// month alone is not enough. Undated rows land in the current month.
func (s *Server) invalidateBulkMonths(userID int64, rows []core.BulkRow) {
	now := time.Now()
	seen := make(map[[2]int]bool)
	for _, row := range rows {
		if row.IsEmpty() {
			continue
		}
		year, month := now.Year(), int(now.Month())
		if row.Date != "" {
			if t, err := time.Parse("2006-01-02", row.Date); err == nil {
				year, month = t.Year(), int(t.Month())
			}
		}
		if seen[[2]int{year, month}] {
			continue
		}
		seen[[2]int{year, month}] = true
		s.invalidateMonth(userID, year, month)
	}
}

// renderBulkResult builds the result fragment: a summary line plus one
// line per row error.
func renderBulkResult(result core.BulkResult, validateOnly bool) string {
	var b strings.Builder
	if result.Valid {
		b.WriteString(`<div class="success">`)
		if validateOnly {
			b.WriteString(html.EscapeString(result.Summary()))
		} else {
			b.WriteString(html.EscapeString(fmt.Sprintf("Recorded %d transactions", result.ValidCount)))
		}
		b.WriteString(`</div>`)
		return b.String()
	}

	b.WriteString(`<div class="error"><p>`)
	b.WriteString(html.EscapeString(result.Summary()))
	b.WriteString(`</p><ul>`)
	for _, e := range result.Errors {
		b.WriteString(`<li>`)
		if e.RowNumber > 0 {
			b.WriteString(html.EscapeString(fmt.Sprintf("Row %d, %s: %s", e.RowNumber, e.Field, e.Message)))
		} else {
			b.WriteString(html.EscapeString(e.Message))
		}
		b.WriteString(`</li>`)
	}
	b.WriteString(`</ul></div>`)
	return b.String()
}
