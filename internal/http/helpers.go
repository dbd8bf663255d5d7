package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tesoro/internal/core"
)

// parseYearMonth extracts year and month from query parameters, falling
// back to the current date. Out-of-range months snap back to now.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	return year, month
}

// parseDateField parses an optional YYYY-MM-DD form value. Empty means
// "today", which the service layer fills in.
func parseDateField(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: t}, nil
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// entryYearMonth resolves the month an entry lands in: its own date, or
// the current month when the date was left blank.
func entryYearMonth(d core.Date) (year, month int) {
	if d.IsZero() {
		now := time.Now()
		return now.Year(), int(now.Month())
	}
	return d.Year(), d.Month()
}

// parseQuantity reads an optional quantity form value.
func parseQuantity(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

// errorStatus maps domain errors onto HTTP status codes for form
// responses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUserExists), errors.Is(err, core.ErrVaultExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnknownUser), errors.Is(err, core.ErrUnknownVault),
		errors.Is(err, core.ErrUnknownCategory), errors.Is(err, core.ErrUnknownUnit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyVaultName),
		errors.Is(err, core.ErrEmptyUsername),
		errors.Is(err, core.ErrSameVaultTransfer),
		errors.Is(err, core.ErrMainVaultDelete):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
