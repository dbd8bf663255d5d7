package google

import (
	"testing"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name string
		base string
		year int
		want string
	}{
		{"plain base", "Ledger", 2026, "2026 Ledger"},
		{"already prefixed", "2025 Ledger", 2026, "2025 Ledger"},
		{"empty base", "", 2026, ""},
		{"whitespace base", "  Ledger  ", 2026, "2026 Ledger"},
		{"short name", "L", 2026, "2026 L"},
		{"number that is not a year", "1234x Ledger", 2026, "2026 1234x Ledger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestParseEurosToCents(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"0.1", 10, true},
		{"-5.50", -550, true},
		{"100", 10000, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cents, ok := parseEurosToCents(tt.in)
			if ok != tt.ok || cents != tt.cents {
				t.Errorf("parseEurosToCents(%q) = (%d, %v), want (%d, %v)", tt.in, cents, ok, tt.cents, tt.ok)
			}
		})
	}
}
