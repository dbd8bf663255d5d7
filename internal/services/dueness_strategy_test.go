package services

import (
	"testing"
	"time"

	"tesoro/internal/core"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestDailyChecker(t *testing.T) {
	tests := []struct {
		name    string
		lastRun time.Time
		now     time.Time
		want    bool
	}{
		{"never run", time.Time{}, date(2026, 3, 10), true},
		{"ran yesterday", date(2026, 3, 9), date(2026, 3, 10), true},
		{"ran today", date(2026, 3, 10), date(2026, 3, 10), false},
		{"ran last month same day number", date(2026, 2, 10), date(2026, 3, 10), true},
	}

	checker := DailyChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(tt.lastRun, tt.now, core.Date{}); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeeklyChecker(t *testing.T) {
	tests := []struct {
		name    string
		lastRun time.Time
		now     time.Time
		want    bool
	}{
		{"never run", time.Time{}, date(2026, 3, 10), true},
		{"six days ago", date(2026, 3, 4), date(2026, 3, 10), false},
		{"seven days ago", date(2026, 3, 3), date(2026, 3, 10), true},
		{"ten days ago", date(2026, 2, 28), date(2026, 3, 10), true},
	}

	checker := WeeklyChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(tt.lastRun, tt.now, core.Date{}); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonthlyChecker(t *testing.T) {
	tests := []struct {
		name      string
		lastRun   time.Time
		now       time.Time
		startDate core.Date
		want      bool
	}{
		{"never run", time.Time{}, date(2026, 3, 10), core.NewDate(2026, 1, 15), true},
		{"already ran this month", date(2026, 3, 15), date(2026, 3, 20), core.NewDate(2026, 1, 15), false},
		{"new month, target day reached", date(2026, 2, 15), date(2026, 3, 15), core.NewDate(2026, 1, 15), true},
		{"new month, before target day", date(2026, 2, 15), date(2026, 3, 10), core.NewDate(2026, 1, 15), false},
		{"day 31 clamps to end of february", date(2026, 1, 31), date(2026, 2, 28), core.NewDate(2026, 1, 31), true},
		{"day 31 in february, before clamped day", date(2026, 1, 31), date(2026, 2, 27), core.NewDate(2026, 1, 31), false},
	}

	checker := MonthlyChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(tt.lastRun, tt.now, tt.startDate); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYearlyChecker(t *testing.T) {
	tests := []struct {
		name      string
		lastRun   time.Time
		now       time.Time
		startDate core.Date
		want      bool
	}{
		{"never run", time.Time{}, date(2026, 3, 10), core.NewDate(2025, 6, 1), true},
		{"already ran this year", date(2026, 6, 1), date(2026, 12, 1), core.NewDate(2025, 6, 1), false},
		{"new year, before target month", date(2025, 6, 1), date(2026, 5, 20), core.NewDate(2025, 6, 1), false},
		{"new year, target month and day", date(2025, 6, 1), date(2026, 6, 1), core.NewDate(2025, 6, 1), true},
		{"new year, past target month", date(2025, 6, 1), date(2026, 7, 1), core.NewDate(2025, 6, 1), true},
	}

	checker := YearlyChecker{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsDue(tt.lastRun, tt.now, tt.startDate); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDuenessChecker(t *testing.T) {
	for _, freq := range []core.Frequency{core.Daily, core.Weekly, core.Monthly, core.Yearly} {
		if _, err := GetDuenessChecker(freq); err != nil {
			t.Errorf("GetDuenessChecker(%s) error = %v", freq, err)
		}
	}
	if _, err := GetDuenessChecker("fortnightly"); err == nil {
		t.Error("GetDuenessChecker() should fail for unknown frequency")
	}
}
