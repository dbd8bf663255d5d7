package services

import (
	"fmt"
	"time"

	"tesoro/internal/core"
)

// DuenessChecker decides whether a standing order should fire, given
// when it last ran. Each frequency has its own implementation.
type DuenessChecker interface {
	IsDue(lastRun, now time.Time, startDate core.Date) bool
}

// DailyChecker fires once per calendar day.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastRun, now time.Time, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	return lastRun.Format("2006-01-02") != now.Format("2006-01-02")
}

// WeeklyChecker fires when 7 or more days have passed since the last run.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastRun, now time.Time, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun).Hours()/24 >= 7
}

// MonthlyChecker fires once per month, on the start date's day of month.
// When the target day does not exist (the 31st in February), it fires on
// the month's last day instead.
type MonthlyChecker struct{}

func (MonthlyChecker) IsDue(lastRun, now time.Time, startDate core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	if lastRun.Year() == now.Year() && lastRun.Month() == now.Month() {
		return false
	}
	return now.Day() >= clampDay(startDate.Day(), now)
}

// YearlyChecker fires once per year, on the start date's month and day.
type YearlyChecker struct{}

func (YearlyChecker) IsDue(lastRun, now time.Time, startDate core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	if lastRun.Year() == now.Year() {
		return false
	}
	if int(now.Month()) < startDate.Month() {
		return false
	}
	if int(now.Month()) == startDate.Month() {
		return now.Day() >= clampDay(startDate.Day(), now)
	}
	return true
}

// clampDay caps the target day at the last day of now's month.
func clampDay(targetDay int, now time.Time) int {
	lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if targetDay > lastDayOfMonth {
		return lastDayOfMonth
	}
	return targetDay
}

var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a frequency.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}
