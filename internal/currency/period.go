package currency

import (
	"fmt"
	"strings"
	"time"
)

// PeriodRange turns ("day", 3) style history windows into [start, end)
// ending at now.
func PeriodRange(period int, periodType string, now time.Time) (time.Time, time.Time, error) {
	if period <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("period must be positive: %d", period)
	}
	end := now.UTC()
	var start time.Time
	switch strings.ToLower(strings.TrimSpace(periodType)) {
	case "hour":
		start = end.Add(-time.Duration(period) * time.Hour)
	case "day":
		start = end.AddDate(0, 0, -period)
	case "week":
		start = end.AddDate(0, 0, -7*period)
	case "month":
		start = end.AddDate(0, -period, 0)
	case "year":
		start = end.AddDate(-period, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period type %q", periodType)
	}
	return start, end, nil
}
