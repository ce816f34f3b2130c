package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodStart returns the first instant covered by a lookback period such as
// "5d", "6mo", "1y" or "max", counted back from end. "max" and "" return the
// zero time (no lower bound).
func PeriodStart(period string, end time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" || p == "max" {
		return time.Time{}, nil
	}
	if p == "ytd" {
		return time.Date(end.Year(), 1, 1, 0, 0, 0, 0, end.Location()), nil
	}

	unitAt := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' })
	if unitAt <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	n, err := strconv.Atoi(p[:unitAt])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}

	switch p[unitAt:] {
	case "d":
		return end.AddDate(0, 0, -n), nil
	case "wk", "w":
		return end.AddDate(0, 0, -7*n), nil
	case "mo":
		return end.AddDate(0, -n, 0), nil
	case "y":
		return end.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid period unit in %q", period)
	}
}
