package budget

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Month identifies a calendar month.
type Month struct {
	Label string // e.g. "January 2026"
	Month time.Month
	Year  int
}

// MonthKey returns the calendar month containing t as seen in loc.
func MonthKey(t time.Time, loc *time.Location) Month {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewMonth(local.Month(), local.Year())
}

// NewMonth builds a Month with its display label.
func NewMonth(month time.Month, year int) Month {
	return Month{
		Month: month,
		Year:  year,
		Label: fmt.Sprintf("%s %d", month, year),
	}
}

// ParseMonth parses "2026-01". An empty string yields the current month in loc.
func ParseMonth(s string, now time.Time, loc *time.Location) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MonthKey(now, loc), nil
	}

	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return NewMonth(t.Month(), t.Year()), nil
}

// DistinctMonths returns the months touched by dates, oldest first.
func DistinctMonths(dates []time.Time, loc *time.Location) []Month {
	seen := make(map[Month]bool)
	var months []Month
	for _, d := range dates {
		m := MonthKey(d, loc)
		if seen[m] {
			continue
		}
		seen[m] = true
		months = append(months, m)
	}

	sort.Slice(months, func(i, j int) bool {
		if months[i].Year != months[j].Year {
			return months[i].Year < months[j].Year
		}
		return months[i].Month < months[j].Month
	})
	return months
}
