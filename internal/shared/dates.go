package shared

import (
	"fmt"
	"time"
)

// APITimeLayout is the timestamp format the ABCP garage endpoint uses for
// the dateUpdatedStart/dateUpdatedEnd parameters and record timestamps.
const APITimeLayout = "2006-01-02 15:04:05"

// dateLayouts accepted on the command line, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	APITimeLayout,
	"2006-01-02",
}

// ParseDate parses an ISO 8601 date or datetime string.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidArgument, s)
}

// DateRange is an inclusive [From, To] window.
type DateRange struct {
	From time.Time
	To   time.Time
}

// SliceByYears splits [start, end] into per-calendar-year windows.
//
// The ABCP endpoint degrades on wide date ranges, so multi-year requests are
// issued one year at a time. Boundaries stay clear of midnight on both ends
// to avoid double-counting records stamped exactly on the year line.
func SliceByYears(start, end time.Time) []DateRange {
	var slices []DateRange

	cur := time.Date(start.Year(), time.January, 1, 0, 0, 1, 0, start.Location())
	if start.After(cur) {
		cur = start
	}

	for !cur.After(end) {
		yearEnd := time.Date(cur.Year(), time.December, 31, 23, 59, 59, 0, cur.Location())
		if yearEnd.After(end) {
			yearEnd = end
		}
		slices = append(slices, DateRange{From: cur, To: yearEnd})
		cur = time.Date(cur.Year()+1, time.January, 1, 0, 0, 1, 0, cur.Location())
	}

	return slices
}
