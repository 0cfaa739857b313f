// Package bizday abstracts "is this date a business day" away from the
// ledger. The source this service descends from conflated locale holiday
// tables into the allocation algorithm itself; here the predicate is always
// injected, and holiday data is configuration, never a compiled-in table.
package bizday

import (
	"sync/atomic"
	"time"
)

// Predicate decides whether capacity may be allocated on a given date.
type Predicate interface {
	IsBusinessDay(date time.Time) bool
}

// Weekday is the default predicate: Monday through Friday, no holidays.
type Weekday struct{}

func (Weekday) IsBusinessDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// HolidayTable wraps a Predicate (usually Weekday) and additionally excludes
// a configured set of dates, keyed by "YYYY-MM-DD". The holiday set is
// replaceable at runtime via Set, so config hot-reload can swap it without
// restarting anything that holds a reference to the table.
type HolidayTable struct {
	base     Predicate
	holidays atomic.Pointer[map[string]struct{}]
}

func NewHolidayTable(base Predicate, holidays []string) *HolidayTable {
	if base == nil {
		base = Weekday{}
	}
	h := &HolidayTable{base: base}
	h.Set(holidays)
	return h
}

// Set replaces the holiday set wholesale and atomically. Safe to call from
// the config watcher goroutine concurrently with IsBusinessDay callers.
func (h *HolidayTable) Set(holidays []string) {
	m := make(map[string]struct{}, len(holidays))
	for _, d := range holidays {
		m[d] = struct{}{}
	}
	h.holidays.Store(&m)
}

func (h *HolidayTable) IsBusinessDay(date time.Time) bool {
	if !h.base.IsBusinessDay(date) {
		return false
	}
	m := h.holidays.Load()
	if m == nil {
		return true
	}
	_, excluded := (*m)[date.Format("2006-01-02")]
	return !excluded
}
