package bizday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestWeekdayExcludesWeekends(t *testing.T) {
	var w Weekday
	assert.True(t, w.IsBusinessDay(mustDate(t, "2026-07-27")))  // Monday
	assert.False(t, w.IsBusinessDay(mustDate(t, "2026-08-01"))) // Saturday
	assert.False(t, w.IsBusinessDay(mustDate(t, "2026-08-02"))) // Sunday
}

func TestHolidayTableExcludesConfiguredDates(t *testing.T) {
	table := NewHolidayTable(Weekday{}, []string{"2026-07-27"})

	assert.False(t, table.IsBusinessDay(mustDate(t, "2026-07-27")))
	assert.True(t, table.IsBusinessDay(mustDate(t, "2026-07-28")))
}

func TestHolidayTableStillExcludesWeekends(t *testing.T) {
	table := NewHolidayTable(Weekday{}, nil)
	assert.False(t, table.IsBusinessDay(mustDate(t, "2026-08-01")))
}

func TestSetReplacesHolidaysWholesale(t *testing.T) {
	table := NewHolidayTable(Weekday{}, []string{"2026-07-27"})
	assert.False(t, table.IsBusinessDay(mustDate(t, "2026-07-27")))

	table.Set([]string{"2026-07-28"})

	assert.True(t, table.IsBusinessDay(mustDate(t, "2026-07-27")))
	assert.False(t, table.IsBusinessDay(mustDate(t, "2026-07-28")))
}
