package businesstime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", s)
	require.NoError(t, err)
	return ts
}

func TestIsBusinessTime(t *testing.T) {
	c := New(DefaultConfig())

	// Monday 2024-01-01 at 10:00 is inside the window.
	assert.True(t, c.IsBusinessTime(mustParse(t, "2024-01-01 10:00")))
	// Monday at 8:59 is before the window opens.
	assert.False(t, c.IsBusinessTime(mustParse(t, "2024-01-01 08:59")))
	// Monday at 19:00 is the exclusive end boundary.
	assert.False(t, c.IsBusinessTime(mustParse(t, "2024-01-01 19:00")))
	// Saturday 2024-01-06 is not a working day at all.
	assert.False(t, c.IsBusinessTime(mustParse(t, "2024-01-06 10:00")))
}

func TestBusinessHoursBetweenSameInstant(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-01 10:00")
	assert.Equal(t, 0.0, c.BusinessHoursBetween(a, a))
	assert.Equal(t, 0.0, c.BusinessHoursBetween(mustParse(t, "2024-01-02 10:00"), a))
}

func TestBusinessHoursBetweenAdditivity(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-01 09:00")
	b := mustParse(t, "2024-01-02 12:00")
	d := mustParse(t, "2024-01-03 15:00")

	ab := c.BusinessHoursBetween(a, b)
	bd := c.BusinessHoursBetween(b, d)
	ad := c.BusinessHoursBetween(a, d)

	assert.InDelta(t, ad, ab+bd, 1e-9)
}

func TestBusinessHoursBetweenSingleDayWithinWindow(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-01 09:00")
	b := mustParse(t, "2024-01-01 17:30")
	assert.InDelta(t, 8.5, c.BusinessHoursBetween(a, b), 1e-9)
}

func TestBusinessHoursBetweenSpansWeekend(t *testing.T) {
	c := New(DefaultConfig())
	// Friday 2024-01-05 17:00 to Monday 2024-01-08 11:00.
	a := mustParse(t, "2024-01-05 17:00")
	b := mustParse(t, "2024-01-08 11:00")
	// Friday contributes 2h (17:00-19:00); Sat/Sun contribute 0; Monday contributes 2h (9:00-11:00).
	assert.InDelta(t, 4.0, c.BusinessHoursBetween(a, b), 1e-9)
}

func TestBusinessHoursBetweenPartialOverlapBothEnds(t *testing.T) {
	c := New(DefaultConfig())
	// Starts in the non-working early morning (05:00) and ends mid-working (11:00).
	a := mustParse(t, "2024-01-01 05:00")
	b := mustParse(t, "2024-01-01 11:00")
	// Business window opens at 9:00, interval ends at 11:00: 2 hours.
	assert.InDelta(t, 2.0, c.BusinessHoursBetween(a, b), 1e-9)
}

func TestBusinessHoursBetweenZeroIntersectionDay(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-06 08:00") // Saturday
	b := mustParse(t, "2024-01-06 20:00") // Saturday
	assert.Equal(t, 0.0, c.BusinessHoursBetween(a, b))
}

func TestNextBusinessStartInsideWindowReturnsInput(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-01 10:30")
	assert.Equal(t, a, c.NextBusinessStart(a))
}

func TestNextBusinessStartRollsToNextDay(t *testing.T) {
	c := New(DefaultConfig())
	a := mustParse(t, "2024-01-05 20:00") // Friday after hours
	got := c.NextBusinessStart(a)
	assert.Equal(t, mustParse(t, "2024-01-08 09:00"), got) // next Monday 9am
}

func TestAdvanceWithinSameDay(t *testing.T) {
	c := New(DefaultConfig())
	start := mustParse(t, "2024-01-01 09:00")
	got := c.Advance(start, 4)
	assert.Equal(t, mustParse(t, "2024-01-01 13:00"), got)
}

func TestAdvanceCrossesDayBoundary(t *testing.T) {
	c := New(DefaultConfig())
	start := mustParse(t, "2024-01-01 17:00") // Monday, 2h left today
	got := c.Advance(start, 6)
	assert.Equal(t, mustParse(t, "2024-01-02 13:00"), got)
}
