package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence_FixedIntervals(t *testing.T) {
	from := date(2024, time.March, 15)

	tests := []struct {
		interval IntervalKind
		want     time.Time
	}{
		{IntervalDaily, date(2024, time.March, 16)},
		{IntervalWeekly, date(2024, time.March, 22)},
		{IntervalBiweekly, date(2024, time.March, 29)},
	}
	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			got, err := NextOccurrence(from, tt.interval, from.Day())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_MonthlyClampsToShortMonths(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		anchor int
		want   time.Time
	}{
		{"jan 31 to leap feb", date(2024, time.January, 31), 31, date(2024, time.February, 29)},
		{"jan 31 to plain feb", date(2023, time.January, 31), 31, date(2023, time.February, 28)},
		{"mar 31 to apr 30", date(2024, time.March, 31), 31, date(2024, time.April, 30)},
		{"mid-month unchanged", date(2024, time.January, 15), 15, date(2024, time.February, 15)},
		{"dec rolls year", date(2024, time.December, 31), 31, date(2025, time.January, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.from, IntervalMonthly, tt.anchor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_MonthlyKeepsAnchorAfterClamp(t *testing.T) {
	// A clamped occurrence must not drag the whole schedule down to the
	// clamped day: the month after a short month returns to the anchor.
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"after leap feb", date(2024, time.February, 29), date(2024, time.March, 31)},
		{"after plain feb", date(2023, time.February, 28), date(2023, time.March, 31)},
		{"after 30-day month", date(2024, time.April, 30), date(2024, time.May, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.from, IntervalMonthly, 31)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_MonthlyClampDoesNotNormalize(t *testing.T) {
	// time.AddDate would push Jan 31 into early March; the clamp must not.
	got, err := NextOccurrence(date(2023, time.January, 31), IntervalMonthly, 31)
	require.NoError(t, err)
	assert.Equal(t, time.February, got.Month())
}

func TestNextOccurrence_AnchorFallsBackToFrom(t *testing.T) {
	got, err := NextOccurrence(date(2024, time.January, 31), IntervalMonthly, 0)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), got)
}

func TestNextOccurrence_QuarterlyTargetsAnchor(t *testing.T) {
	// Jan 31 -> Feb 29 -> Mar 31 -> Apr 30: February's clamp does not
	// stick to the later months.
	got, err := NextOccurrence(date(2024, time.January, 31), IntervalQuarterly, 31)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 30), got)

	// No clamping anywhere keeps the day.
	got, err = NextOccurrence(date(2024, time.February, 10), IntervalQuarterly, 10)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.May, 10), got)
}

func TestNextOccurrence_YearlyClampsLeapDay(t *testing.T) {
	got, err := NextOccurrence(date(2024, time.February, 29), IntervalYearly, 29)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28), got)

	// The clamped schedule returns to Feb 29 when a leap year comes
	// around again.
	got, err = NextOccurrence(date(2027, time.February, 28), IntervalYearly, 29)
	require.NoError(t, err)
	assert.Equal(t, date(2028, time.February, 29), got)

	got, err = NextOccurrence(date(2024, time.March, 1), IntervalYearly, 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 1), got)
}

func TestNextOccurrence_AlwaysStrictlyAfter(t *testing.T) {
	intervals := []IntervalKind{
		IntervalDaily, IntervalWeekly, IntervalBiweekly,
		IntervalMonthly, IntervalQuarterly, IntervalYearly,
	}
	starts := []time.Time{
		date(2024, time.January, 1),
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.December, 31),
		date(2023, time.February, 28),
	}
	for _, interval := range intervals {
		for _, from := range starts {
			for _, anchor := range []int{from.Day(), 31} {
				got, err := NextOccurrence(from, interval, anchor)
				require.NoError(t, err)
				assert.True(t, got.After(from),
					"%s from %s anchor %d produced %s", interval, from, anchor, got)
			}
		}
	}
}

func TestNextOccurrence_PreservesTimeOfDay(t *testing.T) {
	from := time.Date(2024, time.January, 31, 9, 30, 0, 0, time.UTC)
	got, err := NextOccurrence(from, IntervalMonthly, 31)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 30, got.Minute())
}

func TestNextOccurrence_UnknownInterval(t *testing.T) {
	_, err := NextOccurrence(date(2024, time.January, 1), IntervalKind("fortnightly-ish"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownInterval)
}
