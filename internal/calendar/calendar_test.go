package calendar

import (
	"testing"
	"time"

	"eventtrader/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	ny, err := LoadZone("America/New_York")
	require.NoError(t, err)

	testCases := []struct {
		desc     string
		date     string
		tod      string
		expected string
		err      error
	}{
		{"regular winter day", "2026-01-09", "08:30:00", "2026-01-09T13:30:00Z", nil},
		{"regular summer day", "2026-07-02", "08:30:00", "2026-07-02T12:30:00Z", nil},
		{"spring forward before gap", "2026-03-08", "01:59:59", "2026-03-08T06:59:59Z", nil},
		{"spring forward inside gap", "2026-03-08", "02:30:00", "", exception.ErrNonexistentTime},
		{"spring forward after gap", "2026-03-08", "03:00:00", "2026-03-08T07:00:00Z", nil},
		{"fall back repeated hour", "2026-11-01", "01:30:00", "", exception.ErrAmbiguousTime},
		{"fall back after repeat", "2026-11-01", "02:00:00", "2026-11-01T07:00:00Z", nil},
		{"fall back morning", "2026-11-01", "10:00:00", "2026-11-01T15:00:00Z", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			date, err := ParseDate(tc.date)
			require.NoError(t, err)
			tod, err := ParseTimeOfDay(tc.tod)
			require.NoError(t, err)

			got, err := Combine(date, tod, ny)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			want, err := time.Parse(time.RFC3339, tc.expected)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "want %s got %s", want, got.UTC())
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("9:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 5}, tod)

	_, err = ParseTimeOfDay("25:00")
	require.Error(t, err)
	_, err = ParseTimeOfDay("noon")
	require.Error(t, err)
}

func TestNextNonfarmPayroll(t *testing.T) {
	ny, err := LoadZone("")
	require.NoError(t, err)

	testCases := []struct {
		desc     string
		now      time.Time
		expected time.Time
	}{
		{"early in month", time.Date(2026, time.October, 1, 0, 0, 0, 0, ny), time.Date(2026, time.October, 2, 8, 30, 0, 0, ny)},
		{"at release rolls over", time.Date(2026, time.October, 2, 8, 30, 0, 0, ny), time.Date(2026, time.November, 6, 8, 30, 0, 0, ny)},
		{"year end", time.Date(2026, time.December, 20, 0, 0, 0, 0, ny), time.Date(2027, time.January, 1, 8, 30, 0, 0, ny)},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := NextNonfarmPayroll(tc.now)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "want %s got %s", tc.expected, got)
		})
	}
}
