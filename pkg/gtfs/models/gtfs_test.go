package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		value string
		want  int
	}{
		{"00:00:00", 0},
		{"08:00:00", 28800},
		{"08:10:30", 29430},
		{"23:59:59", 86399},
		// Service past midnight keeps counting, it never wraps.
		{"24:00:00", 86400},
		{"25:10:00", 90600},
		{"27:45:12", 99912},
	}
	for _, tc := range cases {
		got, err := ParseTime(tc.value)
		require.NoError(t, err, tc.value)
		require.Equal(t, tc.want, got, tc.value)
	}
}

func TestParseTimeRejectsMalformedValues(t *testing.T) {
	for _, value := range []string{
		"",
		"08:00",
		"08:00:00:00",
		"8:61:00",
		"08:00:60",
		"-1:00:00",
		"abc:00:00",
	} {
		_, err := ParseTime(value)
		require.Error(t, err, value)
	}
}

func TestFormatTime(t *testing.T) {
	require.Equal(t, "08:00:00", FormatTime(28800))
	require.Equal(t, "25:10:00", FormatTime(90600))
	require.Equal(t, "00:00:59", FormatTime(59))
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" Monday ")
	require.NoError(t, err)
	require.Equal(t, Monday, day)

	_, err = ParseWeekday("someday")
	require.Error(t, err)
}

func TestCalendarActiveOn(t *testing.T) {
	calendar := Calendar{ServiceID: "wd", Monday: 1, Wednesday: 1, Friday: 1}

	require.True(t, calendar.ActiveOn(Monday))
	require.True(t, calendar.ActiveOn(Wednesday))
	require.False(t, calendar.ActiveOn(Tuesday))
	require.False(t, calendar.ActiveOn(Sunday))
}
