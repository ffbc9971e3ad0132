package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("08:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 8, Minute: 5}, c)
	assert.Equal(t, "08:05", c.String())

	c, err = ParseClockTime("17:30:00")
	require.NoError(t, err)
	assert.Equal(t, 17*60+30, c.Minutes())

	for _, bad := range []string{"", "8", "24:00", "12:60", "ab:cd", "10:00:99", "1:2:3:4"} {
		_, err := ParseClockTime(bad)
		assert.ErrorIs(t, err, ErrInvalidClockTime, bad)
	}
}

func TestClockTime_On(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	day := time.Date(2026, 10, 19, 15, 45, 0, 0, loc)

	at := ClockTime{Hour: 8, Minute: 30}.On(day)

	assert.Equal(t, time.Date(2026, 10, 19, 8, 30, 0, 0, loc), at)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusScheduled, StatusConfirmed))
	assert.True(t, CanTransition(StatusScheduled, StatusCancelled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCompleted))
	assert.True(t, CanTransition(StatusConfirmed, StatusCancelled))

	assert.False(t, CanTransition(StatusScheduled, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled))
	assert.False(t, CanTransition(StatusCancelled, StatusScheduled))
	assert.False(t, CanTransition(StatusConfirmed, StatusScheduled))
}
