package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuePolicyAddsCalendarDays(t *testing.T) {
	checkout := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

	due, err := DuePolicy{Days: 3}.DueAt(checkout)
	require.NoError(t, err)
	require.Equal(t, time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC), due)
}

func TestDuePolicyRollsWeekendToMonday(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	policy := DuePolicy{Days: 1, ExtendForWeekends: true, DueTime: "17:50", Location: loc}

	thursday := time.Date(2024, 3, 14, 10, 0, 0, 0, loc)
	due, err := policy.DueAt(thursday)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 15, 17, 50, 0, 0, loc), due)

	friday := time.Date(2024, 3, 15, 10, 0, 0, 0, loc)
	due, err = policy.DueAt(friday)
	require.NoError(t, err)
	require.Equal(t, time.Monday, due.Weekday())
	require.Equal(t, time.Date(2024, 3, 18, 17, 50, 0, 0, loc), due)
}

func TestDuePolicyKeepsWeekendWithoutExtension(t *testing.T) {
	friday := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	due, err := DuePolicy{Days: 1}.DueAt(friday)
	require.NoError(t, err)
	require.Equal(t, time.Saturday, due.Weekday())
}

func TestDuePolicyRejectsMalformedTime(t *testing.T) {
	_, err := DuePolicy{Days: 1, DueTime: "5pm"}.DueAt(time.Now())
	require.ErrorIs(t, err, ErrInvalidDueTime)

	require.Error(t, DuePolicy{Days: -1}.Validate())
}
