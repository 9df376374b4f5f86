package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRatePolicyPenalty(t *testing.T) {
	due := time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC)
	rate := RatePolicy{PerDayCents: 500}

	require.Equal(t, int64(1000), rate.Penalty(due, time.Date(2010, 1, 6, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, int64(0), rate.Penalty(due, time.Date(2010, 1, 3, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, int64(0), rate.Penalty(due, due))
	require.Equal(t, int64(500), rate.Penalty(due, due.Add(time.Minute)))
}

func TestRatePolicyDaysOverdueRoundsUpStartedDays(t *testing.T) {
	due := time.Date(2010, 1, 4, 17, 50, 0, 0, time.UTC)
	rate := RatePolicy{PerDayCents: 100}

	require.Equal(t, 0, rate.DaysOverdue(due, due.Add(-time.Hour)))
	require.Equal(t, 1, rate.DaysOverdue(due, due.Add(time.Second)))
	require.Equal(t, 1, rate.DaysOverdue(due, due.Add(24*time.Hour)))
	require.Equal(t, 2, rate.DaysOverdue(due, due.Add(24*time.Hour+time.Second)))
}

func TestRatePolicyGraceAndCap(t *testing.T) {
	due := time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC)
	rate := RatePolicy{PerDayCents: 500, Grace: 10 * time.Minute, MaxCents: 1200}

	require.Equal(t, int64(0), rate.Penalty(due, due.Add(10*time.Minute)))
	require.Equal(t, int64(500), rate.Penalty(due, due.Add(11*time.Minute)))
	require.Equal(t, int64(1200), rate.Penalty(due, due.AddDate(0, 0, 30)))
}

func TestRatePolicyPenaltyIsMonotonic(t *testing.T) {
	due := time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC)
	rate := RatePolicy{PerDayCents: 275, Grace: 5 * time.Minute}

	previous := int64(0)
	for offset := -48 * time.Hour; offset <= 10*24*time.Hour; offset += 37 * time.Minute {
		current := rate.Penalty(due, due.Add(offset))
		require.GreaterOrEqual(t, current, previous)
		require.GreaterOrEqual(t, current, int64(0))
		previous = current
	}
}
