package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignInWindowState(t *testing.T) {
	start := time.Date(2010, 1, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	window := SignInWindow{Lead: 15 * time.Minute, Grace: 30 * time.Minute, DefaultLength: time.Hour}

	cases := []struct {
		name string
		now  time.Time
		want WindowState
	}{
		{name: "well before", now: start.Add(-time.Hour), want: WindowNotOpen},
		{name: "lead boundary", now: start.Add(-15 * time.Minute), want: WindowOpen},
		{name: "during class", now: start.Add(time.Hour), want: WindowOpen},
		{name: "inside grace", now: end.Add(29 * time.Minute), want: WindowOpen},
		{name: "grace boundary", now: end.Add(30 * time.Minute), want: WindowClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, window.State(start, end, tc.now))
		})
	}
}

func TestSignInWindowDefaultsLengthWhenEndMissing(t *testing.T) {
	start := time.Date(2010, 1, 4, 9, 0, 0, 0, time.UTC)
	window := SignInWindow{DefaultLength: time.Hour}

	opens, closes := window.Bounds(start, time.Time{})
	require.Equal(t, start, opens)
	require.Equal(t, start.Add(time.Hour), closes)

	require.False(t, window.IsOpen(start, time.Time{}, start.Add(-time.Second)))
	require.True(t, window.IsOpen(start, time.Time{}, start))
	require.False(t, window.IsOpen(start, time.Time{}, start.Add(time.Hour)))
}

func TestWindowStateString(t *testing.T) {
	require.Equal(t, "open", WindowOpen.String())
	require.Equal(t, "not_open", WindowNotOpen.String())
	require.Equal(t, "closed", WindowClosed.String())
}
