// Package policy holds the time rules that decide when students may sign in,
// when borrowed equipment is due back and what a late return costs.
package policy

import "time"

// WindowState describes where an instant falls relative to a session's sign-in window.
type WindowState int

const (
	// WindowNotOpen means sign-in has not started yet.
	WindowNotOpen WindowState = iota
	// WindowOpen means sign-in is currently accepted.
	WindowOpen
	// WindowClosed means sign-in has ended.
	WindowClosed
)

func (s WindowState) String() string {
	switch s {
	case WindowNotOpen:
		return "not_open"
	case WindowOpen:
		return "open"
	case WindowClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignInWindow derives the sign-in window of a class session from its schedule.
// The window is [start - Lead, end + Grace). A session without an end time is
// assumed to last DefaultLength.
type SignInWindow struct {
	Lead          time.Duration
	Grace         time.Duration
	DefaultLength time.Duration
}

// Bounds returns the instants at which sign-in opens and closes.
func (w SignInWindow) Bounds(startsAt, endsAt time.Time) (time.Time, time.Time) {
	if endsAt.IsZero() || !endsAt.After(startsAt) {
		length := w.DefaultLength
		if length <= 0 {
			length = time.Hour
		}
		endsAt = startsAt.Add(length)
	}
	return startsAt.Add(-w.Lead), endsAt.Add(w.Grace)
}

// State classifies now against the session's window.
func (w SignInWindow) State(startsAt, endsAt, now time.Time) WindowState {
	opens, closes := w.Bounds(startsAt, endsAt)
	switch {
	case now.Before(opens):
		return WindowNotOpen
	case now.Before(closes):
		return WindowOpen
	default:
		return WindowClosed
	}
}

// IsOpen reports whether sign-in is accepted at now.
func (w SignInWindow) IsOpen(startsAt, endsAt, now time.Time) bool {
	return w.State(startsAt, endsAt, now) == WindowOpen
}
