package policy

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// RatePolicy prices late returns per started day overdue.
type RatePolicy struct {
	PerDayCents int64
	// Grace is subtracted from the lateness before days are counted.
	Grace time.Duration
	// MaxCents caps a single penalty. Zero means no cap.
	MaxCents int64
}

// DaysOverdue counts started days between dueAt and returnedAt, less the grace
// period. A return one minute late counts as one day.
func (p RatePolicy) DaysOverdue(dueAt, returnedAt time.Time) int {
	late := returnedAt.Sub(dueAt) - p.Grace
	if late <= 0 {
		return 0
	}
	days := late / day
	if late%day != 0 {
		days++
	}
	return int(days)
}

// Penalty returns the late fee in cents. It is zero for on-time returns and
// never decreases as the return gets later.
func (p RatePolicy) Penalty(dueAt, returnedAt time.Time) int64 {
	days := int64(p.DaysOverdue(dueAt, returnedAt))
	if days == 0 || p.PerDayCents <= 0 {
		return 0
	}

	var amount int64
	if days > math.MaxInt64/p.PerDayCents {
		amount = math.MaxInt64
	} else {
		amount = days * p.PerDayCents
	}

	if p.MaxCents > 0 && amount > p.MaxCents {
		return p.MaxCents
	}
	return amount
}
