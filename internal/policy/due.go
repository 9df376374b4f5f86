package policy

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDueTime indicates a malformed HH:MM due time.
var ErrInvalidDueTime = errors.New("invalid due time of day")

// DuePolicy computes the due date of a checkout.
type DuePolicy struct {
	// Days is the number of calendar days after checkout.
	Days int
	// ExtendForWeekends rolls a Saturday or Sunday due date forward to Monday.
	ExtendForWeekends bool
	// DueTime optionally fixes the time of day as HH:MM in Location.
	DueTime string
	// Location is the school's local time zone. Nil means UTC.
	Location *time.Location
}

// Validate checks the policy parameters.
func (p DuePolicy) Validate() error {
	if p.Days < 0 {
		return fmt.Errorf("due days must not be negative")
	}
	if p.DueTime != "" {
		if _, err := time.Parse("15:04", p.DueTime); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDueTime, p.DueTime)
		}
	}
	return nil
}

// DueAt returns the due instant for an item checked out at checkout.
func (p DuePolicy) DueAt(checkout time.Time) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}

	location := p.Location
	if location == nil {
		location = time.UTC
	}

	due := checkout.In(location).AddDate(0, 0, p.Days)
	if p.DueTime != "" {
		clock, _ := time.Parse("15:04", p.DueTime)
		due = time.Date(due.Year(), due.Month(), due.Day(), clock.Hour(), clock.Minute(), 0, 0, location)
	}

	if p.ExtendForWeekends {
		switch due.Weekday() {
		case time.Saturday:
			due = due.AddDate(0, 0, 2)
		case time.Sunday:
			due = due.AddDate(0, 0, 1)
		}
	}

	return due, nil
}
