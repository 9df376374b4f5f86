package models

import (
	"strings"
	"time"
)

// Student status values.
const (
	StudentStatusActive    = "active"
	StudentStatusOnLeave   = "on_leave"
	StudentStatusWithdrawn = "withdrawn"
	StudentStatusGraduated = "graduated"
)

// Student is a person enrolled at the school. IDNumber is the value printed on
// the student's ID card barcode and never changes once issued.
type Student struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	IDNumber      string     `gorm:"size:32;uniqueIndex;not null" json:"id_number"`
	FirstName     string     `gorm:"size:100;not null" json:"first_name"`
	PreferredName string     `gorm:"size:100" json:"preferred_name"`
	LastName      string     `gorm:"size:100;not null" json:"last_name"`
	Email         string     `gorm:"size:255" json:"email"`
	Status        string     `gorm:"size:16;not null;default:active;index" json:"status"`
	EnrolledUntil *time.Time `json:"enrolled_until"`
	PhotoURL      string     `gorm:"size:512" json:"photo_url"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DisplayName returns the preferred name followed by the last name.
func (s Student) DisplayName() string {
	first := strings.TrimSpace(s.PreferredName)
	if first == "" {
		first = strings.TrimSpace(s.FirstName)
	}
	return strings.TrimSpace(first + " " + s.LastName)
}

// ActiveOn reports whether the student counts as enrolled at the given instant.
// An expired ID card ends enrollment at the start of the expiry day.
func (s Student) ActiveOn(at time.Time) bool {
	if s.Status != StudentStatusActive {
		return false
	}
	if s.EnrolledUntil != nil && !at.Before(*s.EnrolledUntil) {
		return false
	}
	return true
}
