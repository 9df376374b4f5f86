package models

import "time"

// Enrollment status values.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusWithdrawn = "withdrawn"
)

// Course is a unit of instruction with its own schedule of class sessions.
type Course struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CourseNumber string    `gorm:"size:16;not null;uniqueIndex:idx_course_number_schedule" json:"course_number"`
	ScheduleName string    `gorm:"size:128;not null;uniqueIndex:idx_course_number_schedule" json:"schedule_name"`
	Current      bool      `gorm:"column:is_current;not null;default:true" json:"current"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_enrollment_student_course" json:"student_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_enrollment_student_course;index" json:"course_id"`
	Status    string    `gorm:"size:16;not null;default:active" json:"status"`
	Student   Student   `gorm:"constraint:OnDelete:RESTRICT" json:"student"`
	Course    Course    `gorm:"constraint:OnDelete:RESTRICT" json:"course"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassSession is one scheduled meeting of a course.
type ClassSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"not null;index" json:"course_id"`
	Code      string    `gorm:"size:96;uniqueIndex;not null" json:"code"`
	Section   string    `gorm:"size:32" json:"section"`
	Room      string    `gorm:"size:64" json:"room"`
	StartsAt  time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	Course    Course    `gorm:"constraint:OnDelete:RESTRICT" json:"course"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
