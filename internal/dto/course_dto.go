package dto

import (
	"time"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// CourseCreateRequest captures the payload for creating a course.
type CourseCreateRequest struct {
	CourseNumber string `json:"course_number" validate:"required,max=16"`
	ScheduleName string `json:"schedule_name" validate:"required,max=128"`
}

// CourseResponse serializes a course.
type CourseResponse struct {
	ID           uint      `json:"id"`
	CourseNumber string    `json:"course_number"`
	ScheduleName string    `json:"schedule_name"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionCreateRequest captures the payload for scheduling a class session.
// A missing end time defaults to the configured session length.
type SessionCreateRequest struct {
	CourseID uint       `json:"course_id" validate:"required"`
	Code     string     `json:"code" validate:"omitempty,max=96"`
	Section  string     `json:"section" validate:"omitempty,max=32"`
	Room     string     `json:"room" validate:"omitempty,max=64"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	EndsAt   *time.Time `json:"ends_at"`
}

// SessionResponse serializes a class session with its derived sign-in window.
type SessionResponse struct {
	ID             uint      `json:"id"`
	CourseID       uint      `json:"course_id"`
	CourseNumber   string    `json:"course_number"`
	ScheduleName   string    `json:"schedule_name"`
	Code           string    `json:"code"`
	Section        string    `json:"section"`
	Room           string    `json:"room"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	SignInOpensAt  time.Time `json:"sign_in_opens_at"`
	SignInClosesAt time.Time `json:"sign_in_closes_at"`
	SignInState    string    `json:"sign_in_state"`
}

// EnrollmentRequest identifies the student to enroll or withdraw.
type EnrollmentRequest struct {
	IDNumber string `json:"id_number" validate:"required,max=32"`
}

// EnrollmentResponse serializes an enrollment.
type EnrollmentResponse struct {
	ID       uint           `json:"id"`
	CourseID uint           `json:"course_id"`
	Student  StudentSummary `json:"student"`
	Status   string         `json:"status"`
}

// CourseRosterResponse lists the students actively enrolled in a course.
type CourseRosterResponse struct {
	Course   CourseResponse   `json:"course"`
	Students []StudentSummary `json:"students"`
}

// NewCourseResponse converts a course model into a DTO.
func NewCourseResponse(course models.Course) CourseResponse {
	return CourseResponse{
		ID:           course.ID,
		CourseNumber: course.CourseNumber,
		ScheduleName: course.ScheduleName,
		Current:      course.Current,
		CreatedAt:    course.CreatedAt,
	}
}
