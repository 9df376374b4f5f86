package dto

import (
	"time"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// StudentCreateRequest captures the payload for registering a student.
type StudentCreateRequest struct {
	IDNumber      string `json:"id_number" validate:"required,max=32"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	PreferredName string `json:"preferred_name" validate:"omitempty,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	Email         string `json:"email" validate:"omitempty,email,max=255"`
	EnrolledUntil string `json:"enrolled_until" validate:"omitempty,datetime=2006-01-02"`
}

// StudentUpdateRequest allows partial updates of a student. The ID number is immutable.
type StudentUpdateRequest struct {
	FirstName     *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	PreferredName *string `json:"preferred_name" validate:"omitempty,max=100"`
	LastName      *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email         *string `json:"email" validate:"omitempty,email,max=255"`
	Status        *string `json:"status" validate:"omitempty,oneof=active on_leave withdrawn graduated"`
	EnrolledUntil *string `json:"enrolled_until" validate:"omitempty,max=10"`
}

// StudentListRequest defines filters for listing students.
type StudentListRequest struct {
	Page     int
	PageSize int
	Search   string
	Status   string
}

// StudentResponse serializes a student.
type StudentResponse struct {
	ID            uint       `json:"id"`
	IDNumber      string     `json:"id_number"`
	FirstName     string     `json:"first_name"`
	PreferredName string     `json:"preferred_name"`
	LastName      string     `json:"last_name"`
	DisplayName   string     `json:"display_name"`
	Email         string     `json:"email"`
	Status        string     `json:"status"`
	EnrolledUntil *time.Time `json:"enrolled_until"`
	PhotoURL      string     `json:"photo_url"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// StudentListResponse wraps a paginated student response.
type StudentListResponse struct {
	Items      []StudentResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// StudentSummary is the compact student shape embedded in other payloads.
type StudentSummary struct {
	ID       uint   `json:"id"`
	IDNumber string `json:"id_number"`
	Name     string `json:"name"`
}

// NewStudentResponse converts a student model into a DTO.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:            student.ID,
		IDNumber:      student.IDNumber,
		FirstName:     student.FirstName,
		PreferredName: student.PreferredName,
		LastName:      student.LastName,
		DisplayName:   student.DisplayName(),
		Email:         student.Email,
		Status:        student.Status,
		EnrolledUntil: student.EnrolledUntil,
		PhotoURL:      student.PhotoURL,
		CreatedAt:     student.CreatedAt,
		UpdatedAt:     student.UpdatedAt,
	}
}

// NewStudentSummary converts a student model into its compact form.
func NewStudentSummary(student models.Student) StudentSummary {
	return StudentSummary{ID: student.ID, IDNumber: student.IDNumber, Name: student.DisplayName()}
}
