package dto

import (
	"time"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// KioskScanRequest is posted by a sign-in kiosk for every barcode read.
// Without a session the student's currently open session is used.
type KioskScanRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	SessionID *uint  `json:"session_id"`
}

// ManualAttendanceRequest records staff-entered attendance for a session.
type ManualAttendanceRequest struct {
	SessionID uint     `json:"session_id" validate:"required"`
	IDNumbers []string `json:"id_numbers" validate:"required,min=1,max=200,dive,required,max=64"`
}

// AttendanceCorrectionRequest patches an existing attendance record.
type AttendanceCorrectionRequest struct {
	RecordedAt *time.Time `json:"recorded_at"`
	Source     *string    `json:"source" validate:"omitempty,oneof=scanned manual"`
	Note       *string    `json:"note" validate:"omitempty,max=500"`
}

// AttendanceRecordResponse serializes an attendance record.
type AttendanceRecordResponse struct {
	ID           uint           `json:"id"`
	Student      StudentSummary `json:"student"`
	SessionID    uint           `json:"session_id"`
	SessionCode  string         `json:"session_code"`
	CourseNumber string         `json:"course_number"`
	RecordedAt   time.Time      `json:"recorded_at"`
	Source       string         `json:"source"`
	Note         string         `json:"note"`
	CorrectedBy  *uint          `json:"corrected_by"`
	CorrectedAt  *time.Time     `json:"corrected_at"`
}

// AttendanceResultResponse reports the outcome of a sign-in.
type AttendanceResultResponse struct {
	Record  AttendanceRecordResponse `json:"record"`
	Created bool                     `json:"created"`
}

// Manual attendance outcome values.
const (
	ManualOutcomeRecorded        = "recorded"
	ManualOutcomeAlreadyRecorded = "already_recorded"
	ManualOutcomeRejected        = "rejected"
)

// ManualAttendanceResult reports the outcome for one identifier of a manual entry.
type ManualAttendanceResult struct {
	IDNumber string                    `json:"id_number"`
	Outcome  string                    `json:"outcome"`
	Reason   string                    `json:"reason,omitempty"`
	Record   *AttendanceRecordResponse `json:"record,omitempty"`
}

// NewAttendanceRecordResponse converts a record with preloaded student and session.
func NewAttendanceRecordResponse(record models.AttendanceRecord) AttendanceRecordResponse {
	return AttendanceRecordResponse{
		ID:           record.ID,
		Student:      NewStudentSummary(record.Student),
		SessionID:    record.SessionID,
		SessionCode:  record.Session.Code,
		CourseNumber: record.Session.Course.CourseNumber,
		RecordedAt:   record.RecordedAt,
		Source:       record.Source,
		Note:         record.Note,
		CorrectedBy:  record.CorrectedBy,
		CorrectedAt:  record.CorrectedAt,
	}
}
