package models

import "time"

// Attendance sources.
const (
	AttendanceSourceScanned = "scanned"
	AttendanceSourceManual  = "manual"
)

// AttendanceRecord is the single proof of presence of a student at a class session.
// Records are corrected in place and never deleted.
type AttendanceRecord struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	StudentID   uint         `gorm:"not null;uniqueIndex:idx_attendance_student_session" json:"student_id"`
	SessionID   uint         `gorm:"not null;uniqueIndex:idx_attendance_student_session;index" json:"session_id"`
	RecordedAt  time.Time    `gorm:"not null" json:"recorded_at"`
	Source      string       `gorm:"size:16;not null" json:"source"`
	Note        string       `gorm:"size:500" json:"note"`
	CorrectedBy *uint        `json:"corrected_by"`
	CorrectedAt *time.Time   `json:"corrected_at"`
	Student     Student      `gorm:"constraint:OnDelete:RESTRICT" json:"student"`
	Session     ClassSession `gorm:"foreignKey:SessionID;constraint:OnDelete:RESTRICT" json:"session"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
