package dto

import "time"

// SessionAttendanceReport lists who attended a session and who did not.
type SessionAttendanceReport struct {
	Session      SessionResponse            `json:"session"`
	Records      []AttendanceRecordResponse `json:"records"`
	Present      []StudentSummary           `json:"present"`
	Absent       []StudentSummary           `json:"absent"`
	PresentCount int                        `json:"present_count"`
	AbsentCount  int                        `json:"absent_count"`
}

// LoanReportRow describes one loan as of the report time.
type LoanReportRow struct {
	Loan                LoanResponse `json:"loan"`
	Overdue             bool         `json:"overdue"`
	DaysOverdue         int          `json:"days_overdue"`
	AccruedPenaltyCents int64        `json:"accrued_penalty_cents"`
}

// LoanReport lists open or overdue loans at an instant.
type LoanReport struct {
	AsOf              time.Time       `json:"as_of"`
	Loans             []LoanReportRow `json:"loans"`
	TotalAccruedCents int64           `json:"total_accrued_cents"`
	OverdueCount      int             `json:"overdue_count"`
	OpenCount         int             `json:"open_count"`
	RatePerDayCents   int64           `json:"rate_per_day_cents"`
	PenaltyCapCents   int64           `json:"penalty_cap_cents"`
}

// StudentPenaltyTotal sums penalties per borrower.
type StudentPenaltyTotal struct {
	Student      StudentSummary `json:"student"`
	Loans        int            `json:"loans"`
	PenaltyCents int64          `json:"penalty_cents"`
}

// PenaltySummaryReport lists penalised returns in a date range.
type PenaltySummaryReport struct {
	From       time.Time             `json:"from"`
	To         time.Time             `json:"to"`
	Loans      []LoanResponse        `json:"loans"`
	Totals     []StudentPenaltyTotal `json:"totals"`
	TotalCents int64                 `json:"total_cents"`
}

// NotSeenRow is one student missing from attendance.
type NotSeenRow struct {
	Student    StudentSummary `json:"student"`
	LastSeenAt *time.Time     `json:"last_seen_at"`
}

// NotSeenReport lists enrolled students with no attendance since a date.
type NotSeenReport struct {
	Since    time.Time    `json:"since"`
	Students []NotSeenRow `json:"students"`
}
