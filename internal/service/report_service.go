package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

// ReportService answers read-only questions about attendance and loans.
type ReportService interface {
	SessionAttendance(ctx context.Context, sessionID uint) (dto.SessionAttendanceReport, error)
	Loans(ctx context.Context, asOf time.Time, overdueOnly bool) (dto.LoanReport, error)
	PenaltySummary(ctx context.Context, from, to time.Time) (dto.PenaltySummaryReport, error)
	NotSeen(ctx context.Context, since time.Time) (dto.NotSeenReport, error)
}

type reportService struct {
	reports    repository.ReportRepository
	sessions   repository.SessionRepository
	courses    repository.CourseRepository
	attendance repository.AttendanceRepository
	window     policy.SignInWindow
	rate       policy.RatePolicy
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewReportService constructs the reporting service.
func NewReportService(
	reports repository.ReportRepository,
	sessions repository.SessionRepository,
	courses repository.CourseRepository,
	attendance repository.AttendanceRepository,
	window policy.SignInWindow,
	rate policy.RatePolicy,
	logger zerolog.Logger,
) ReportService {
	return &reportService{
		reports:    reports,
		sessions:   sessions,
		courses:    courses,
		attendance: attendance,
		window:     window,
		rate:       rate,
		logger:     logger.With().Str("component", "report_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/report"),
		now:        time.Now,
	}
}

func (s *reportService) SessionAttendance(ctx context.Context, sessionID uint) (dto.SessionAttendanceReport, error) {
	ctx, span := s.tracer.Start(ctx, "report.session_attendance")
	defer span.End()
	span.SetAttributes(attribute.Int("session.id", int(sessionID)))

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return dto.SessionAttendanceReport{}, mapSessionError(err)
	}

	records, err := s.attendance.ListBySession(ctx, session.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list records failed")
		return dto.SessionAttendanceReport{}, err
	}

	roster, err := s.courses.ActiveStudents(ctx, session.CourseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "roster failed")
		return dto.SessionAttendanceReport{}, err
	}

	attended := make(map[uint]struct{}, len(records))
	report := dto.SessionAttendanceReport{
		Session: newSessionResponse(session, s.window, s.now()),
		Records: make([]dto.AttendanceRecordResponse, 0, len(records)),
		Present: make([]dto.StudentSummary, 0, len(records)),
		Absent:  []dto.StudentSummary{},
	}
	for _, record := range records {
		record.Session = session
		attended[record.StudentID] = struct{}{}
		report.Records = append(report.Records, dto.NewAttendanceRecordResponse(record))
		report.Present = append(report.Present, dto.NewStudentSummary(record.Student))
	}
	for _, student := range roster {
		if _, ok := attended[student.ID]; ok {
			continue
		}
		if !student.ActiveOn(session.StartsAt) {
			continue
		}
		report.Absent = append(report.Absent, dto.NewStudentSummary(student))
	}
	report.PresentCount = len(report.Present)
	report.AbsentCount = len(report.Absent)

	return report, nil
}

func (s *reportService) Loans(ctx context.Context, asOf time.Time, overdueOnly bool) (dto.LoanReport, error) {
	ctx, span := s.tracer.Start(ctx, "report.loans")
	defer span.End()

	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = asOf.UTC()

	loans, err := s.reports.LoansOpenAt(ctx, asOf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return dto.LoanReport{}, err
	}

	report := dto.LoanReport{
		AsOf:            asOf,
		Loans:           make([]dto.LoanReportRow, 0, len(loans)),
		RatePerDayCents: s.rate.PerDayCents,
		PenaltyCapCents: s.rate.MaxCents,
	}
	for _, loan := range loans {
		days := s.rate.DaysOverdue(loan.DueAt, asOf)
		overdue := asOf.After(loan.DueAt)
		report.OpenCount++
		if overdue {
			report.OverdueCount++
		}
		if overdueOnly && !overdue {
			continue
		}

		row := dto.LoanReportRow{
			Loan:                dto.NewLoanResponse(loan),
			Overdue:             overdue,
			DaysOverdue:         days,
			AccruedPenaltyCents: s.rate.Penalty(loan.DueAt, asOf),
		}
		// A loan returned after asOf was still out at asOf.
		row.Loan.Open = true
		report.TotalAccruedCents += row.AccruedPenaltyCents
		report.Loans = append(report.Loans, row)
	}
	span.SetAttributes(attribute.Int("report.open", report.OpenCount), attribute.Int("report.overdue", report.OverdueCount))
	return report, nil
}

func (s *reportService) PenaltySummary(ctx context.Context, from, to time.Time) (dto.PenaltySummaryReport, error) {
	if !to.After(from) {
		return dto.PenaltySummaryReport{}, validationError("To", "gtfield")
	}

	loans, err := s.reports.PenalizedReturns(ctx, from, to)
	if err != nil {
		return dto.PenaltySummaryReport{}, err
	}

	totals := make(map[uint]*dto.StudentPenaltyTotal)
	report := dto.PenaltySummaryReport{
		From:   from.UTC(),
		To:     to.UTC(),
		Loans:  dto.NewLoanResponseSlice(loans),
		Totals: []dto.StudentPenaltyTotal{},
	}
	for _, loan := range loans {
		total, ok := totals[loan.StudentID]
		if !ok {
			total = &dto.StudentPenaltyTotal{Student: dto.NewStudentSummary(loan.Student)}
			totals[loan.StudentID] = total
		}
		total.Loans++
		total.PenaltyCents += loan.PenaltyCents
		report.TotalCents += loan.PenaltyCents
	}
	for _, total := range totals {
		report.Totals = append(report.Totals, *total)
	}
	sort.Slice(report.Totals, func(i, j int) bool {
		if report.Totals[i].PenaltyCents != report.Totals[j].PenaltyCents {
			return report.Totals[i].PenaltyCents > report.Totals[j].PenaltyCents
		}
		return report.Totals[i].Student.IDNumber < report.Totals[j].Student.IDNumber
	})

	s.logger.Debug().Time("from", from).Time("to", to).Int64("total_cents", report.TotalCents).Msg("penalty summary built")
	return report, nil
}

func (s *reportService) NotSeen(ctx context.Context, since time.Time) (dto.NotSeenReport, error) {
	students, err := s.reports.StudentsNotSeenSince(ctx, since)
	if err != nil {
		return dto.NotSeenReport{}, err
	}

	ids := make([]uint, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	lastSeen, err := s.reports.LastSeen(ctx, ids)
	if err != nil {
		return dto.NotSeenReport{}, err
	}

	now := s.now()
	report := dto.NotSeenReport{Since: since.UTC(), Students: make([]dto.NotSeenRow, 0, len(students))}
	for _, student := range students {
		if !student.ActiveOn(now) {
			continue
		}
		row := dto.NotSeenRow{Student: dto.NewStudentSummary(student)}
		if at, ok := lastSeen[student.ID]; ok {
			at := at
			row.LastSeenAt = &at
		}
		report.Students = append(report.Students, row)
	}
	return report, nil
}
