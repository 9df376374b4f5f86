package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
	"github.com/noah-isme/campusdesk-api/internal/observability"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

// AttendanceResult is the outcome of a successful sign-in. Created is false
// when the student had already signed in to the session.
type AttendanceResult struct {
	Record  models.AttendanceRecord
	Created bool
}

// StudentFinder resolves scanned identifiers to students.
type StudentFinder interface {
	Lookup(ctx context.Context, identifier string) (StudentLookup, error)
}

// AttendanceService records and corrects class attendance.
type AttendanceService interface {
	RecordAttendance(ctx context.Context, identifier string, sessionID uint, source string) (AttendanceResult, error)
	Scan(ctx context.Context, req dto.KioskScanRequest) (dto.AttendanceResultResponse, error)
	RecordManual(ctx context.Context, req dto.ManualAttendanceRequest, actor ActivityActor) ([]dto.ManualAttendanceResult, error)
	Correct(ctx context.Context, recordID uint, req dto.AttendanceCorrectionRequest, actor ActivityActor) (dto.AttendanceRecordResponse, error)
	Get(ctx context.Context, recordID uint) (dto.AttendanceRecordResponse, error)
	ListForSession(ctx context.Context, sessionID uint) ([]dto.AttendanceRecordResponse, error)
	ListForStudent(ctx context.Context, idNumber string, from, to *time.Time) ([]dto.AttendanceRecordResponse, error)
}

type attendanceService struct {
	students  StudentFinder
	courses   repository.CourseRepository
	sessions  repository.SessionRepository
	records   repository.AttendanceRepository
	window    policy.SignInWindow
	validator *validator.Validate
	publisher EventPublisher
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAttendanceService constructs the attendance engine.
func NewAttendanceService(
	students StudentFinder,
	courses repository.CourseRepository,
	sessions repository.SessionRepository,
	records repository.AttendanceRepository,
	window policy.SignInWindow,
	validator *validator.Validate,
	publisher EventPublisher,
	activity ActivityRecorder,
	logger zerolog.Logger,
) AttendanceService {
	return &attendanceService{
		students:  students,
		courses:   courses,
		sessions:  sessions,
		records:   records,
		window:    window,
		validator: validator,
		publisher: publisher,
		activity:  activity,
		logger:    logger.With().Str("component", "attendance_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/attendance"),
		now:       time.Now,
	}
}

func (s *attendanceService) RecordAttendance(ctx context.Context, identifier string, sessionID uint, source string) (AttendanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.record")
	defer span.End()
	span.SetAttributes(
		attribute.Int("session.id", int(sessionID)),
		attribute.String("attendance.source", source),
	)

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		err = mapSessionError(err)
		s.reject(span, source, "session_not_found", err)
		return AttendanceResult{}, err
	}

	lookup, err := s.students.Lookup(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return AttendanceResult{}, err
	}
	if !lookup.Found {
		s.reject(span, source, "unknown_student", ErrUnknownStudent)
		return AttendanceResult{}, ErrUnknownStudent
	}

	return s.signIn(ctx, span, lookup.Student, session, source)
}

func (s *attendanceService) signIn(ctx context.Context, span trace.Span, student models.Student, session models.ClassSession, source string) (AttendanceResult, error) {
	span.SetAttributes(attribute.Int("student.id", int(student.ID)))

	// A repeated scan returns the first record, even after the window closed or
	// the enrollment ended.
	existing, err := s.records.Find(ctx, student.ID, session.ID)
	if err == nil {
		s.observe(source, "already_recorded")
		return AttendanceResult{Record: existing}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return AttendanceResult{}, err
	}

	enrolled, err := s.isEnrolled(ctx, student, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrollment check failed")
		return AttendanceResult{}, err
	}
	if !enrolled {
		s.reject(span, source, "not_enrolled", ErrNotEnrolled)
		return AttendanceResult{}, ErrNotEnrolled
	}

	now := s.now()
	if !s.window.IsOpen(session.StartsAt, session.EndsAt, now) {
		s.reject(span, source, "closed", ErrSessionClosed)
		return AttendanceResult{}, ErrSessionClosed
	}

	record, created, err := s.records.CreateIfAbsent(ctx, models.AttendanceRecord{
		StudentID:  student.ID,
		SessionID:  session.ID,
		RecordedAt: now.UTC(),
		Source:     source,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.logger.Error().Err(err).Uint("student_id", student.ID).Uint("session_id", session.ID).Msg("failed to record attendance")
		return AttendanceResult{}, err
	}

	if !created {
		s.observe(source, "already_recorded")
		return AttendanceResult{Record: record}, nil
	}

	s.observe(source, "recorded")
	s.logger.Info().
		Str("id_number", student.IDNumber).
		Str("session", session.Code).
		Str("source", source).
		Msg("attendance recorded")
	s.publish(ctx, record, EventAttendanceRecorded)

	return AttendanceResult{Record: record, Created: true}, nil
}

// isEnrolled requires an active enrollment and a student active on the session date.
func (s *attendanceService) isEnrolled(ctx context.Context, student models.Student, session models.ClassSession) (bool, error) {
	if !student.ActiveOn(session.StartsAt) {
		return false, nil
	}
	enrollment, err := s.courses.GetEnrollment(ctx, student.ID, session.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return enrollment.Status == models.EnrollmentStatusActive, nil
}

func (s *attendanceService) Scan(ctx context.Context, req dto.KioskScanRequest) (dto.AttendanceResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AttendanceResultResponse{}, err
	}

	if req.SessionID != nil {
		result, err := s.RecordAttendance(ctx, req.Code, *req.SessionID, models.AttendanceSourceScanned)
		if err != nil {
			return dto.AttendanceResultResponse{}, err
		}
		return newAttendanceResult(result), nil
	}

	ctx, span := s.tracer.Start(ctx, "attendance.scan")
	defer span.End()

	lookup, err := s.students.Lookup(ctx, req.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return dto.AttendanceResultResponse{}, err
	}
	if !lookup.Found {
		s.reject(span, models.AttendanceSourceScanned, "unknown_student", ErrUnknownStudent)
		return dto.AttendanceResultResponse{}, ErrUnknownStudent
	}

	courseIDs, err := s.courses.ActiveCourseIDs(ctx, lookup.Student.ID)
	if err != nil {
		return dto.AttendanceResultResponse{}, err
	}
	if len(courseIDs) == 0 {
		s.reject(span, models.AttendanceSourceScanned, "not_enrolled", ErrNotEnrolled)
		return dto.AttendanceResultResponse{}, ErrNotEnrolled
	}

	open, err := openSessions(ctx, s.sessions, s.window, courseIDs, s.now())
	if err != nil {
		return dto.AttendanceResultResponse{}, err
	}
	if len(open) == 0 {
		s.reject(span, models.AttendanceSourceScanned, "closed", ErrSessionClosed)
		return dto.AttendanceResultResponse{}, ErrSessionClosed
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].StartsAt.Before(open[j].StartsAt) })

	span.SetAttributes(attribute.Int("session.id", int(open[0].ID)))
	result, err := s.signIn(ctx, span, lookup.Student, open[0], models.AttendanceSourceScanned)
	if err != nil {
		return dto.AttendanceResultResponse{}, err
	}
	return newAttendanceResult(result), nil
}

func (s *attendanceService) RecordManual(ctx context.Context, req dto.ManualAttendanceRequest, actor ActivityActor) ([]dto.ManualAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	if _, err := s.sessions.GetByID(ctx, req.SessionID); err != nil {
		return nil, mapSessionError(err)
	}

	results := make([]dto.ManualAttendanceResult, 0, len(req.IDNumbers))
	for _, raw := range req.IDNumbers {
		idNumber := normalizeIdentifier(raw)
		outcome := dto.ManualAttendanceResult{IDNumber: idNumber}

		result, err := s.RecordAttendance(ctx, idNumber, req.SessionID, models.AttendanceSourceManual)
		switch {
		case err == nil:
			record := dto.NewAttendanceRecordResponse(result.Record)
			outcome.Record = &record
			outcome.Outcome = dto.ManualOutcomeAlreadyRecorded
			if result.Created {
				outcome.Outcome = dto.ManualOutcomeRecorded
			}
		case errors.Is(err, ErrUnknownStudent), errors.Is(err, ErrNotEnrolled), errors.Is(err, ErrSessionClosed):
			outcome.Outcome = dto.ManualOutcomeRejected
			outcome.Reason = err.Error()
		default:
			return nil, err
		}
		results = append(results, outcome)
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "attendance.manual_entry",
		EntityType: "session",
		EntityID:   &req.SessionID,
		Metadata:   map[string]interface{}{"identifiers": len(req.IDNumbers)},
	})

	return results, nil
}

func (s *attendanceService) Correct(ctx context.Context, recordID uint, req dto.AttendanceCorrectionRequest, actor ActivityActor) (dto.AttendanceRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.correct")
	defer span.End()
	span.SetAttributes(attribute.Int("attendance.id", int(recordID)))

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.AttendanceRecordResponse{}, err
	}

	now := s.now().UTC()
	updates := map[string]interface{}{
		"corrected_at": now,
	}
	if actor.ID != 0 {
		updates["corrected_by"] = actor.ID
	}
	changed := []string{}
	if req.RecordedAt != nil {
		updates["recorded_at"] = req.RecordedAt.UTC()
		changed = append(changed, "recorded_at")
	}
	if req.Source != nil {
		updates["source"] = *req.Source
		changed = append(changed, "source")
	}
	if req.Note != nil {
		updates["note"] = cleanText(*req.Note)
		changed = append(changed, "note")
	}
	if len(changed) == 0 {
		return dto.AttendanceRecordResponse{}, validationError("RecordedAt", "required_without_all")
	}

	record, err := s.records.Update(ctx, recordID, updates)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttendanceRecordResponse{}, ErrAttendanceNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return dto.AttendanceRecordResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "attendance.corrected",
		EntityType: "attendance",
		EntityID:   &record.ID,
		Metadata:   map[string]interface{}{"fields": changed},
	})
	s.publish(ctx, record, EventAttendanceCorrected)

	return dto.NewAttendanceRecordResponse(record), nil
}

func (s *attendanceService) Get(ctx context.Context, recordID uint) (dto.AttendanceRecordResponse, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttendanceRecordResponse{}, ErrAttendanceNotFound
		}
		return dto.AttendanceRecordResponse{}, err
	}
	return dto.NewAttendanceRecordResponse(record), nil
}

func (s *attendanceService) ListForSession(ctx context.Context, sessionID uint) ([]dto.AttendanceRecordResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}

	records, err := s.records.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AttendanceRecordResponse, 0, len(records))
	for _, record := range records {
		record.Session = session
		responses = append(responses, dto.NewAttendanceRecordResponse(record))
	}
	return responses, nil
}

func (s *attendanceService) ListForStudent(ctx context.Context, idNumber string, from, to *time.Time) ([]dto.AttendanceRecordResponse, error) {
	lookup, err := s.students.Lookup(ctx, idNumber)
	if err != nil {
		return nil, err
	}
	if !lookup.Found {
		return nil, ErrStudentNotFound
	}

	records, err := s.records.ListByStudent(ctx, lookup.Student.ID, from, to)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AttendanceRecordResponse, 0, len(records))
	for _, record := range records {
		record.Student = lookup.Student
		responses = append(responses, dto.NewAttendanceRecordResponse(record))
	}
	return responses, nil
}

func (s *attendanceService) publish(ctx context.Context, record models.AttendanceRecord, eventType string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, SessionTopic(record.SessionID), eventType, dto.NewAttendanceRecordResponse(record)); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish attendance event")
	}
}

func (s *attendanceService) reject(span trace.Span, source, outcome string, err error) {
	s.observe(source, outcome)
	span.SetAttributes(attribute.String("attendance.outcome", outcome))
	span.SetStatus(codes.Error, err.Error())
}

func (s *attendanceService) observe(source, outcome string) {
	observability.AttendanceSignIns().WithLabelValues(source, outcome).Inc()
}

func newAttendanceResult(result AttendanceResult) dto.AttendanceResultResponse {
	return dto.AttendanceResultResponse{
		Record:  dto.NewAttendanceRecordResponse(result.Record),
		Created: result.Created,
	}
}
