package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

// CourseService manages courses, their class sessions and enrollments.
type CourseService interface {
	CreateCourse(ctx context.Context, req dto.CourseCreateRequest, actor ActivityActor) (dto.CourseResponse, error)
	// EnsureCourse returns the course with the given number and schedule,
	// creating it when missing. The boolean reports whether it was created.
	EnsureCourse(ctx context.Context, courseNumber, scheduleName string, actor ActivityActor) (models.Course, bool, error)
	GetCourse(ctx context.Context, id uint) (dto.CourseResponse, error)
	ListCourses(ctx context.Context, currentOnly bool) ([]dto.CourseResponse, error)

	CreateSession(ctx context.Context, req dto.SessionCreateRequest, actor ActivityActor) (dto.SessionResponse, error)
	// SessionExists reports whether the course already has a session at the slot.
	SessionExists(ctx context.Context, courseID uint, startsAt time.Time, section string) (bool, error)
	GetSession(ctx context.Context, id uint) (dto.SessionResponse, error)
	ListSessions(ctx context.Context, courseID *uint, from, to *time.Time) ([]dto.SessionResponse, error)
	OpenSessions(ctx context.Context) ([]dto.SessionResponse, error)

	Enroll(ctx context.Context, courseID uint, idNumber string, actor ActivityActor) (dto.EnrollmentResponse, error)
	Withdraw(ctx context.Context, courseID uint, idNumber string, actor ActivityActor) (dto.EnrollmentResponse, error)
	Roster(ctx context.Context, courseID uint) (dto.CourseRosterResponse, error)
}

type courseService struct {
	courses   repository.CourseRepository
	sessions  repository.SessionRepository
	students  repository.StudentRepository
	window    policy.SignInWindow
	location  *time.Location
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewCourseService constructs the course service.
func NewCourseService(
	courses repository.CourseRepository,
	sessions repository.SessionRepository,
	students repository.StudentRepository,
	window policy.SignInWindow,
	location *time.Location,
	validator *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) CourseService {
	if location == nil {
		location = time.UTC
	}
	return &courseService{
		courses:   courses,
		sessions:  sessions,
		students:  students,
		window:    window,
		location:  location,
		validator: validator,
		activity:  activity,
		logger:    logger.With().Str("component", "course_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campusdesk-api/internal/service/course"),
		now:       time.Now,
	}
}

func (s *courseService) CreateCourse(ctx context.Context, req dto.CourseCreateRequest, actor ActivityActor) (dto.CourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseResponse{}, err
	}

	course := models.Course{
		CourseNumber: strings.ToUpper(strings.TrimSpace(req.CourseNumber)),
		ScheduleName: cleanText(req.ScheduleName),
		Current:      true,
	}
	if course.ScheduleName == "" {
		return dto.CourseResponse{}, validationError("ScheduleName", "required")
	}

	if err := s.courses.Create(ctx, &course); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.CourseResponse{}, ErrDuplicateCourse
		}
		return dto.CourseResponse{}, err
	}

	s.recordCourse(ctx, actor, course)
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) EnsureCourse(ctx context.Context, courseNumber, scheduleName string, actor ActivityActor) (models.Course, bool, error) {
	number := strings.ToUpper(strings.TrimSpace(courseNumber))
	name := cleanText(scheduleName)

	existing, err := s.courses.FindByNumber(ctx, number, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Course{}, false, err
	}

	course := models.Course{CourseNumber: number, ScheduleName: name, Current: true}
	if err := s.courses.Create(ctx, &course); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.courses.FindByNumber(ctx, number, name)
			return existing, false, findErr
		}
		return models.Course{}, false, err
	}

	s.recordCourse(ctx, actor, course)
	return course, true, nil
}

func (s *courseService) recordCourse(ctx context.Context, actor ActivityActor, course models.Course) {
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "course.created",
		EntityType: "course",
		EntityID:   &course.ID,
		Metadata:   map[string]interface{}{"course_number": course.CourseNumber, "schedule_name": course.ScheduleName},
	})
}

func (s *courseService) GetCourse(ctx context.Context, id uint) (dto.CourseResponse, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, mapCourseError(err)
	}
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) ListCourses(ctx context.Context, currentOnly bool) ([]dto.CourseResponse, error) {
	courses, err := s.courses.List(ctx, currentOnly)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.CourseResponse, 0, len(courses))
	for _, course := range courses {
		responses = append(responses, dto.NewCourseResponse(course))
	}
	return responses, nil
}

func (s *courseService) CreateSession(ctx context.Context, req dto.SessionCreateRequest, actor ActivityActor) (dto.SessionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()
	span.SetAttributes(attribute.Int("course.id", int(req.CourseID)))

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.SessionResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return dto.SessionResponse{}, mapCourseError(err)
	}

	startsAt := req.StartsAt.UTC()
	endsAt := startsAt.Add(s.window.DefaultLength)
	if req.EndsAt != nil {
		endsAt = req.EndsAt.UTC()
	}
	if !endsAt.After(startsAt) {
		return dto.SessionResponse{}, ErrInvalidSchedule
	}

	section := strings.TrimSpace(req.Section)
	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = s.sessionCode(course, startsAt, section)
	}

	session := models.ClassSession{
		CourseID: course.ID,
		Code:     code,
		Section:  section,
		Room:     cleanText(req.Room),
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.SessionResponse{}, ErrDuplicateSession
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return dto.SessionResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "session.created",
		EntityType: "session",
		EntityID:   &session.ID,
		Metadata:   map[string]interface{}{"code": session.Code},
	})

	return newSessionResponse(session, s.window, s.now()), nil
}

// sessionCode builds the default code from the course number and the local start.
func (s *courseService) sessionCode(course models.Course, startsAt time.Time, section string) string {
	local := startsAt.In(s.location)
	code := fmt.Sprintf("%s-%s", course.CourseNumber, local.Format("20060102-1504"))
	if section != "" {
		code += "-" + strings.ToUpper(strings.ReplaceAll(section, " ", ""))
	}
	return code
}

func (s *courseService) SessionExists(ctx context.Context, courseID uint, startsAt time.Time, section string) (bool, error) {
	_, err := s.sessions.FindScheduled(ctx, courseID, startsAt, strings.TrimSpace(section))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *courseService) GetSession(ctx context.Context, id uint) (dto.SessionResponse, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return dto.SessionResponse{}, mapSessionError(err)
	}
	return newSessionResponse(session, s.window, s.now()), nil
}

func (s *courseService) ListSessions(ctx context.Context, courseID *uint, from, to *time.Time) ([]dto.SessionResponse, error) {
	sessions, err := s.sessions.List(ctx, repository.SessionFilter{CourseID: courseID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	return newSessionResponses(sessions, s.window, s.now()), nil
}

func (s *courseService) OpenSessions(ctx context.Context) ([]dto.SessionResponse, error) {
	now := s.now()
	sessions, err := openSessions(ctx, s.sessions, s.window, nil, now)
	if err != nil {
		return nil, err
	}
	return newSessionResponses(sessions, s.window, now), nil
}

func (s *courseService) Enroll(ctx context.Context, courseID uint, idNumber string, actor ActivityActor) (dto.EnrollmentResponse, error) {
	return s.setEnrollment(ctx, courseID, idNumber, models.EnrollmentStatusActive, actor)
}

func (s *courseService) Withdraw(ctx context.Context, courseID uint, idNumber string, actor ActivityActor) (dto.EnrollmentResponse, error) {
	return s.setEnrollment(ctx, courseID, idNumber, models.EnrollmentStatusWithdrawn, actor)
}

func (s *courseService) setEnrollment(ctx context.Context, courseID uint, idNumber, status string, actor ActivityActor) (dto.EnrollmentResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return dto.EnrollmentResponse{}, mapCourseError(err)
	}

	student, err := s.students.GetByIDNumber(ctx, normalizeIdentifier(idNumber))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentResponse{}, ErrUnknownStudent
		}
		return dto.EnrollmentResponse{}, err
	}

	enrollment, err := s.courses.Enroll(ctx, student.ID, course.ID, status)
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}

	action := "enrollment.activated"
	if status == models.EnrollmentStatusWithdrawn {
		action = "enrollment.withdrawn"
	}
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "enrollment",
		EntityID:   &enrollment.ID,
		Metadata:   map[string]interface{}{"course_id": course.ID, "id_number": student.IDNumber},
	})

	return dto.EnrollmentResponse{
		ID:       enrollment.ID,
		CourseID: course.ID,
		Student:  dto.NewStudentSummary(student),
		Status:   enrollment.Status,
	}, nil
}

func (s *courseService) Roster(ctx context.Context, courseID uint) (dto.CourseRosterResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return dto.CourseRosterResponse{}, mapCourseError(err)
	}

	students, err := s.courses.ActiveStudents(ctx, course.ID)
	if err != nil {
		return dto.CourseRosterResponse{}, err
	}

	summaries := make([]dto.StudentSummary, 0, len(students))
	for _, student := range students {
		summaries = append(summaries, dto.NewStudentSummary(student))
	}
	return dto.CourseRosterResponse{Course: dto.NewCourseResponse(course), Students: summaries}, nil
}

// openSessions returns the sessions whose sign-in window contains now,
// optionally restricted to the given courses.
func openSessions(ctx context.Context, repo repository.SessionRepository, window policy.SignInWindow, courseIDs []uint, now time.Time) ([]models.ClassSession, error) {
	// Candidates start no later than now+Lead and end no earlier than now-Grace.
	candidates, err := repo.Overlapping(ctx, courseIDs, now.Add(-window.Grace), now.Add(window.Lead))
	if err != nil {
		return nil, err
	}

	open := make([]models.ClassSession, 0, len(candidates))
	for _, session := range candidates {
		if window.IsOpen(session.StartsAt, session.EndsAt, now) {
			open = append(open, session)
		}
	}
	return open, nil
}

func newSessionResponse(session models.ClassSession, window policy.SignInWindow, now time.Time) dto.SessionResponse {
	opens, closes := window.Bounds(session.StartsAt, session.EndsAt)
	return dto.SessionResponse{
		ID:             session.ID,
		CourseID:       session.CourseID,
		CourseNumber:   session.Course.CourseNumber,
		ScheduleName:   session.Course.ScheduleName,
		Code:           session.Code,
		Section:        session.Section,
		Room:           session.Room,
		StartsAt:       session.StartsAt,
		EndsAt:         session.EndsAt,
		SignInOpensAt:  opens,
		SignInClosesAt: closes,
		SignInState:    window.State(session.StartsAt, session.EndsAt, now).String(),
	}
}

func newSessionResponses(sessions []models.ClassSession, window policy.SignInWindow, now time.Time) []dto.SessionResponse {
	responses := make([]dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, newSessionResponse(session, window, now))
	}
	return responses
}

func mapCourseError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCourseNotFound
	}
	return err
}

func mapSessionError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}
