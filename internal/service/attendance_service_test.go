package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
	"github.com/noah-isme/campusdesk-api/internal/policy"
	"github.com/noah-isme/campusdesk-api/internal/repository"
)

type attendanceFixture struct {
	db        *gorm.DB
	svc       *attendanceService
	clock     *time.Time
	publisher *recordingPublisher
	activity  *stubActivityRecorder
	student   models.Student
	course    models.Course
	session   models.ClassSession
}

func setupAttendanceService(t *testing.T) *attendanceFixture {
	t.Helper()
	db := setupServiceDB(t)
	students := repository.NewStudentRepository(db)
	publisher := &recordingPublisher{}
	activity := &stubActivityRecorder{}

	studentSvc := NewStudentService(students, nil, testValidator(), activity, time.UTC, testLogger())
	svc := NewAttendanceService(
		studentSvc,
		repository.NewCourseRepository(db),
		repository.NewSessionRepository(db),
		repository.NewAttendanceRepository(db),
		policy.SignInWindow{Lead: 15 * time.Minute, Grace: 10 * time.Minute, DefaultLength: time.Hour},
		testValidator(),
		publisher,
		activity,
		testLogger(),
	).(*attendanceService)

	clock := mondayNine.Add(-time.Hour)
	svc.now = func() time.Time { return clock }

	student := seedStudent(t, db, "1234")
	course := seedCourse(t, db, "PHOTO101")
	session := seedSession(t, db, course, "Photo101-Mon", mondayNine, 3*time.Hour)
	seedEnrollment(t, db, student, course)

	return &attendanceFixture{
		db:        db,
		svc:       svc,
		clock:     &clock,
		publisher: publisher,
		activity:  activity,
		student:   student,
		course:    course,
		session:   session,
	}
}

func (f *attendanceFixture) setNow(now time.Time) {
	*f.clock = now
}

func (f *attendanceFixture) count(t *testing.T) int64 {
	t.Helper()
	var total int64
	require.NoError(t, f.db.Model(&models.AttendanceRecord{}).Where("session_id = ?", f.session.ID).Count(&total).Error)
	return total
}

func TestAttendanceSignInScenario(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()

	_, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.Zero(t, f.count(t))

	f.setNow(mondayNine.Add(-5 * time.Minute))
	first, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, models.AttendanceSourceScanned, first.Record.Source)
	require.Equal(t, "1234", first.Record.Student.IDNumber)
	require.Equal(t, "PHOTO101", first.Record.Session.Course.CourseNumber)

	f.setNow(mondayNine.Add(10 * time.Minute))
	second, err := f.svc.RecordAttendance(ctx, "*1234*\n", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, first.Record.RecordedAt.UTC(), second.Record.RecordedAt.UTC())
	require.EqualValues(t, 1, f.count(t))

	require.Equal(t, []string{EventAttendanceRecorded}, f.publisher.types())
	require.Equal(t, SessionTopic(f.session.ID), f.publisher.events[0].Topic)
}

func TestAttendanceRescanAfterWindowReturnsExistingRecord(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()

	f.setNow(mondayNine)
	first, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)

	f.setNow(mondayNine.Add(5 * time.Hour))
	again, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, first.Record.ID, again.Record.ID)
}

func TestAttendanceRescanAfterWithdrawalReturnsExistingRecord(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()

	f.setNow(mondayNine)
	first, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.True(t, first.Created)

	require.NoError(t, f.db.Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ?", f.student.ID, f.course.ID).
		Update("status", models.EnrollmentStatusWithdrawn).Error)
	require.NoError(t, f.db.Model(&models.Student{}).
		Where("id = ?", f.student.ID).
		Update("status", models.StudentStatusOnLeave).Error)

	again, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, first.Record.ID, again.Record.ID)
	require.EqualValues(t, 1, f.count(t))
}

func TestAttendanceWindowBoundaries(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()

	f.setNow(mondayNine.Add(3*time.Hour + 10*time.Minute))
	_, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrSessionClosed)

	f.setNow(mondayNine.Add(-15 * time.Minute))
	result, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)
	require.True(t, result.Created)
}

func TestAttendanceRejectsUnknownAndUnenrolled(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()
	f.setNow(mondayNine)

	_, err := f.svc.RecordAttendance(ctx, "0000", f.session.ID, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrUnknownStudent)

	_, err = f.svc.RecordAttendance(ctx, "1234", 999, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrSessionNotFound)

	seedStudent(t, f.db, "5678")
	_, err = f.svc.RecordAttendance(ctx, "5678", f.session.ID, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrNotEnrolled)

	expired := mondayNine.Add(-24 * time.Hour)
	require.NoError(t, f.db.Model(&models.Student{}).Where("id = ?", f.student.ID).Update("enrolled_until", expired).Error)
	_, err = f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.ErrorIs(t, err, ErrNotEnrolled)

	require.Zero(t, f.count(t))
	require.Empty(t, f.publisher.types())
}

func TestAttendanceConcurrentScansStoreOneRecord(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()
	f.setNow(mondayNine)

	const workers = 8
	var wg sync.WaitGroup
	created := make(chan bool, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
			if err != nil {
				errs <- err
				return
			}
			created <- result.Created
		}()
	}
	wg.Wait()
	close(created)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	createdCount := 0
	for c := range created {
		if c {
			createdCount++
		}
	}
	require.Equal(t, 1, createdCount)
	require.EqualValues(t, 1, f.count(t))
}

func TestAttendanceScanResolvesOpenSession(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()

	f.setNow(mondayNine.Add(-time.Hour))
	_, err := f.svc.Scan(ctx, dto.KioskScanRequest{Code: "1234"})
	require.ErrorIs(t, err, ErrSessionClosed)

	other := seedCourse(t, f.db, "WELD200")
	seedSession(t, f.db, other, "Weld-Mon", mondayNine, time.Hour)

	f.setNow(mondayNine.Add(5 * time.Minute))
	result, err := f.svc.Scan(ctx, dto.KioskScanRequest{Code: "*1234*"})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Equal(t, f.session.ID, result.Record.SessionID)

	loner := seedStudent(t, f.db, "7777")
	_, err = f.svc.Scan(ctx, dto.KioskScanRequest{Code: loner.IDNumber})
	require.ErrorIs(t, err, ErrNotEnrolled)

	_, err = f.svc.Scan(ctx, dto.KioskScanRequest{Code: "1234", SessionID: ptrUint(f.session.ID)})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.count(t))
}

func TestAttendanceManualEntryReportsPerIdentifier(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()
	f.setNow(mondayNine.Add(time.Hour))

	seedStudent(t, f.db, "5678")
	second := seedStudent(t, f.db, "9012")
	seedEnrollment(t, f.db, second, f.course)

	_, err := f.svc.RecordAttendance(ctx, "9012", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)

	results, err := f.svc.RecordManual(ctx, dto.ManualAttendanceRequest{
		SessionID: f.session.ID,
		IDNumbers: []string{"1234", "5678", "0000", "9012"},
	}, ActivityActor{ID: 4, Role: "staff"})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.Equal(t, dto.ManualOutcomeRecorded, results[0].Outcome)
	require.Equal(t, models.AttendanceSourceManual, results[0].Record.Source)
	require.Equal(t, dto.ManualOutcomeRejected, results[1].Outcome)
	require.Equal(t, ErrNotEnrolled.Error(), results[1].Reason)
	require.Equal(t, dto.ManualOutcomeRejected, results[2].Outcome)
	require.Equal(t, dto.ManualOutcomeAlreadyRecorded, results[3].Outcome)
	require.Contains(t, f.activity.actions(), "attendance.manual_entry")

	_, err = f.svc.RecordManual(ctx, dto.ManualAttendanceRequest{SessionID: 404, IDNumbers: []string{"1234"}}, ActivityActor{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttendanceCorrectUpdatesInPlace(t *testing.T) {
	f := setupAttendanceService(t)
	ctx := context.Background()
	f.setNow(mondayNine)

	result, err := f.svc.RecordAttendance(ctx, "1234", f.session.ID, models.AttendanceSourceScanned)
	require.NoError(t, err)

	f.setNow(mondayNine.Add(24 * time.Hour))
	corrected := mondayNine.Add(-2 * time.Minute)
	source := models.AttendanceSourceManual
	note := "<i>arrived early</i>"
	record, err := f.svc.Correct(ctx, result.Record.ID, dto.AttendanceCorrectionRequest{
		RecordedAt: &corrected,
		Source:     &source,
		Note:       &note,
	}, ActivityActor{ID: 8, Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, result.Record.ID, record.ID)
	require.Equal(t, corrected, record.RecordedAt.UTC())
	require.Equal(t, models.AttendanceSourceManual, record.Source)
	require.Equal(t, "arrived early", record.Note)
	require.NotNil(t, record.CorrectedBy)
	require.Equal(t, uint(8), *record.CorrectedBy)
	require.EqualValues(t, 1, f.count(t))

	_, err = f.svc.Correct(ctx, 404, dto.AttendanceCorrectionRequest{Note: &note}, ActivityActor{})
	require.ErrorIs(t, err, ErrAttendanceNotFound)

	_, err = f.svc.Correct(ctx, result.Record.ID, dto.AttendanceCorrectionRequest{}, ActivityActor{})
	require.ErrorIs(t, err, ErrValidation)
}
