package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/database"
	"github.com/noah-isme/campusdesk-api/internal/dto"
	"github.com/noah-isme/campusdesk-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func ptrUint(v uint) *uint {
	return &v
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type stubActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *stubActivityRecorder) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, EntityType: entry.EntityType, EntityID: entry.EntityID}, nil
}

func (s *stubActivityRecorder) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.entries))
	for _, entry := range s.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type publishedEvent struct {
	Topic   string
	Type    string
	Payload json.RawMessage
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Type: eventType, Payload: raw})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

func seedStudent(t *testing.T, db *gorm.DB, idNumber string) models.Student {
	t.Helper()
	student := models.Student{IDNumber: idNumber, FirstName: "Ada", LastName: "Lovelace " + idNumber, Status: models.StudentStatusActive}
	require.NoError(t, db.Create(&student).Error)
	return student
}

func seedCourse(t *testing.T, db *gorm.DB, number string) models.Course {
	t.Helper()
	course := models.Course{CourseNumber: number, ScheduleName: "Fall " + number, Current: true}
	require.NoError(t, db.Create(&course).Error)
	return course
}

func seedSession(t *testing.T, db *gorm.DB, course models.Course, code string, startsAt time.Time, length time.Duration) models.ClassSession {
	t.Helper()
	session := models.ClassSession{CourseID: course.ID, Code: code, StartsAt: startsAt.UTC(), EndsAt: startsAt.Add(length).UTC()}
	require.NoError(t, db.Omit("Course").Create(&session).Error)
	session.Course = course
	return session
}

func seedEnrollment(t *testing.T, db *gorm.DB, student models.Student, course models.Course) {
	t.Helper()
	enrollment := models.Enrollment{StudentID: student.ID, CourseID: course.ID, Status: models.EnrollmentStatusActive}
	require.NoError(t, db.Omit("Student", "Course").Create(&enrollment).Error)
}

func seedItem(t *testing.T, db *gorm.DB, number string) models.EquipmentItem {
	t.Helper()
	item := models.EquipmentItem{Number: number, Description: "Camera body " + number}
	require.NoError(t, db.Create(&item).Error)
	return item
}
