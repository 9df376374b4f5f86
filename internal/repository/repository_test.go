package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/database"
	"github.com/noah-isme/campusdesk-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedStudent(t *testing.T, db *gorm.DB, idNumber, first, last string) models.Student {
	t.Helper()
	student := models.Student{IDNumber: idNumber, FirstName: first, LastName: last, Status: models.StudentStatusActive}
	require.NoError(t, db.Create(&student).Error)
	return student
}

func seedCourseSession(t *testing.T, db *gorm.DB, code string, startsAt time.Time) (models.Course, models.ClassSession) {
	t.Helper()
	course := models.Course{CourseNumber: "PHOTO101", ScheduleName: "Photography I " + code, Current: true}
	require.NoError(t, db.Create(&course).Error)
	session := models.ClassSession{CourseID: course.ID, Code: code, StartsAt: startsAt.UTC(), EndsAt: startsAt.Add(3 * time.Hour).UTC()}
	require.NoError(t, db.Omit("Course").Create(&session).Error)
	return course, session
}

func seedItem(t *testing.T, db *gorm.DB, number string) models.EquipmentItem {
	t.Helper()
	item := models.EquipmentItem{Number: number, Description: "Camera body"}
	require.NoError(t, db.Create(&item).Error)
	return item
}
