package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// CourseRepository manages courses and the enrollments attached to them.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (models.Course, error)
	FindByNumber(ctx context.Context, courseNumber, scheduleName string) (models.Course, error)
	List(ctx context.Context, currentOnly bool) ([]models.Course, error)

	Enroll(ctx context.Context, studentID, courseID uint, status string) (models.Enrollment, error)
	GetEnrollment(ctx context.Context, studentID, courseID uint) (models.Enrollment, error)
	ActiveCourseIDs(ctx context.Context, studentID uint) ([]uint, error)
	ActiveStudents(ctx context.Context, courseID uint) ([]models.Student, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) FindByNumber(ctx context.Context, courseNumber, scheduleName string) (models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).
		Where("course_number = ? AND schedule_name = ?", courseNumber, scheduleName).
		First(&course).Error
	if err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) List(ctx context.Context, currentOnly bool) ([]models.Course, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{})
	if currentOnly {
		query = query.Where("is_current = ?", true)
	}

	var courses []models.Course
	if err := query.Order("course_number ASC, schedule_name ASC").Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// Enroll creates the enrollment or sets the status of an existing one.
func (r *courseRepository) Enroll(ctx context.Context, studentID, courseID uint, status string) (models.Enrollment, error) {
	enrollment := models.Enrollment{StudentID: studentID, CourseID: courseID, Status: status}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}),
		}).Create(&enrollment).Error; err != nil {
			return err
		}
		return tx.Where("student_id = ? AND course_id = ?", studentID, courseID).First(&enrollment).Error
	})
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *courseRepository) GetEnrollment(ctx context.Context, studentID, courseID uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&enrollment).Error
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *courseRepository) ActiveCourseIDs(ctx context.Context, studentID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND status = ?", studentID, models.EnrollmentStatusActive).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *courseRepository) ActiveStudents(ctx context.Context, courseID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.db.WithContext(ctx).
		Joins("JOIN enrollments ON enrollments.student_id = students.id").
		Where("enrollments.course_id = ? AND enrollments.status = ?", courseID, models.EnrollmentStatusActive).
		Order("students.last_name ASC, students.first_name ASC, students.id ASC").
		Find(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}
