package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// AttendanceRepository persists attendance records.
type AttendanceRepository interface {
	// CreateIfAbsent inserts the record unless one already exists for the same
	// student and session. It returns the stored record and whether it was created.
	CreateIfAbsent(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error)
	Find(ctx context.Context, studentID, sessionID uint) (models.AttendanceRecord, error)
	GetByID(ctx context.Context, id uint) (models.AttendanceRecord, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) (models.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID uint) ([]models.AttendanceRecord, error)
	CountBySession(ctx context.Context, sessionID uint) (int64, error)
	ListByStudent(ctx context.Context, studentID uint, from, to *time.Time) ([]models.AttendanceRecord, error)
}

type attendanceRepository struct {
	db *gorm.DB
}

// NewAttendanceRepository constructs an attendance repository.
func NewAttendanceRepository(db *gorm.DB) AttendanceRepository {
	return &attendanceRepository{db: db}
}

func (r *attendanceRepository) CreateIfAbsent(ctx context.Context, record models.AttendanceRecord) (models.AttendanceRecord, bool, error) {
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "session_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return models.AttendanceRecord{}, false, result.Error
	}

	stored, err := r.Find(ctx, record.StudentID, record.SessionID)
	if err != nil {
		return models.AttendanceRecord{}, false, err
	}

	return stored, result.RowsAffected > 0, nil
}

func (r *attendanceRepository) Find(ctx context.Context, studentID, sessionID uint) (models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Preload("Session.Course").
		Where("student_id = ? AND session_id = ?", studentID, sessionID).
		First(&record).Error
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	return record, nil
}

func (r *attendanceRepository) GetByID(ctx context.Context, id uint) (models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := r.db.WithContext(ctx).Preload("Student").Preload("Session.Course").First(&record, id).Error; err != nil {
		return models.AttendanceRecord{}, err
	}
	return record, nil
}

func (r *attendanceRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) (models.AttendanceRecord, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.AttendanceRecord
		if err := tx.First(&record, id).Error; err != nil {
			return err
		}
		return tx.Model(&record).Updates(updates).Error
	})
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *attendanceRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("session_id = ?", sessionID).
		Order("recorded_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *attendanceRepository) CountBySession(ctx context.Context, sessionID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.AttendanceRecord{}).Where("session_id = ?", sessionID).Count(&total).Error
	return total, err
}

func (r *attendanceRepository) ListByStudent(ctx context.Context, studentID uint, from, to *time.Time) ([]models.AttendanceRecord, error) {
	query := r.db.WithContext(ctx).
		Preload("Session.Course").
		Where("student_id = ?", studentID)
	if from != nil {
		query = query.Where("recorded_at >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where("recorded_at < ?", to.UTC())
	}

	var records []models.AttendanceRecord
	if err := query.Order("recorded_at DESC, id DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
