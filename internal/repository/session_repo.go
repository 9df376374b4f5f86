package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// SessionFilter narrows class session listings.
type SessionFilter struct {
	CourseID *uint
	From     *time.Time
	To       *time.Time
}

// SessionRepository provides access to class sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ClassSession) error
	GetByID(ctx context.Context, id uint) (models.ClassSession, error)
	GetByCode(ctx context.Context, code string) (models.ClassSession, error)
	FindScheduled(ctx context.Context, courseID uint, startsAt time.Time, section string) (models.ClassSession, error)
	List(ctx context.Context, filter SessionFilter) ([]models.ClassSession, error)
	// Overlapping returns sessions whose scheduled span intersects [from, to].
	Overlapping(ctx context.Context, courseIDs []uint, from, to time.Time) ([]models.ClassSession, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository constructs a class session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.ClassSession) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(session).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Preload("Course").First(session, session.ID).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (models.ClassSession, error) {
	var session models.ClassSession
	if err := r.db.WithContext(ctx).Preload("Course").First(&session, id).Error; err != nil {
		return models.ClassSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) GetByCode(ctx context.Context, code string) (models.ClassSession, error) {
	var session models.ClassSession
	if err := r.db.WithContext(ctx).Preload("Course").Where("code = ?", code).First(&session).Error; err != nil {
		return models.ClassSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) FindScheduled(ctx context.Context, courseID uint, startsAt time.Time, section string) (models.ClassSession, error) {
	var session models.ClassSession
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND starts_at = ? AND section = ?", courseID, startsAt.UTC(), section).
		First(&session).Error
	if err != nil {
		return models.ClassSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) List(ctx context.Context, filter SessionFilter) ([]models.ClassSession, error) {
	query := r.db.WithContext(ctx).Model(&models.ClassSession{}).Preload("Course")

	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.From != nil {
		query = query.Where("starts_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("starts_at < ?", filter.To.UTC())
	}

	var sessions []models.ClassSession
	if err := query.Order("starts_at ASC, id ASC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepository) Overlapping(ctx context.Context, courseIDs []uint, from, to time.Time) ([]models.ClassSession, error) {
	query := r.db.WithContext(ctx).Model(&models.ClassSession{}).Preload("Course").
		Where("starts_at <= ? AND ends_at >= ?", to.UTC(), from.UTC())

	if courseIDs != nil {
		if len(courseIDs) == 0 {
			return []models.ClassSession{}, nil
		}
		query = query.Where("course_id IN ?", courseIDs)
	}

	var sessions []models.ClassSession
	if err := query.Order("starts_at ASC, id ASC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
