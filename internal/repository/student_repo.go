package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// StudentFilter narrows student listings.
type StudentFilter struct {
	Page
	Search string
	Status string
}

// StudentRepository provides access to student records.
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id uint) (models.Student, error)
	GetByIDNumber(ctx context.Context, idNumber string) (models.Student, error)
	List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) GetByIDNumber(ctx context.Context, idNumber string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("id_number = ?", idNumber).First(&student).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Student{})

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(preferred_name) LIKE ? OR LOWER(last_name) LIKE ? OR id_number LIKE ?", like, like, like, like)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	query, total, err := countAndPage(query, filter.Page)
	if err != nil {
		return nil, 0, err
	}

	var students []models.Student
	if err := query.Order("last_name ASC, first_name ASC, id ASC").Find(&students).Error; err != nil {
		return nil, 0, err
	}

	return students, total, nil
}

func (r *studentRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Student, error) {
	var student models.Student
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&student, id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Student{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		var fresh models.Student
		if err := tx.First(&fresh, id).Error; err != nil {
			return err
		}
		student = fresh
		return nil
	})
	if err != nil {
		return models.Student{}, err
	}

	return student, nil
}
