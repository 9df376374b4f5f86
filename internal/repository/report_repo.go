package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// ReportRepository runs the read-only queries behind the reporting endpoints.
type ReportRepository interface {
	// LoansOpenAt returns loans checked out at or before asOf and not returned by then.
	LoansOpenAt(ctx context.Context, asOf time.Time) ([]models.Loan, error)
	// PenalizedReturns returns loans returned in [from, to) that carry a penalty.
	PenalizedReturns(ctx context.Context, from, to time.Time) ([]models.Loan, error)
	// StudentsNotSeenSince returns active students with at least one active
	// enrollment and no attendance recorded at or after since.
	StudentsNotSeenSince(ctx context.Context, since time.Time) ([]models.Student, error)
	LastSeen(ctx context.Context, studentIDs []uint) (map[uint]time.Time, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository constructs the report repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) LoansOpenAt(ctx context.Context, asOf time.Time) ([]models.Loan, error) {
	asOf = asOf.UTC()
	var loans []models.Loan
	err := preloadLoan(r.db.WithContext(ctx)).
		Where("checked_out_at <= ?", asOf).
		Where("returned_at IS NULL OR returned_at > ?", asOf).
		Order("due_at ASC, id ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *reportRepository) PenalizedReturns(ctx context.Context, from, to time.Time) ([]models.Loan, error) {
	var loans []models.Loan
	err := preloadLoan(r.db.WithContext(ctx)).
		Where("returned_at >= ? AND returned_at < ?", from.UTC(), to.UTC()).
		Where("penalty_cents > 0").
		Order("returned_at ASC, id ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *reportRepository) StudentsNotSeenSince(ctx context.Context, since time.Time) ([]models.Student, error) {
	seen := r.db.Model(&models.AttendanceRecord{}).Select("student_id").Where("recorded_at >= ?", since.UTC())
	enrolled := r.db.Model(&models.Enrollment{}).Select("student_id").Where("status = ?", models.EnrollmentStatusActive)

	var students []models.Student
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StudentStatusActive).
		Where("id IN (?)", enrolled).
		Where("id NOT IN (?)", seen).
		Order("last_name ASC, first_name ASC, id ASC").
		Find(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (r *reportRepository) LastSeen(ctx context.Context, studentIDs []uint) (map[uint]time.Time, error) {
	result := make(map[uint]time.Time, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}

	var records []models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Select("student_id", "recorded_at").
		Where("student_id IN ?", studentIDs).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if current, ok := result[record.StudentID]; !ok || record.RecordedAt.After(current) {
			result[record.StudentID] = record.RecordedAt
		}
	}
	return result, nil
}
