package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// ErrLoanClosed is returned when a return is attempted on a loan that is no longer open.
var ErrLoanClosed = errors.New("loan already closed")

// ItemOnLoanError reports an item that already belongs to an open loan.
type ItemOnLoanError struct {
	ItemID uint
}

func (e *ItemOnLoanError) Error() string {
	return fmt.Sprintf("item %d is already on an open loan", e.ItemID)
}

// LoanReturn captures the values written when a loan is closed.
type LoanReturn struct {
	ReturnedAt   time.Time
	DaysOverdue  int
	PenaltyCents int64
	ReturnedBy   *uint
	// Assess, when set, replaces DaysOverdue and PenaltyCents with values
	// computed from the due date read inside the closing transaction.
	Assess func(dueAt time.Time) (daysOverdue int, penaltyCents int64)
}

// LoanRepository persists equipment loans.
type LoanRepository interface {
	// Create writes the loan and all of its items in one transaction. Any item
	// that already sits on an open loan aborts the whole write with *ItemOnLoanError.
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id uint) (models.Loan, error)
	OpenLoanForItem(ctx context.Context, itemID uint) (models.Loan, error)
	OpenLoanIDs(ctx context.Context, itemIDs []uint) (map[uint]uint, error)
	// Close marks an open loan returned and releases its items. It returns
	// ErrLoanClosed when the loan was already returned.
	Close(ctx context.Context, loanID uint, ret LoanReturn) (models.Loan, error)
	UpdateDue(ctx context.Context, loanID uint, dueAt time.Time) (models.Loan, error)
	ListByStudent(ctx context.Context, studentID uint, openOnly bool) ([]models.Loan, error)
	ListByItem(ctx context.Context, itemID uint, limit int) ([]models.Loan, error)
}

type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository constructs a loan repository.
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func preloadLoan(db *gorm.DB) *gorm.DB {
	return db.Preload("Student").Preload("Kit").Preload("Items.Item")
}

func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	items := loan.Items
	if len(items) == 0 {
		return errors.New("loan must contain at least one item")
	}

	itemIDs := make([]uint, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ItemID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var busy []uint
		if err := tx.Model(&models.LoanItem{}).Where("open_item_id IN ?", itemIDs).Order("item_id ASC").Pluck("item_id", &busy).Error; err != nil {
			return err
		}
		if len(busy) > 0 {
			return &ItemOnLoanError{ItemID: busy[0]}
		}

		loan.Items = nil
		if err := tx.Omit(clause.Associations).Create(loan).Error; err != nil {
			return err
		}

		for i := range items {
			itemID := items[i].ItemID
			items[i].LoanID = loan.ID
			items[i].OpenItemID = &itemID
			if err := tx.Omit(clause.Associations).Create(&items[i]).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return &ItemOnLoanError{ItemID: itemID}
				}
				return err
			}
		}
		return nil
	})
	loan.Items = items
	if err != nil {
		return err
	}

	stored, err := r.GetByID(ctx, loan.ID)
	if err != nil {
		return err
	}
	*loan = stored
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id uint) (models.Loan, error) {
	var loan models.Loan
	if err := preloadLoan(r.db.WithContext(ctx)).First(&loan, id).Error; err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

func (r *loanRepository) OpenLoanForItem(ctx context.Context, itemID uint) (models.Loan, error) {
	var link models.LoanItem
	if err := r.db.WithContext(ctx).Where("open_item_id = ?", itemID).First(&link).Error; err != nil {
		return models.Loan{}, err
	}
	return r.GetByID(ctx, link.LoanID)
}

// OpenLoanIDs maps each of the given items that sits on an open loan to that loan.
func (r *loanRepository) OpenLoanIDs(ctx context.Context, itemIDs []uint) (map[uint]uint, error) {
	result := make(map[uint]uint, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}
	var links []models.LoanItem
	err := r.db.WithContext(ctx).
		Select("item_id", "loan_id").
		Where("open_item_id IN ?", itemIDs).
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		result[link.ItemID] = link.LoanID
	}
	return result, nil
}

func (r *loanRepository) Close(ctx context.Context, loanID uint, ret LoanReturn) (models.Loan, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan models.Loan
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&loan, loanID).Error; err != nil {
			return err
		}

		daysOverdue, penalty := ret.DaysOverdue, ret.PenaltyCents
		if ret.Assess != nil {
			daysOverdue, penalty = ret.Assess(loan.DueAt)
		}

		result := tx.Model(&models.Loan{}).
			Where("id = ? AND returned_at IS NULL", loanID).
			Updates(map[string]interface{}{
				"returned_at":   ret.ReturnedAt.UTC(),
				"days_overdue":  daysOverdue,
				"penalty_cents": penalty,
				"returned_by":   ret.ReturnedBy,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrLoanClosed
		}

		return tx.Model(&models.LoanItem{}).
			Where("loan_id = ?", loanID).
			Update("open_item_id", nil).Error
	})
	if err != nil {
		return models.Loan{}, err
	}
	return r.GetByID(ctx, loanID)
}

func (r *loanRepository) UpdateDue(ctx context.Context, loanID uint, dueAt time.Time) (models.Loan, error) {
	result := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", loanID).
		Update("due_at", dueAt.UTC())
	if result.Error != nil {
		return models.Loan{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, loanID); err != nil {
			return models.Loan{}, err
		}
		return models.Loan{}, ErrLoanClosed
	}
	return r.GetByID(ctx, loanID)
}

func (r *loanRepository) ListByStudent(ctx context.Context, studentID uint, openOnly bool) ([]models.Loan, error) {
	query := preloadLoan(r.db.WithContext(ctx)).Where("student_id = ?", studentID)
	if openOnly {
		query = query.Where("returned_at IS NULL")
	}

	var loans []models.Loan
	if err := query.Order("checked_out_at DESC, id DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByItem(ctx context.Context, itemID uint, limit int) ([]models.Loan, error) {
	query := preloadLoan(r.db.WithContext(ctx)).
		Where("id IN (?)", r.db.Model(&models.LoanItem{}).Select("loan_id").Where("item_id = ?", itemID)).
		Order("checked_out_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var loans []models.Loan
	if err := query.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}
