package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// KitRepository manages kits and their membership.
type KitRepository interface {
	Create(ctx context.Context, kit *models.Kit) error
	GetByID(ctx context.Context, id uint) (models.Kit, error)
	GetByCode(ctx context.Context, code string) (models.Kit, error)
	List(ctx context.Context) ([]models.Kit, error)
	// SetMembership moves an item into a kit, or out of any kit when kitID is nil.
	SetMembership(ctx context.Context, itemID uint, kitID *uint) error
}

type kitRepository struct {
	db *gorm.DB
}

// NewKitRepository constructs a kit repository.
func NewKitRepository(db *gorm.DB) KitRepository {
	return &kitRepository{db: db}
}

func (r *kitRepository) Create(ctx context.Context, kit *models.Kit) error {
	return r.db.WithContext(ctx).Create(kit).Error
}

func (r *kitRepository) GetByID(ctx context.Context, id uint) (models.Kit, error) {
	var kit models.Kit
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		First(&kit, id).Error
	if err != nil {
		return models.Kit{}, err
	}
	return kit, nil
}

func (r *kitRepository) GetByCode(ctx context.Context, code string) (models.Kit, error) {
	var kit models.Kit
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Where("code = ?", code).
		First(&kit).Error
	if err != nil {
		return models.Kit{}, err
	}
	return kit, nil
}

func (r *kitRepository) List(ctx context.Context) ([]models.Kit, error) {
	var kits []models.Kit
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Order("code ASC").
		Find(&kits).Error
	if err != nil {
		return nil, err
	}
	return kits, nil
}

func (r *kitRepository) SetMembership(ctx context.Context, itemID uint, kitID *uint) error {
	result := r.db.WithContext(ctx).Model(&models.EquipmentItem{}).Where("id = ?", itemID).Update("kit_id", kitID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
