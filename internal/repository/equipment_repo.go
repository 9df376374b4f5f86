package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// Item availability filters.
const (
	AvailabilityAny       = ""
	AvailabilityAvailable = "available"
	AvailabilityOnLoan    = "on_loan"
	AvailabilityInRepair  = "in_repair"
)

// EquipmentFilter narrows equipment listings.
type EquipmentFilter struct {
	Page
	Search       string
	ItemTypeID   *uint
	KitID        *uint
	Availability string
}

// EquipmentRepository provides access to item types and equipment items.
type EquipmentRepository interface {
	CreateItemType(ctx context.Context, itemType *models.ItemType) error
	GetItemType(ctx context.Context, id uint) (models.ItemType, error)
	ListItemTypes(ctx context.Context) ([]models.ItemType, error)

	CreateItem(ctx context.Context, item *models.EquipmentItem) error
	GetItemByID(ctx context.Context, id uint) (models.EquipmentItem, error)
	GetItemByNumber(ctx context.Context, number string) (models.EquipmentItem, error)
	ListItemsByNumbers(ctx context.Context, numbers []string) ([]models.EquipmentItem, error)
	ExistingNumbers(ctx context.Context, numbers []string) ([]string, error)
	ListItems(ctx context.Context, filter EquipmentFilter) ([]models.EquipmentItem, int64, error)
	UpdateItem(ctx context.Context, id uint, updates map[string]interface{}) (models.EquipmentItem, error)
}

type equipmentRepository struct {
	db *gorm.DB
}

// NewEquipmentRepository constructs an equipment repository.
func NewEquipmentRepository(db *gorm.DB) EquipmentRepository {
	return &equipmentRepository{db: db}
}

func (r *equipmentRepository) CreateItemType(ctx context.Context, itemType *models.ItemType) error {
	return r.db.WithContext(ctx).Create(itemType).Error
}

func (r *equipmentRepository) GetItemType(ctx context.Context, id uint) (models.ItemType, error) {
	var itemType models.ItemType
	if err := r.db.WithContext(ctx).First(&itemType, id).Error; err != nil {
		return models.ItemType{}, err
	}
	return itemType, nil
}

func (r *equipmentRepository) ListItemTypes(ctx context.Context) ([]models.ItemType, error) {
	var types []models.ItemType
	if err := r.db.WithContext(ctx).Order("manufacturer ASC, model_name ASC").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

func (r *equipmentRepository) CreateItem(ctx context.Context, item *models.EquipmentItem) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Preload("ItemType").First(item, item.ID).Error
}

func (r *equipmentRepository) GetItemByID(ctx context.Context, id uint) (models.EquipmentItem, error) {
	var item models.EquipmentItem
	if err := r.db.WithContext(ctx).Preload("ItemType").First(&item, id).Error; err != nil {
		return models.EquipmentItem{}, err
	}
	return item, nil
}

func (r *equipmentRepository) GetItemByNumber(ctx context.Context, number string) (models.EquipmentItem, error) {
	var item models.EquipmentItem
	if err := r.db.WithContext(ctx).Preload("ItemType").Where("number = ?", number).First(&item).Error; err != nil {
		return models.EquipmentItem{}, err
	}
	return item, nil
}

func (r *equipmentRepository) ListItemsByNumbers(ctx context.Context, numbers []string) ([]models.EquipmentItem, error) {
	if len(numbers) == 0 {
		return []models.EquipmentItem{}, nil
	}
	var items []models.EquipmentItem
	if err := r.db.WithContext(ctx).Where("number IN ?", numbers).Order("number ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *equipmentRepository) ExistingNumbers(ctx context.Context, numbers []string) ([]string, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).Model(&models.EquipmentItem{}).
		Where("number IN ?", numbers).
		Order("number ASC").
		Pluck("number", &existing).Error
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *equipmentRepository) ListItems(ctx context.Context, filter EquipmentFilter) ([]models.EquipmentItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EquipmentItem{}).Preload("ItemType")

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(number) LIKE ? OR LOWER(serial_number) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	if filter.ItemTypeID != nil {
		query = query.Where("item_type_id = ?", *filter.ItemTypeID)
	}
	if filter.KitID != nil {
		query = query.Where("kit_id = ?", *filter.KitID)
	}

	openLoans := r.db.Model(&models.LoanItem{}).Select("item_id").Where("open_item_id IS NOT NULL")
	switch filter.Availability {
	case AvailabilityAvailable:
		query = query.Where("in_repair = ?", false).Where("id NOT IN (?)", openLoans)
	case AvailabilityOnLoan:
		query = query.Where("id IN (?)", openLoans)
	case AvailabilityInRepair:
		query = query.Where("in_repair = ?", true)
	}

	query, total, err := countAndPage(query, filter.Page)
	if err != nil {
		return nil, 0, err
	}

	var items []models.EquipmentItem
	if err := query.Order("number ASC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *equipmentRepository) UpdateItem(ctx context.Context, id uint, updates map[string]interface{}) (models.EquipmentItem, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.EquipmentItem
		if err := tx.First(&item, id).Error; err != nil {
			return err
		}
		return tx.Model(&item).Updates(updates).Error
	})
	if err != nil {
		return models.EquipmentItem{}, err
	}
	return r.GetItemByID(ctx, id)
}
