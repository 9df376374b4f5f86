package dto

import (
	"time"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// ItemTypeCreateRequest captures the payload for a new item type.
type ItemTypeCreateRequest struct {
	Manufacturer string `json:"manufacturer" validate:"required,max=100"`
	ModelName    string `json:"model_name" validate:"required,max=100"`
	Note         string `json:"note" validate:"omitempty,max=500"`
}

// ItemTypeResponse serializes an item type.
type ItemTypeResponse struct {
	ID           uint   `json:"id"`
	Manufacturer string `json:"manufacturer"`
	ModelName    string `json:"model_name"`
	Note         string `json:"note"`
}

// EquipmentItemCreateRequest captures the payload for registering an item.
type EquipmentItemCreateRequest struct {
	Number       string `json:"number" validate:"required,max=64"`
	SerialNumber string `json:"serial_number" validate:"omitempty,max=100"`
	Description  string `json:"description" validate:"omitempty,max=255"`
	ItemTypeID   *uint  `json:"item_type_id"`
	Note         string `json:"note" validate:"omitempty,max=500"`
}

// EquipmentItemUpdateRequest patches descriptive fields of an item.
type EquipmentItemUpdateRequest struct {
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=255"`
	ItemTypeID   *uint   `json:"item_type_id"`
	Note         *string `json:"note" validate:"omitempty,max=500"`
}

// EquipmentRepairRequest sends an item to or brings it back from repair.
type EquipmentRepairRequest struct {
	InRepair bool   `json:"in_repair"`
	Note     string `json:"note" validate:"omitempty,max=500"`
}

// EquipmentListRequest defines filters for listing items.
type EquipmentListRequest struct {
	Page         int
	PageSize     int
	Search       string
	ItemTypeID   *uint
	Availability string `validate:"omitempty,oneof=available on_loan in_repair"`
}

// EquipmentItemResponse serializes an item with its derived availability.
type EquipmentItemResponse struct {
	ID            uint              `json:"id"`
	Number        string            `json:"number"`
	SerialNumber  string            `json:"serial_number"`
	Description   string            `json:"description"`
	ItemType      *ItemTypeResponse `json:"item_type,omitempty"`
	KitID         *uint             `json:"kit_id"`
	InRepair      bool              `json:"in_repair"`
	Availability  string            `json:"availability"`
	CurrentLoanID *uint             `json:"current_loan_id,omitempty"`
	Note          string            `json:"note"`
	CreatedAt     time.Time         `json:"created_at"`
}

// EquipmentListResponse wraps a paginated item listing.
type EquipmentListResponse struct {
	Items      []EquipmentItemResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

// EquipmentItemDetailResponse adds the loan history of an item.
type EquipmentItemDetailResponse struct {
	Item    EquipmentItemResponse `json:"item"`
	History []LoanResponse        `json:"history"`
}

// KitCreateRequest captures the payload for a new kit.
type KitCreateRequest struct {
	Code        string   `json:"code" validate:"required,max=64"`
	Name        string   `json:"name" validate:"required,max=255"`
	Note        string   `json:"note" validate:"omitempty,max=500"`
	ItemNumbers []string `json:"item_numbers" validate:"omitempty,dive,required,max=64"`
}

// KitMemberRequest names the item to add to a kit.
type KitMemberRequest struct {
	ItemNumber string `json:"item_number" validate:"required,max=64"`
}

// KitResponse serializes a kit with its members.
type KitResponse struct {
	ID           uint                    `json:"id"`
	Code         string                  `json:"code"`
	Name         string                  `json:"name"`
	Note         string                  `json:"note"`
	Availability string                  `json:"availability"`
	Items        []EquipmentItemResponse `json:"items"`
}

// NewItemTypeResponse converts an item type model into a DTO.
func NewItemTypeResponse(itemType models.ItemType) ItemTypeResponse {
	return ItemTypeResponse{
		ID:           itemType.ID,
		Manufacturer: itemType.Manufacturer,
		ModelName:    itemType.ModelName,
		Note:         itemType.Note,
	}
}

// NewEquipmentItemResponse converts an item model into a DTO. Availability
// is derived from the open loan, if any, and the repair flag.
func NewEquipmentItemResponse(item models.EquipmentItem, openLoanID *uint) EquipmentItemResponse {
	response := EquipmentItemResponse{
		ID:            item.ID,
		Number:        item.Number,
		SerialNumber:  item.SerialNumber,
		Description:   item.Description,
		KitID:         item.KitID,
		InRepair:      item.InRepair,
		CurrentLoanID: openLoanID,
		Note:          item.Note,
		CreatedAt:     item.CreatedAt,
	}
	if item.ItemType != nil {
		itemType := NewItemTypeResponse(*item.ItemType)
		response.ItemType = &itemType
	}

	switch {
	case openLoanID != nil:
		response.Availability = "on_loan"
	case item.InRepair:
		response.Availability = "in_repair"
	default:
		response.Availability = "available"
	}
	return response
}
