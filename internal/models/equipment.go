package models

import "time"

// ItemType groups equipment by manufacturer and model.
type ItemType struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Manufacturer string    `gorm:"size:100;not null;uniqueIndex:idx_item_type_make_model" json:"manufacturer"`
	ModelName    string    `gorm:"size:100;not null;uniqueIndex:idx_item_type_make_model" json:"model_name"`
	Note         string    `gorm:"size:500" json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EquipmentItem is a single lendable piece of equipment. Number is the
// scannable identifier printed on the item's tag.
type EquipmentItem struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Number       string    `gorm:"size:64;uniqueIndex;not null" json:"number"`
	SerialNumber string    `gorm:"size:100" json:"serial_number"`
	Description  string    `gorm:"size:255" json:"description"`
	ItemTypeID   *uint     `gorm:"index" json:"item_type_id"`
	ItemType     *ItemType `gorm:"constraint:OnDelete:SET NULL" json:"item_type,omitempty"`
	KitID        *uint     `gorm:"index" json:"kit_id"`
	InRepair     bool      `gorm:"not null;default:false" json:"in_repair"`
	Note         string    `gorm:"size:500" json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Kit is a named set of items that are checked out together.
type Kit struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Code      string          `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Note      string          `gorm:"size:500" json:"note"`
	Items     []EquipmentItem `gorm:"foreignKey:KitID;constraint:OnDelete:SET NULL" json:"items,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
