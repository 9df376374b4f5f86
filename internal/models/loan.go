package models

import "time"

// Loan records one checkout of one or more items to a borrower.
type Loan struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StudentID    uint       `gorm:"not null;index" json:"student_id"`
	Student      Student    `gorm:"constraint:OnDelete:RESTRICT" json:"student"`
	KitID        *uint      `gorm:"index" json:"kit_id"`
	Kit          *Kit       `gorm:"constraint:OnDelete:SET NULL" json:"kit,omitempty"`
	CheckedOutAt time.Time  `gorm:"not null;index" json:"checked_out_at"`
	DueAt        time.Time  `gorm:"not null;index" json:"due_at"`
	ReturnedAt   *time.Time `gorm:"index" json:"returned_at"`
	DaysOverdue  int        `gorm:"not null;default:0" json:"days_overdue"`
	PenaltyCents int64      `gorm:"not null;default:0" json:"penalty_cents"`
	Note         string     `gorm:"size:500" json:"note"`
	CheckedOutBy *uint      `json:"checked_out_by"`
	ReturnedBy   *uint      `json:"returned_by"`
	Items        []LoanItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsOpen reports whether the loan has not been returned yet.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// LoanItem binds an item to a loan. OpenItemID mirrors ItemID while the loan
// is open and is cleared on return; its unique index allows at most one open
// loan per item.
type LoanItem struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	LoanID     uint          `gorm:"not null;index" json:"loan_id"`
	ItemID     uint          `gorm:"not null;index" json:"item_id"`
	OpenItemID *uint         `gorm:"uniqueIndex:idx_loan_items_open_item" json:"-"`
	Item       EquipmentItem `gorm:"constraint:OnDelete:RESTRICT" json:"item"`
	CreatedAt  time.Time     `json:"created_at"`
}
