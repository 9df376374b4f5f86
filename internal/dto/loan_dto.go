package dto

import (
	"time"

	"github.com/noah-isme/campusdesk-api/internal/models"
)

// DuePolicyOverride replaces parts of the configured due policy for one checkout.
type DuePolicyOverride struct {
	Days              *int    `json:"days" validate:"omitempty,min=0,max=365"`
	ExtendForWeekends *bool   `json:"extend_for_weekends"`
	DueTime           *string `json:"due_time" validate:"omitempty,datetime=15:04"`
}

// CheckoutRequest lends items, a kit, or both to a borrower.
type CheckoutRequest struct {
	BorrowerIDNumber string             `json:"borrower_id_number" validate:"required,max=32"`
	ItemNumbers      []string           `json:"item_numbers" validate:"omitempty,max=50,dive,required,max=64"`
	KitCode          string             `json:"kit_code" validate:"omitempty,max=64"`
	DueAt            *time.Time         `json:"due_at"`
	DuePolicy        *DuePolicyOverride `json:"due_policy"`
	Note             string             `json:"note" validate:"omitempty,max=500"`
}

// ReturnRequest closes a loan. A missing time means now.
type ReturnRequest struct {
	ReturnedAt *time.Time `json:"returned_at"`
}

// ReturnByNumberRequest closes the open loan holding an item or kit.
type ReturnByNumberRequest struct {
	Number     string     `json:"number" validate:"required,max=64"`
	ReturnedAt *time.Time `json:"returned_at"`
}

// ExtendLoanRequest moves the due date of an open loan.
type ExtendLoanRequest struct {
	DueAt time.Time `json:"due_at" validate:"required"`
}

// LoanItemResponse serializes an item on a loan.
type LoanItemResponse struct {
	ItemID      uint   `json:"item_id"`
	Number      string `json:"number"`
	Description string `json:"description"`
}

// LoanResponse serializes a loan.
type LoanResponse struct {
	ID           uint               `json:"id"`
	Borrower     StudentSummary     `json:"borrower"`
	KitID        *uint              `json:"kit_id"`
	KitCode      string             `json:"kit_code,omitempty"`
	Items        []LoanItemResponse `json:"items"`
	CheckedOutAt time.Time          `json:"checked_out_at"`
	DueAt        time.Time          `json:"due_at"`
	ReturnedAt   *time.Time         `json:"returned_at"`
	Open         bool               `json:"open"`
	DaysOverdue  int                `json:"days_overdue"`
	PenaltyCents int64              `json:"penalty_cents"`
	Note         string             `json:"note"`
}

// NewLoanResponse converts a loan with preloaded borrower, kit and items.
func NewLoanResponse(loan models.Loan) LoanResponse {
	items := make([]LoanItemResponse, 0, len(loan.Items))
	for _, link := range loan.Items {
		items = append(items, LoanItemResponse{
			ItemID:      link.ItemID,
			Number:      link.Item.Number,
			Description: link.Item.Description,
		})
	}

	response := LoanResponse{
		ID:           loan.ID,
		Borrower:     NewStudentSummary(loan.Student),
		KitID:        loan.KitID,
		Items:        items,
		CheckedOutAt: loan.CheckedOutAt,
		DueAt:        loan.DueAt,
		ReturnedAt:   loan.ReturnedAt,
		Open:         loan.IsOpen(),
		DaysOverdue:  loan.DaysOverdue,
		PenaltyCents: loan.PenaltyCents,
		Note:         loan.Note,
	}
	if loan.Kit != nil {
		response.KitCode = loan.Kit.Code
	}
	return response
}

// NewLoanResponseSlice converts a slice of loans.
func NewLoanResponseSlice(loans []models.Loan) []LoanResponse {
	responses := make([]LoanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, NewLoanResponse(loan))
	}
	return responses
}
