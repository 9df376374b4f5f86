package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStudent indicates the identifier does not match any student.
	ErrUnknownStudent = errors.New("unknown student")
	// ErrNotEnrolled indicates the student is not actively enrolled in the session's course.
	ErrNotEnrolled = errors.New("student not enrolled in course")
	// ErrSessionClosed indicates the sign-in window is not open.
	ErrSessionClosed = errors.New("session sign-in window is not open")
	// ErrSessionNotFound indicates the class session does not exist.
	ErrSessionNotFound = errors.New("class session not found")
	// ErrCourseNotFound indicates the course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrStudentNotFound indicates the student does not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrAttendanceNotFound indicates the attendance record does not exist.
	ErrAttendanceNotFound = errors.New("attendance record not found")
	// ErrDuplicateStudent indicates the ID number is already registered.
	ErrDuplicateStudent = errors.New("id number already registered")
	// ErrDuplicateCourse indicates the course number and schedule already exist.
	ErrDuplicateCourse = errors.New("course already exists")
	// ErrDuplicateSession indicates the session code or schedule slot is taken.
	ErrDuplicateSession = errors.New("session already exists")
	// ErrInvalidSchedule indicates a session ending before it starts.
	ErrInvalidSchedule = errors.New("session must end after it starts")

	// ErrItemUnavailable indicates an item is already on an open loan or in repair.
	ErrItemUnavailable = errors.New("item unavailable")
	// ErrItemNotFound indicates the item number is unknown.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemTypeNotFound indicates the item type does not exist.
	ErrItemTypeNotFound = errors.New("item type not found")
	// ErrDuplicateItemType indicates the manufacturer and model already exist.
	ErrDuplicateItemType = errors.New("item type already exists")
	// ErrDuplicateItem indicates the item number is already registered.
	ErrDuplicateItem = errors.New("item number already registered")
	// ErrKitNotFound indicates the kit code is unknown.
	ErrKitNotFound = errors.New("kit not found")
	// ErrDuplicateKit indicates the kit code is already registered.
	ErrDuplicateKit = errors.New("kit code already registered")
	// ErrKitEmpty indicates a kit without members was checked out.
	ErrKitEmpty = errors.New("kit has no items")
	// ErrKitMembership indicates an item cannot join or leave a kit.
	ErrKitMembership = errors.New("invalid kit membership change")
	// ErrEmptyCheckout indicates a checkout that names no items.
	ErrEmptyCheckout = errors.New("checkout requires at least one item or kit")
	// ErrBorrowerInactive indicates the borrower is not an active student.
	ErrBorrowerInactive = errors.New("borrower is not active")
	// ErrLoanNotFound indicates the loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrAlreadyReturned indicates the loan was already closed.
	ErrAlreadyReturned = errors.New("loan already returned")
	// ErrNoOpenLoan indicates no open loan holds the scanned item or kit.
	ErrNoOpenLoan = errors.New("no open loan for item")
	// ErrInvalidReturnTime indicates a return earlier than the checkout.
	ErrInvalidReturnTime = errors.New("return time precedes checkout")
	// ErrInvalidDueDate indicates a due date not after the checkout.
	ErrInvalidDueDate = errors.New("due date must be after checkout")

	// ErrInvalidImport indicates the uploaded import could not be used.
	ErrInvalidImport = errors.New("invalid import file")
	// ErrImportIncomplete indicates an import stopped after writing some rows.
	ErrImportIncomplete = errors.New("import stopped part way")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrStorageUnavailable indicates no file storage is configured.
	ErrStorageUnavailable = errors.New("file storage not configured")
)

// ItemUnavailableError names the item that blocked a checkout.
type ItemUnavailableError struct {
	Number string
	Reason string
}

func (e *ItemUnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("item %s unavailable", e.Number)
	}
	return fmt.Sprintf("item %s unavailable: %s", e.Number, e.Reason)
}

// Is lets errors.Is match ErrItemUnavailable.
func (e *ItemUnavailableError) Is(target error) bool {
	return target == ErrItemUnavailable
}

// ItemNotFoundError names the unknown item number.
type ItemNotFoundError struct {
	Number string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.Number)
}

// Is lets errors.Is match ErrItemNotFound.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// ErrValidation matches every FieldError.
var ErrValidation = errors.New("validation failed")

// FieldError reports an input field rejected after struct validation passed.
type FieldError struct {
	Field string
	Tag   string
}

func validationError(field, tag string) error {
	return &FieldError{Field: field, Tag: tag}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s failed on %s", e.Field, e.Tag)
}

// Is lets errors.Is match ErrValidation.
func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}
