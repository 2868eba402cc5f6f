package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorClass groups error codes by how a caller is expected to react.
type ErrorClass string

const (
	// ClassValidation is bad input shape. Rejected before any ledger is touched.
	ClassValidation ErrorClass = "validation"

	// ClassResourceConflict is an expected business outcome (out of stock, out of balance).
	ClassResourceConflict ErrorClass = "resource_conflict"

	// ClassStateConflict means the caller acted on stale state or double-submitted.
	// The underlying record is left untouched.
	ClassStateConflict ErrorClass = "state_conflict"

	// ClassNotFound means the referenced record does not exist.
	ClassNotFound ErrorClass = "not_found"

	// ClassForbidden means the actor may not perform the operation.
	ClassForbidden ErrorClass = "forbidden"

	// ClassIntegrity is an invariant violation detected at runtime. Always fatal for the request.
	ClassIntegrity ErrorClass = "integrity"
)

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	ErrCodeInvalidQuantity     ErrorCode = "INVALID_QUANTITY"
	ErrCodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeItemNotFound        ErrorCode = "ITEM_NOT_FOUND"
	ErrCodeInsufficientStock   ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeAlreadyDecided      ErrorCode = "ALREADY_DECIDED"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeIntegrity           ErrorCode = "INTEGRITY_VIOLATION"
)

var codeClasses = map[ErrorCode]ErrorClass{
	ErrCodeInvalidQuantity:     ClassValidation,
	ErrCodeInvalidAmount:       ClassValidation,
	ErrCodeInvalidInput:        ClassValidation,
	ErrCodeItemNotFound:        ClassValidation,
	ErrCodeInsufficientStock:   ClassResourceConflict,
	ErrCodeInsufficientBalance: ClassResourceConflict,
	ErrCodeInvalidTransition:   ClassStateConflict,
	ErrCodeAlreadyDecided:      ClassStateConflict,
	ErrCodeNotFound:            ClassNotFound,
	ErrCodeForbidden:           ClassForbidden,
	ErrCodeIntegrity:           ClassIntegrity,
}

// Class returns the class the code belongs to.
func (c ErrorCode) Class() ErrorClass {
	if class, ok := codeClasses[c]; ok {
		return class
	}
	return ClassIntegrity
}

// Error is the single error type returned by the engine for domain outcomes.
//
// Fields beyond Code and Message are populated when they help the caller act:
// ItemID names the offending menu item, Requested/Available describe a stock
// shortfall, Shortfall is the missing wallet amount.
type Error struct {
	Code    ErrorCode
	Message string

	ItemID    string
	Requested int
	Available int
	Shortfall decimal.Decimal

	// Err is the underlying cause, if any.
	Err error
}

// Class returns the error's class.
func (e *Error) Class() ErrorClass {
	return e.Code.Class()
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ItemID != "" {
		msg = fmt.Sprintf("%s (item=%s)", msg, e.ItemID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the structured fields for API and CLI error bodies.
func (e *Error) Details() map[string]any {
	d := map[string]any{}
	if e.ItemID != "" {
		d["item_id"] = e.ItemID
	}
	if e.Code == ErrCodeInsufficientStock {
		d["requested"] = e.Requested
		d["available"] = e.Available
	}
	if e.Code == ErrCodeInsufficientBalance {
		d["shortfall"] = e.Shortfall.StringFixed(2)
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewInsufficientStock reports that itemID has fewer than requested units.
func NewInsufficientStock(itemID string, requested, available int) *Error {
	return &Error{
		Code:      ErrCodeInsufficientStock,
		Message:   fmt.Sprintf("requested %d, only %d left", requested, available),
		ItemID:    itemID,
		Requested: requested,
		Available: available,
	}
}

// NewInsufficientBalance reports that a debit is short by shortfall.
func NewInsufficientBalance(userID string, shortfall decimal.Decimal) *Error {
	return &Error{
		Code:      ErrCodeInsufficientBalance,
		Message:   fmt.Sprintf("wallet %s is short by %s", userID, shortfall.StringFixed(2)),
		Shortfall: shortfall,
	}
}

// NewItemNotFound reports a stale cart entry.
func NewItemNotFound(itemID string) *Error {
	return &Error{Code: ErrCodeItemNotFound, Message: "menu item does not exist", ItemID: itemID}
}

// NewInvalidTransition reports a status change the lifecycle does not allow.
func NewInvalidTransition(kind string, from, to fmt.Stringer) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", kind, from, to),
	}
}

// NewIntegrityError wraps cause as an invariant violation.
func NewIntegrityError(cause error, format string, args ...any) *Error {
	return &Error{Code: ErrCodeIntegrity, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf returns the code of a wrapped *Error, or "" if err is not one.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err wraps an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ClassOf returns the class of a wrapped *Error, or "" if err is not one.
func ClassOf(err error) ErrorClass {
	var de *Error
	if errors.As(err, &de) {
		return de.Class()
	}
	return ""
}

// IsIntegrity reports whether err is an invariant violation.
func IsIntegrity(err error) bool {
	return ClassOf(err) == ClassIntegrity
}
