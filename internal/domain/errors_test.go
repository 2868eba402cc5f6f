package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	cases := map[ErrorCode]ErrorClass{
		ErrCodeInvalidQuantity:     ClassValidation,
		ErrCodeInsufficientStock:   ClassResourceConflict,
		ErrCodeInsufficientBalance: ClassResourceConflict,
		ErrCodeInvalidTransition:   ClassStateConflict,
		ErrCodeAlreadyDecided:      ClassStateConflict,
		ErrCodeNotFound:            ClassNotFound,
		ErrCodeIntegrity:           ClassIntegrity,
		ErrorCode("UNKNOWN"):       ClassIntegrity,
	}
	for code, class := range cases {
		assert.Equal(t, class, code.Class(), code)
	}
}

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("create reservation: %w", NewInsufficientStock("item-1", 2, 1))

	assert.Equal(t, ErrCodeInsufficientStock, CodeOf(err))
	assert.Equal(t, ClassResourceConflict, ClassOf(err))
	assert.True(t, IsCode(err, ErrCodeInsufficientStock))
	assert.False(t, IsCode(nil, ErrCodeInsufficientStock))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestError_Details(t *testing.T) {
	stock := NewInsufficientStock("item-1", 2, 1)
	assert.Equal(t, map[string]any{"item_id": "item-1", "requested": 2, "available": 1}, stock.Details())
	assert.Contains(t, stock.Error(), "item=item-1")

	bal := NewInsufficientBalance("u1", decimal.RequireFromString("12.5"))
	assert.Equal(t, map[string]any{"shortfall": "12.50"}, bal.Details())

	assert.Nil(t, NewError(ErrCodeNotFound, "missing").Details())
}

func TestIntegrityError_Unwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIntegrityError(cause, "refund for %s dropped", "r-1")

	assert.True(t, IsIntegrity(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "refund for r-1 dropped")
}
