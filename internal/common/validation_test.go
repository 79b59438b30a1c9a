package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAccumulates(t *testing.T) {
	v := NewValidator()
	v.Field("invoice_number", "", Required).
		Field("date", "2024-13-01", ISODate).
		Field("total_amount", -1.0, NonNegative).
		Field("currency", "usd", CurrencyCode).
		Field("confidence", 1.5, Fraction).
		Field("note", "abcdef", MaxLength(3))

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 6)
	assert.True(t, v.HasFieldError("date"))
	assert.False(t, v.HasFieldError("line_items"))

	err := ValidateAndReturnError(v)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, v.ErrorMessage(), "invoice_number")
}

func TestHasFieldErrorMatchesNestedPaths(t *testing.T) {
	v := NewValidator()
	v.Add("line_items[2].amount", "x", "must be numeric")
	v.Add("amounts.Tax", "x", "must be numeric")
	assert.True(t, v.HasFieldError("line_items"))
	assert.True(t, v.HasFieldError("amounts"))
	assert.False(t, v.HasFieldError("amount"))
}

func TestRulesAcceptValidValues(t *testing.T) {
	assert.Nil(t, Required("a", "x"))
	assert.Nil(t, ISODate("d", "2024-02-29"))
	assert.Nil(t, NonNegative("n", 0.0))
	assert.Nil(t, CurrencyCode("c", "INR"))
	assert.Nil(t, Fraction("f", 1.0))
	assert.Nil(t, ValidateAndReturnError(NewValidator()))
}
