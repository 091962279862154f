package store

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"fakturin/backend/internal/domain"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name string
		in   domain.Page
		want domain.Page
	}{
		{"defaults", domain.Page{}, domain.Page{Number: 1, Limit: 10}},
		{"negative", domain.Page{Number: -3, Limit: -1}, domain.Page{Number: 1, Limit: 10}},
		{"in range", domain.Page{Number: 2, Limit: 25}, domain.Page{Number: 2, Limit: 25}},
		{"limit clamped", domain.Page{Number: 1, Limit: 1000}, domain.Page{Number: 1, Limit: 100}},
		{"page clamped", domain.Page{Number: math.MaxInt, Limit: 10}, domain.Page{Number: MaxPage, Limit: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePage(tc.in)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got.Offset(), 0)
		})
	}
}

func TestPageOffsetNeverNegative(t *testing.T) {
	assert.Equal(t, 0, domain.Page{}.Offset())
	assert.Equal(t, 0, domain.Page{Number: -5, Limit: 10}.Offset())
	assert.Equal(t, 20, domain.Page{Number: 3, Limit: 10}.Offset())
	assert.Equal(t, (MaxPage-1)*100, NormalizePage(domain.Page{Number: math.MaxInt, Limit: math.MaxInt}).Offset())
}

type driverError struct{ code string }

func (e *driverError) Error() string { return "driver error " + e.code }

func TestUnavailableKeepsCauseChain(t *testing.T) {
	cause := &driverError{code: "57P01"}
	err := Unavailable("create invoice", cause)

	assert.ErrorIs(t, err, ErrStorageUnavailable)
	var target *driverError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, "57P01", target.code)
	assert.Contains(t, err.Error(), "create invoice")
}

func TestInvalidUnwrapsToValidation(t *testing.T) {
	err := Invalid("name", "is required")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
}
