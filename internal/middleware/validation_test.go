package middleware

import (
	"testing"

	"cmm/internal/models"

	"github.com/stretchr/testify/assert"
)

type sampleInput struct {
	Name  string `json:"name" validate:"required,max=5"`
	Count *int64 `json:"count" validate:"required,min=0"`
	Role  string `json:"role" validate:"omitempty,role"`
}

func TestValidateStructMessages(t *testing.T) {
	zero, negative := int64(0), int64(-1)

	cases := []struct {
		in   sampleInput
		want string
	}{
		{sampleInput{Count: &zero}, "name is required"},
		{sampleInput{Name: "too-long", Count: &zero}, "name must be at most 5 characters"},
		{sampleInput{Name: "ok"}, "count is required"},
		{sampleInput{Name: "ok", Count: &negative}, "count must be at least 0"},
		{sampleInput{Name: "ok", Count: &zero, Role: "root"}, "Invalid role"},
	}
	for _, tc := range cases {
		err := ValidateStruct(tc.in)
		assert.ErrorIs(t, err, models.ErrValidation, tc.want)
		assert.Equal(t, tc.want, models.Message(err))
	}

	assert.NoError(t, ValidateStruct(sampleInput{Name: "ok", Count: &zero, Role: "tech"}))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "web-01", SanitizeString("  web\x00-01\x7f "))
	assert.Equal(t, "a\tb", SanitizeString("a\tb"))
}
