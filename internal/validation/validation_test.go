package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/itemservice/internal/domain"
)

func TestEmailValidator(t *testing.T) {
	v := NewEmailValidator()

	tests := []struct {
		email string
		valid bool
	}{
		{"test@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"under_score-dash@host", true},
		{"", false},
		{"no-at-sign", false},
		{"two@@example.com", false},
		{"space in@example.com", false},
		{"@example.com", false},
		{"user@", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.valid, v.IsValid(tt.email))
		})
	}
}

func TestValidateItem(t *testing.T) {
	v := NewEmailValidator()

	assert.NoError(t, ValidateItem(&domain.Item{Name: "Widget", Email: "a@b.c"}, v))

	err := ValidateItem(&domain.Item{Name: "  ", Email: "a@b.c"}, v)
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, "Name must not be blank", err.Error())

	err = ValidateItem(&domain.Item{Name: "Widget", Email: "broken"}, v)
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, "Email invalid: broken", err.Error())

	err = ValidateItem(&domain.Item{Name: "Widget", Email: "a@b.c", Status: "DONE"}, v)
	assert.True(t, domain.IsValidationError(err))

	assert.True(t, domain.IsValidationError(ValidateItem(nil, v)))
}
