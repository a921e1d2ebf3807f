package validation

import (
	"regexp"
	"strings"

	"github.com/your-org/itemservice/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+$`)

// RegexEmailValidator accepts addresses of the form local@domain
type RegexEmailValidator struct{}

// NewEmailValidator returns the default email validator
func NewEmailValidator() *RegexEmailValidator {
	return &RegexEmailValidator{}
}

// IsValid implements domain.EmailValidator
func (RegexEmailValidator) IsValid(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidateItem checks the fields required on create and update
func ValidateItem(item *domain.Item, emails domain.EmailValidator) error {
	if item == nil {
		return &domain.ValidationError{Field: "item", Message: "Item is required"}
	}
	if strings.TrimSpace(item.Name) == "" {
		return &domain.ValidationError{Field: "name", Message: "Name must not be blank"}
	}
	if strings.TrimSpace(item.Email) == "" {
		return &domain.ValidationError{Field: "email", Message: "Email must not be blank"}
	}
	if !emails.IsValid(item.Email) {
		return &domain.ValidationError{Field: "email", Message: "Email invalid: " + item.Email}
	}
	switch item.Status {
	case "", domain.ItemStatusCreated, domain.ItemStatusProcessed:
	default:
		return &domain.ValidationError{Field: "status", Message: "Unknown status: " + string(item.Status)}
	}
	return nil
}

var _ domain.EmailValidator = RegexEmailValidator{}
