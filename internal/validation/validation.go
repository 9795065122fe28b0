package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"codedrop-go/internal/code"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("username", validateUsername); err != nil {
		panic(fmt.Sprintf("failed to register username validation: %v", err))
	}
	if err := validate.RegisterValidation("password", validatePassword); err != nil {
		panic(fmt.Sprintf("failed to register password validation: %v", err))
	}
	if err := validate.RegisterValidation("sharecode", validateShareCode); err != nil {
		panic(fmt.Sprintf("failed to register sharecode validation: %v", err))
	}
}

// Validate validates a struct using tags
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// ValidateShareCode validates a share code separately
func ValidateShareCode(c string) error {
	return validate.Var(c, "required,sharecode")
}

// Custom validation functions

func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	// Username requirements:
	// - Length between 3 and 50 characters
	// - Only alphanumeric characters, underscores, and hyphens
	// - Must start with a letter
	if len(username) < 3 || len(username) > 50 {
		return false
	}

	if !unicode.IsLetter(rune(username[0])) {
		return false
	}

	for _, char := range username {
		if !unicode.IsLetter(char) && !unicode.IsNumber(char) && char != '_' && char != '-' {
			return false
		}
	}

	return true
}

func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	// Password requirements:
	// - Minimum 8 characters
	// - At least one uppercase letter
	// - At least one lowercase letter
	// - At least one number
	if len(password) < 8 {
		return false
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

func validateShareCode(fl validator.FieldLevel) bool {
	// Codes are matched case-insensitively; length and alphabet are checked
	// against the normalized form.
	c := code.Normalize(fl.Field().String())
	if len(c) != code.Length {
		return false
	}
	for _, char := range c {
		if !strings.ContainsRune(code.Alphabet, char) {
			return false
		}
	}
	return true
}

// ValidationError represents a validation error
type ValidationError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FormatError formats a validation error into a human-readable message
func FormatError(err error) []ValidationError {
	var validationErrors []ValidationError

	if err == nil {
		return validationErrors
	}

	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range errs {
			var message string

			switch e.Tag() {
			case "required":
				message = fmt.Sprintf("%s is required", e.Field())
			case "username":
				message = "Username must be 3-50 characters long, start with a letter, and contain only letters, numbers, underscores, or hyphens"
			case "password":
				message = "Password must be at least 8 characters long and contain at least one uppercase letter, one lowercase letter, and one number"
			case "sharecode":
				message = fmt.Sprintf("Code must be exactly %d characters from the code alphabet", code.Length)
			case "gt", "gte":
				message = fmt.Sprintf("%s is out of range", e.Field())
			default:
				message = fmt.Sprintf("Invalid value for %s", e.Field())
			}

			validationErrors = append(validationErrors, ValidationError{
				Field: strings.ToLower(e.Field()),
				Error: message,
			})
		}
	}

	return validationErrors
}
