package common

import (
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Validate runs struct tag validation and converts failures into a VALIDATION_ERROR AppError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError("VALIDATION_ERROR", "invalid payload", http.StatusBadRequest, err)
	}
	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := lowerFirst(fe.Field())
		fields = append(fields, FieldError{Field: name, Rule: fe.Tag()})
		names = append(names, name)
	}
	appErr := NewAppError("VALIDATION_ERROR", "invalid fields: "+strings.Join(names, ", "), http.StatusBadRequest, err)
	appErr.Details = fields
	return appErr
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
