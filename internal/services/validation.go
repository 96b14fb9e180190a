package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid input field. Field uses the JSON path of
// the input (e.g. "items[0].text").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when an input fails validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// invalid builds a single-field ValidationError.
func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the validate tags of v.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if ve := AsValidationError(err); ve != nil {
		return ve
	}
	return err
}

// AsValidationError converts validator errors (including the ones produced
// by gin binding) to a *ValidationError. It returns nil for anything else.
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(ves))}
	for _, fe := range ves {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: fieldMessage(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	isList := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array
	switch fe.Tag() {
	case "required", "required_if":
		return "Обязательное поле"
	case "email":
		return "Неверный формат email"
	case "oneof":
		return "Допустимые значения: " + fe.Param()
	case "min":
		if isList {
			return fmt.Sprintf("Минимум %s элемент(ов)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Минимум %s символов", fe.Param())
		}
		return "Минимальное значение " + fe.Param()
	case "max":
		if isList {
			return fmt.Sprintf("Максимум %s элемент(ов)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Максимум %s символов", fe.Param())
		}
		return "Максимальное значение " + fe.Param()
	case "eqfield":
		return "Значения не совпадают"
	}
	return "Неверное значение"
}
