// Package domain holds the trust, transport and health types shared by the
// adapters, plus the struct validator used when loading configuration.
package domain

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks configuration structs against their validate tags.
type Validator struct {
	v *validator.Validate
}

var customTags = map[string]validator.Func{
	"file_exists":      isRegularFile,
	"port":             isPort,
	"container_format": parses(ParseContainerFormat),
	"client_auth":      parses(ParseClientAuthMode),
}

func parses[T any](parse func(string) (T, error)) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := parse(fl.Field().String())
		return err == nil
	}
}

// NewValidator returns a Validator with the trust-material tags registered.
func NewValidator() *Validator {
	v := validator.New()
	for tag, fn := range customTags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s: %v", tag, err))
		}
	}
	return &Validator{v: v}
}

// Validate runs struct-level validation on s.
func (v *Validator) Validate(s any) error {
	return v.v.Struct(s)
}

// ValidateVar checks a single value against tag.
func (v *Validator) ValidateVar(value any, tag string) error {
	return v.v.Var(value, tag)
}

// isRegularFile leaves empty values to required/omitempty.
func isRegularFile(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// isPort accepts integers and ":port" / "port" strings.
func isPort(fl validator.FieldLevel) bool {
	f := fl.Field()
	var n int64
	switch {
	case f.Kind() == reflect.String:
		p, err := strconv.ParseInt(strings.TrimPrefix(f.String(), ":"), 10, 32)
		if err != nil {
			return false
		}
		n = p
	case f.CanInt():
		n = f.Int()
	case f.CanUint():
		u := f.Uint()
		return u > 0 && u < 1<<16
	default:
		return false
	}
	return n > 0 && n < 1<<16
}

// FieldError describes one failed validate tag.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (fe *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

var tagMessages = map[string]string{
	"required":         "is required",
	"required_unless":  "is required unless %s",
	"url":              "must be a valid URL",
	"gt":               "must be greater than %s",
	"oneof":            "must be one of: %s",
	"hostname_port":    "must be a host:port address",
	"file_exists":      "must name an existing regular file",
	"port":             "must be a port between 1 and 65535",
	"container_format": "must be PKCS12 or PEM",
	"client_auth":      "must be one of: none request require",
}

// ConvertValidationErrors flattens validator errors into FieldErrors.
// Errors of any other type yield nil.
func ConvertValidationErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Message: tagMessage(fe),
		})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}
