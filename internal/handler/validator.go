package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/go-playground/validator/v10"
)

var conversationIdRegex = regexp.MustCompile(`^([\w-]+:?)*\w$`)

// RequestValidator checks inbound payloads and reports the first violation as
// an ErrorCodeInvalidArgument error named after the offending json field.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	err := validate.RegisterValidation("conversationid", func(fl validator.FieldLevel) bool {
		return conversationIdRegex.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}

	return &RequestValidator{
		validate,
	}
}

func (v *RequestValidator) Validate(req any) error {
	return v.toError(v.validate.Struct(req))
}

// ValidateContentLength counts runes, not bytes.
func (v *RequestValidator) ValidateContentLength(content string, maxLength int) error {
	if maxLength <= 0 {
		return nil
	}

	err := v.validate.Var(content, fmt.Sprintf("max=%d", maxLength))
	if err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument,
			fmt.Errorf("content exceeds %d characters", maxLength))
	}

	return nil
}

func (v *RequestValidator) toError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldError := validationErrors[0]

		return ierr.New(ierr.ErrorCodeInvalidArgument,
			fmt.Errorf("invalid %s: failed on %s", fieldError.Field(), fieldError.Tag()))
	}

	return ierr.New(ierr.ErrorCodeInvalidArgument, err)
}
