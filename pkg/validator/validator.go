package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/consult-api/internal/model"
)

const (
	TagCalendarDate = "calendar_date"
	TagClockTime    = "clock_time"
)

// Register adds the domain tags to v and reports field names by their json
// tag.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation(TagCalendarDate, calendarDate); err != nil {
		return fmt.Errorf("failed to register %s: %w", TagCalendarDate, err)
	}
	if err := v.RegisterValidation(TagClockTime, clockTime); err != nil {
		return fmt.Errorf("failed to register %s: %w", TagClockTime, err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

// RegisterGin installs the domain tags on gin's binding validator.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
	}
	return Register(v)
}

func calendarDate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func clockTime(fl validator.FieldLevel) bool {
	_, err := model.NormalizeTime(fl.Field().String())
	return err == nil
}

// FieldError is one failed rule in a client-facing form.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":      "is required",
	"email":         "must be a valid email address",
	"url":           "must be a valid URL",
	"max":           "is too long",
	"oneof":         "must be one of: %s",
	TagCalendarDate: "must be a date (YYYY-MM-DD or RFC 3339)",
	TagClockTime:    "must be a time of day (HH:MM or HH:MM:SS)",
}

// Describe converts validation errors into FieldErrors.
func Describe(errs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, ok := messages[e.Tag()]
		switch {
		case !ok:
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		case strings.Contains(msg, "%s"):
			msg = fmt.Sprintf(msg, e.Param())
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}
