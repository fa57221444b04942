package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotRequest struct {
	Date     string `json:"date" validate:"required,calendar_date"`
	Time     string `json:"time" validate:"required,clock_time"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

func newValidate(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	require.NoError(t, Register(v))
	return v
}

func TestDomainTags(t *testing.T) {
	v := newValidate(t)

	tests := []struct {
		name string
		req  slotRequest
		ok   bool
	}{
		{"date and time", slotRequest{Date: "2024-05-03", Time: "09:30"}, true},
		{"rfc3339 and seconds", slotRequest{Date: "2024-05-03T22:00:00-07:00", Time: "09:30:15"}, true},
		{"short hour", slotRequest{Date: "2024-05-03", Time: "9:30"}, true},
		{"bad date", slotRequest{Date: "03/05/2024", Time: "09:30"}, false},
		{"bad time", slotRequest{Date: "2024-05-03", Time: "25:00"}, false},
		{"bad priority", slotRequest{Date: "2024-05-03", Time: "09:30", Priority: "urgent"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	v := newValidate(t)

	err := v.Struct(slotRequest{Date: "soon", Priority: "urgent"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	assert.Equal(t, []FieldError{
		{Field: "date", Message: "must be a date (YYYY-MM-DD or RFC 3339)"},
		{Field: "time", Message: "is required"},
		{Field: "priority", Message: "must be one of: low medium high"},
	}, Describe(verrs))
}
