package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("consultation", nil), http.StatusNotFound},
		{NoProviders("Cardiology"), http.StatusNotFound},
		{AllBusy("Cardiology"), http.StatusConflict},
		{Conflict("slot taken", nil), http.StatusConflict},
		{AlreadyMissed(), http.StatusConflict},
		{InvalidTransition("Completed", "cancel"), http.StatusConflict},
		{BadRequest("bad date", nil), http.StatusBadRequest},
		{Unauthorized(nil), http.StatusUnauthorized},
		{DependencyFailure("email", fmt.Errorf("smtp down")), http.StatusBadGateway},
		{Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestIsFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("reschedule: %w", Conflict("slot taken", nil))

	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrAllBusy))
	assert.Equal(t, ErrConflict, CodeOf(err))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := DependencyFailure("email", fmt.Errorf("smtp down"))
	assert.Equal(t, "email failed: smtp down", err.Error())
}
