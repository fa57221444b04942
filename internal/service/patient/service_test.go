package patient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

func TestCreateAndGet(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	svc := NewService(store.Patients)
	ctx := context.Background()

	p, err := svc.Create(ctx, &model.CreatePatientRequest{
		Name:                  "  Jane Roe ",
		Email:                 "Jane@Example.com",
		ReasonForConsultation: "Cardiology ",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "Jane Roe", p.Name)
	assert.Equal(t, "jane@example.com", p.Email)
	assert.Equal(t, "Cardiology", p.ReasonForConsultation)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
