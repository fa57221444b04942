package provider

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/service/directory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

func request(email string) *model.CreateProviderRequest {
	return &model.CreateProviderRequest{
		Name:              "Dr Grey",
		Email:             email,
		Specialization:    "Cardiology",
		LicenseNumber:     "LIC-1",
		LicenseExpiryDate: "2030-01-01",
	}
}

func TestCreate_InvalidatesDirectoryCache(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	dir := directory.NewService(store.Providers,
		directory.WithCache(time.Hour),
		directory.WithClock(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }),
	)
	svc := NewService(store.Providers, dir, logger.Nop())
	ctx := context.Background()

	_, err := dir.EligibleProviders(ctx, "Cardiology")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	p, err := svc.Create(ctx, request("Grey@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "grey@example.com", p.Email)
	assert.Equal(t, "2030-01-01", model.FormatDate(p.LicenseExpiryDate))

	eligible, err := dir.EligibleProviders(ctx, "Cardiology")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, p.ID, eligible[0].ID)
}

func TestCreate_Errors(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	svc := NewService(store.Providers, directory.NewService(store.Providers), logger.Nop())
	ctx := context.Background()

	_, err := svc.Create(ctx, request("grey@example.com"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, request("grey@example.com"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	bad := request("other@example.com")
	bad.LicenseExpiryDate = "01/01/2030"
	_, err = svc.Create(ctx, bad)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
