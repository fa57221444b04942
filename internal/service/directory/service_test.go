package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

var today = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return today }

func addProvider(t *testing.T, repo repository.ProviderRepository, id, spec string, expiry time.Time) *model.Provider {
	t.Helper()
	p := &model.Provider{
		Base:              model.Base{ID: uuid.MustParse(id)},
		Name:              "Dr " + id[len(id)-1:],
		Email:             id + "@example.com",
		Specialization:    spec,
		LicenseExpiryDate: expiry,
	}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestEligibleProviders_OrderAndExpiry(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	day := model.NormalizeDate(today)

	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000003", "Cardiology", day.AddDate(1, 0, 0))
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000001", "Cardiology", day)
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000002", "Cardiology", day.AddDate(0, 0, -1))
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000004", "Dermatology", day.AddDate(1, 0, 0))

	svc := NewService(store.Providers, WithClock(fixedClock))
	got, err := svc.EligibleProviders(context.Background(), "Cardiology")
	require.NoError(t, err)

	// Expiring today is still eligible; expired yesterday is not.
	require.Len(t, got, 2)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", got[0].ID.String())
	assert.Equal(t, "00000000-0000-0000-0000-000000000003", got[1].ID.String())
}

func TestEligibleProviders_NoneIsNotFound(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000001", "Cardiology", today.AddDate(0, 0, -10))

	svc := NewService(store.Providers, WithClock(fixedClock))

	_, err := svc.EligibleProviders(context.Background(), "Cardiology")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.EligibleProviders(context.Background(), "Neurology")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestEligibleProviders_Cache(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000001", "Cardiology", today.AddDate(1, 0, 0))

	svc := NewService(store.Providers, WithClock(fixedClock), WithCache(time.Minute))
	got, err := svc.EligibleProviders(context.Background(), "Cardiology")
	require.NoError(t, err)
	require.Len(t, got, 1)

	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000002", "Cardiology", today.AddDate(1, 0, 0))

	got, err = svc.EligibleProviders(context.Background(), "Cardiology")
	require.NoError(t, err)
	assert.Len(t, got, 1, "served from cache")

	svc.Invalidate("Cardiology")
	got, err = svc.EligibleProviders(context.Background(), "Cardiology")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEligibleProviders_TodayInLocation(t *testing.T) {
	store := memory.NewStore(memory.NewDB())
	addProvider(t, store.Providers, "00000000-0000-0000-0000-000000000001", "Cardiology", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	// 01:00 UTC on May 2 is still May 1 in New York.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC) }

	got, err := NewService(store.Providers, WithClock(clock), WithLocation(loc)).
		EligibleProviders(context.Background(), "Cardiology")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = NewService(store.Providers, WithClock(clock)).
		EligibleProviders(context.Background(), "Cardiology")
	assert.Error(t, err)
}
