package matcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/service/directory"
	"github.com/jwalitptl/consult-api/internal/service/slot"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/slotlock"
)

var (
	day      = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	clock    = func() time.Time { return day }
	provider = []string{
		"00000000-0000-0000-0000-000000000001",
		"00000000-0000-0000-0000-000000000002",
		"00000000-0000-0000-0000-000000000003",
	}
)

type fixture struct {
	store   *repository.Store
	matcher *Matcher
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	store := memory.NewStore(memory.NewDB())
	for _, id := range ids {
		require.NoError(t, store.Providers.Create(context.Background(), &model.Provider{
			Base:              model.Base{ID: uuid.MustParse(id)},
			Name:              id,
			Email:             id + "@example.com",
			Specialization:    "Cardiology",
			LicenseExpiryDate: day.AddDate(1, 0, 0),
		}))
	}
	dir := directory.NewService(store.Providers, directory.WithClock(clock))
	return &fixture{
		store:   store,
		matcher: New(dir, slot.NewIndex(store.Consultations), slotlock.NewLocalLocker(time.Second), nil, logger.Nop()),
	}
}

func (f *fixture) book(t *testing.T, providerID string, at string) {
	t.Helper()
	require.NoError(t, f.store.Consultations.Create(context.Background(), &model.Consultation{
		PatientID:  uuid.New(),
		ProviderID: uuid.MustParse(providerID),
		Date:       day,
		Time:       at,
		Status:     model.ConsultationStatusScheduled,
		Priority:   model.PriorityMedium,
	}))
}

func (f *fixture) create(ctx context.Context, p *model.Provider) error {
	return f.store.Consultations.Create(ctx, &model.Consultation{
		PatientID:  uuid.New(),
		ProviderID: p.ID,
		Date:       day,
		Time:       "10:00",
		Status:     model.ConsultationStatusScheduled,
		Priority:   model.PriorityMedium,
	})
}

func TestAssign_FirstFit(t *testing.T) {
	f := newFixture(t, provider...)
	ctx := context.Background()

	p, err := f.matcher.Assign(ctx, "Cardiology", day, "10:00")
	require.NoError(t, err)
	assert.Equal(t, provider[0], p.ID.String())

	f.book(t, provider[0], "10:00")
	p, err = f.matcher.Assign(ctx, "Cardiology", day, "10:00")
	require.NoError(t, err)
	assert.Equal(t, provider[1], p.ID.String())

	// Another time is unaffected.
	p, err = f.matcher.Assign(ctx, "Cardiology", day, "11:00")
	require.NoError(t, err)
	assert.Equal(t, provider[0], p.ID.String())
}

func TestAssign_AllBusy(t *testing.T) {
	f := newFixture(t, provider...)
	for _, id := range provider {
		f.book(t, id, "10:00")
	}

	_, err := f.matcher.Assign(context.Background(), "Cardiology", day, "10:00")
	assert.True(t, apperrors.Is(err, apperrors.ErrAllBusy))
}

func TestAssign_NoProviders(t *testing.T) {
	f := newFixture(t)

	_, err := f.matcher.Assign(context.Background(), "Cardiology", day, "10:00")
	assert.True(t, apperrors.Is(err, apperrors.ErrNoProviders))

	_, err = f.matcher.Reserve(context.Background(), "Cardiology", day, "10:00", f.create)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoProviders))
}

func TestAssign_Deterministic(t *testing.T) {
	f := newFixture(t, provider...)
	f.book(t, provider[0], "10:00")

	for i := 0; i < 5; i++ {
		p, err := f.matcher.Assign(context.Background(), "Cardiology", day, "10:00")
		require.NoError(t, err)
		assert.Equal(t, provider[1], p.ID.String())
	}
}

func TestReserve_CreatesForFirstFree(t *testing.T) {
	f := newFixture(t, provider...)
	f.book(t, provider[0], "10:00")

	p, err := f.matcher.Reserve(context.Background(), "Cardiology", day, "10:00", f.create)
	require.NoError(t, err)
	assert.Equal(t, provider[1], p.ID.String())

	held, err := slot.NewIndex(f.store.Consultations).HasConflict(context.Background(), p.ID, day, "10:00", nil)
	require.NoError(t, err)
	assert.True(t, held)
}

// staleIndex always reports the slot free, so only the storage constraint
// can catch a double booking.
type staleIndex struct{}

func (staleIndex) HasConflict(context.Context, uuid.UUID, time.Time, string, *uuid.UUID) (bool, error) {
	return false, nil
}

func TestReserve_SlotTakenMovesToNextCandidate(t *testing.T) {
	f := newFixture(t, provider...)
	f.book(t, provider[0], "10:00")

	dir := directory.NewService(f.store.Providers, directory.WithClock(clock))
	m := New(dir, staleIndex{}, slotlock.NewLocalLocker(time.Second), nil, logger.Nop())

	p, err := m.Reserve(context.Background(), "Cardiology", day, "10:00", f.create)
	require.NoError(t, err)
	assert.Equal(t, provider[1], p.ID.String())
}

func TestReserve_CreateErrorStops(t *testing.T) {
	f := newFixture(t, provider...)
	boom := apperrors.Internal(nil)

	_, err := f.matcher.Reserve(context.Background(), "Cardiology", day, "10:00", func(context.Context, *model.Provider) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestReserve_ConcurrentBookingsNeverShareASlot(t *testing.T) {
	f := newFixture(t, provider...)
	const attempts = 12

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     = map[uuid.UUID]int{}
		busy    int
		unknown []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.matcher.Reserve(context.Background(), "Cardiology", day, "10:00", func(ctx context.Context, p *model.Provider) error {
				return f.store.Tx.WithTx(ctx, func(ctx context.Context) error {
					return f.create(ctx, p)
				})
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won[p.ID]++
			case apperrors.Is(err, apperrors.ErrAllBusy):
				busy++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Len(t, won, len(provider))
	for id, n := range won {
		assert.Equal(t, 1, n, "provider %s booked twice", id)
	}
	assert.Equal(t, attempts-len(provider), busy)

	active, err := f.store.Consultations.List(context.Background(), &model.ConsultationFilters{Statuses: model.ActiveStatuses})
	require.NoError(t, err)
	assert.Len(t, active, len(provider))
}

func TestReserve_CanceledRequestFreesSlotLock(t *testing.T) {
	f := newFixture(t, provider[0], provider[1])
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	locker := slotlock.NewRedisLocker(client, slotlock.RedisConfig{TTL: 10 * time.Second, Wait: 30 * time.Millisecond})
	dir := directory.NewService(f.store.Providers, directory.WithClock(clock))
	m := New(dir, slot.NewIndex(f.store.Consultations), locker, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Reserve(ctx, "Cardiology", day, "10:00", func(ctx context.Context, _ *model.Provider) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	p, err := m.Reserve(context.Background(), "Cardiology", day, "10:00", f.create)
	require.NoError(t, err)
	assert.Equal(t, provider[0], p.ID.String())
}
