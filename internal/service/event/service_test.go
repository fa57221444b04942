package event

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
	"github.com/jwalitptl/consult-api/pkg/logger"
)

func TestOutboxEmitter_Emit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.NewDB())
	emitter := NewOutboxEmitter(store.Outbox, nil, logger.Nop())

	evt := &model.DomainEvent{
		ID:         uuid.New(),
		Kind:       model.EventKindReminder,
		ProviderID: uuid.New(),
		Message:    "reminder",
		OccurredAt: time.Now().UTC(),
		DedupKey:   "reminder:abc:2024-05-02",
	}
	require.NoError(t, emitter.Emit(ctx, evt))

	pending, err := store.Outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, string(model.EventKindReminder), pending[0].EventType)

	decoded, err := pending[0].DomainEvent()
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, evt.ProviderID, decoded.ProviderID)

	again := *evt
	again.ID = uuid.New()
	assert.ErrorIs(t, emitter.Emit(ctx, &again), repository.ErrDuplicateEvent)
}

func TestOutboxEmitter_NoDedupKeyAlwaysEnqueues(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.NewDB())
	emitter := NewOutboxEmitter(store.Outbox, nil, logger.Nop())

	for i := 0; i < 2; i++ {
		require.NoError(t, emitter.Emit(ctx, &model.DomainEvent{
			ID:         uuid.New(),
			Kind:       model.EventKindBooked,
			ProviderID: uuid.New(),
			OccurredAt: time.Now().UTC(),
		}))
	}

	pending, err := store.Outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
