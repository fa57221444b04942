// Package slotlock provides the per-slot critical section used by booking
// and rescheduling.
package slotlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when the lock could not be taken within the
	// configured wait.
	ErrTimeout = errors.New("timed out waiting for slot lock")

	// ErrNotHeld is returned by Release when the lock expired or was taken
	// over by another holder.
	ErrNotHeld = errors.New("slot lock no longer held")
)

// Lock is a held critical section.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker grants mutually exclusive locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no
// goroutine holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

// NewLocalLocker returns a keyed mutex. A positive wait bounds how long
// Acquire blocks.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.ch <- struct{}{}:
		return &localLock{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	case <-timeout:
		l.unref(key, s)
		return nil, ErrTimeout
	}
}

func (l *LocalLocker) unref(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys have holders or waiters.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type localLock struct {
	locker *LocalLocker
	key    string
	slot   *localSlot
	once   sync.Once
}

func (k *localLock) Release(context.Context) error {
	err := ErrNotHeld
	k.once.Do(func() {
		<-k.slot.ch
		k.locker.unref(k.key, k.slot)
		err = nil
	})
	return err
}
