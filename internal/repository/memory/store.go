// Package memory is an in-process storage backend with the same contracts
// as the postgres repositories. It backs tests and single-node demos.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type txKey struct{}

// txState collects undo steps for the running transaction.
type txState struct {
	undo []func()
}

// DB holds every table. Transactions are serialized; plain calls only take
// the row mutex.
type DB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	providers     map[uuid.UUID]model.Provider
	patients      map[uuid.UUID]model.Patient
	consultations map[uuid.UUID]model.Consultation
	documents     map[uuid.UUID]model.PatientDocument
	notifications []model.Notification
	outbox        map[uuid.UUID]model.OutboxEvent
	dedupKeys     map[string]uuid.UUID
}

func NewDB() *DB {
	return &DB{
		providers:     make(map[uuid.UUID]model.Provider),
		patients:      make(map[uuid.UUID]model.Patient),
		consultations: make(map[uuid.UUID]model.Consultation),
		documents:     make(map[uuid.UUID]model.PatientDocument),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
		dedupKeys:     make(map[string]uuid.UUID),
	}
}

// NewStore wires every in-memory repository around one DB.
func NewStore(db *DB) *repository.Store {
	return &repository.Store{
		Providers:     &providerRepository{db},
		Patients:      &patientRepository{db},
		Consultations: &consultationRepository{db},
		Documents:     &documentRepository{db},
		Notifications: &notificationRepository{db},
		Outbox:        &outboxRepository{db},
		Tx:            db,
		Close:         func() error { return nil },
	}
}

// WithTx runs fn with all writes journaled. When fn fails or panics the
// writes are undone in reverse order. A nested call joins the outer one.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	tx := &txState{}
	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		db.rollback(tx)
		return err
	}
	return nil
}

func (db *DB) rollback(tx *txState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// journal records an undo step if ctx carries a transaction. Callers hold mu.
func journal(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*txState); ok {
		tx.undo = append(tx.undo, undo)
	}
}
