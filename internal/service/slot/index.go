// Package slot answers whether a provider's slot already holds an active
// consultation.
package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type Index struct {
	repo repository.ConsultationRepository
}

func NewIndex(repo repository.ConsultationRepository) *Index {
	return &Index{repo: repo}
}

// HasConflict reports whether an active consultation other than excludeID
// occupies (providerID, date, clock). The date is normalized here, once.
func (i *Index) HasConflict(ctx context.Context, providerID uuid.UUID, date time.Time, clock string, excludeID *uuid.UUID) (bool, error) {
	key := model.NewSlotKey(providerID, date, clock)
	held, err := i.repo.ExistsInSlot(ctx, key, model.ActiveStatuses, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return held, nil
}
