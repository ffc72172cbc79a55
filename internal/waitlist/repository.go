package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEntryNotFound = errors.New("waiting list entry not found")

// Repository contains all DB interactions needed by the promoter and the
// reclaim worker.
type Repository interface {
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListOfferable returns the active entries whose status allows a new
	// offer (pending or declined), ordered by creation time ascending.
	// This ordering is the authoritative queue order.
	ListOfferable(ctx context.Context, clinicID uuid.UUID) ([]Entry, error)

	// ClaimForOffer conditionally marks the entry notified and records the
	// offered slot. The update only applies while the entry is still
	// offerable; false means a concurrent promoter claimed it first.
	ClaimForOffer(ctx context.Context, id uuid.UUID, offer Offer, notifiedAt time.Time) (bool, error)

	// RecordFailedOffer returns a claimed entry to pending after a send
	// failure, keeping the offered slot fields but clearing the notified
	// timestamps so the entry stays re-offerable.
	RecordFailedOffer(ctx context.Context, id uuid.UUID, offer Offer) error

	// ReclaimStaleNotified moves entries notified before the cutoff back
	// to pending and reports how many rows changed.
	ReclaimStaleNotified(ctx context.Context, cutoff time.Time) (int64, error)
}
