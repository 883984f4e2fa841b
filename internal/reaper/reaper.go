package reaper

import (
	"context"
	"log"

	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/types"
)

const defaultBatchSize = 200

// Reaper periodically revokes grants whose expiry has passed. Precision
// is bounded by the run interval, which is fine for 30-day grants;
// CheckAccess already excludes expired grants regardless.
type Reaper struct {
	store     types.AccessStore
	lifecycle *lifecycle.Lifecycle
	batchSize int
}

func New(store types.AccessStore, lc *lifecycle.Lifecycle) *Reaper {
	return &Reaper{
		store:     store,
		lifecycle: lc,
		batchSize: defaultBatchSize,
	}
}

func (r *Reaper) Name() string { return "reaper" }

// Run revokes one batch of expired grants. One user's failure never
// blocks the rest of the batch.
func (r *Reaper) Run(ctx context.Context) error {
	expired, err := r.store.ListExpiredActiveGrants(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}
	log.Printf("Reaper: revoking %d expired grants", len(expired))

	for _, g := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.lifecycle.Revoke(ctx, g); err != nil {
			log.Printf("Reaper: revoke of grant %d (user %d) failed: %v", g.ID, g.UserID, err)
		}
	}
	return nil
}
