package interfaces

import (
	"context"
	"time"

	"github.com/raysh454/flipradar/internal/model"
)

// OpportunityStore persists opportunities and purchase approvals.
// Implementations must be safe for concurrent use; readers must not be blocked
// by a writer for longer than a single short critical section.
type OpportunityStore interface {
	// Add stores a fully built opportunity. Records are immutable once added;
	// adding an existing id returns model.ErrAlreadyExists.
	Add(ctx context.Context, o model.Opportunity) error

	// Get returns the opportunity with id or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.Opportunity, error)

	// List returns opportunities matching f, ordered by estimated profit
	// descending, then newest first, then id.
	List(ctx context.Context, f model.Filter) ([]model.Opportunity, error)

	// RecordPurchase marks an opportunity as approved. Approving twice keeps
	// the first approval and returns it. Unknown ids return model.ErrNotFound.
	RecordPurchase(ctx context.Context, opportunityID string, p model.Purchase) (model.Purchase, error)

	// Stats aggregates the current contents.
	Stats(ctx context.Context) (model.Stats, error)

	// DailyStats aggregates the UTC day containing day: opportunities by
	// discovery time, purchases by approval time.
	DailyStats(ctx context.Context, day time.Time) (model.DailyStats, error)

	Close() error
}
