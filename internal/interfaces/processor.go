package interfaces

import (
	"context"

	"github.com/ternarybob/conveyor/internal/models"
)

// ItemProcessor is the opaque per-item work function the engine fans out
// over. Implementations must be safe to invoke concurrently up to the
// configured item concurrency; any internal resource sharing is the
// implementation's responsibility.
//
// The engine does not interrupt a running Process call on cancellation - an
// implementation that wants faster cancellation should honor ctx itself.
type ItemProcessor interface {
	// Process performs the work for one item and returns the paths of the
	// artifacts it produced, or an error. Errors are isolated to the item
	// and never abort sibling items.
	Process(ctx context.Context, item models.Item, config models.JobConfig) ([]string, error)
}
