package validate

import (
	"context"

	"crowdedhouse/internal/store"
)

// Source is the read side of the store the checks need.
type Source interface {
	ListTimelines(ctx context.Context) ([]store.Timeline, error)
	ListDanglingMemories(ctx context.Context) ([]store.Memory, error)
}
