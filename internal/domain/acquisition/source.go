// internal/domain/acquisition/source.go
package acquisition

import (
	"context"

	"activity_scraper/internal/domain/activity"
)

// Source is one cycle's handle to the external data source.
// A Source is never reused: Close must be called exactly once when the cycle ends.
type Source interface {
	Fetch(ctx context.Context) ([]activity.Activity, error)
	Persist(ctx context.Context, activities []activity.Activity) error
	Close() error
}

// Factory produces a fresh Source for every cycle.
type Factory interface {
	NewSource(ctx context.Context) (Source, error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(ctx context.Context) (Source, error)

func (f FactoryFunc) NewSource(ctx context.Context) (Source, error) {
	return f(ctx)
}
