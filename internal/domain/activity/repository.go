package activity

import (
	"context"
)

// Repository defines the operations for persisting scraped activities.
type Repository interface {
	// SaveActivities stores the whole batch or nothing.
	SaveActivities(ctx context.Context, activities []Activity) error
	CountActivities(ctx context.Context) (int, error)
}
