package worker

import (
	"context"
)

// Restorer returns donors to the available pool once their waiting period
// is over.
type Restorer interface {
	RestoreAvailability(ctx context.Context) (int64, error)
}

// AvailabilityTask adapts a Restorer to a periodic task.
func AvailabilityTask(r Restorer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.RestoreAvailability(ctx)
		return err
	}
}
