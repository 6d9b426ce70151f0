package state

import "context"

// Repository handles state persistence for crash recovery.
type Repository interface {
	// Load retrieves the last saved state. Returns an empty state and nil
	// error if no state exists; errors are actual read failures.
	Load(ctx context.Context) (State, error)

	// Save persists the state atomically.
	Save(ctx context.Context, state State) error
}
