package domain

import (
	"context"
	"fmt"
)

// DefaultSupervisorChainLimit bounds the supervisor walk.
const DefaultSupervisorChainLimit = 64

// SupervisorLookup returns the supervisor id of userID, or nil when the user
// has none.
type SupervisorLookup func(ctx context.Context, userID string) (*string, error)

// CheckSupervisorChain verifies that making supervisorID the supervisor of
// userID keeps the supervisor graph acyclic. It walks upward from the
// proposed supervisor; chains longer than limit are rejected.
func CheckSupervisorChain(ctx context.Context, userID, supervisorID string, limit int, lookup SupervisorLookup) error {
	if limit <= 0 {
		limit = DefaultSupervisorChainLimit
	}
	if userID == supervisorID {
		return Invalid("a user cannot supervise themselves")
	}

	current := supervisorID
	for depth := 0; depth < limit; depth++ {
		next, err := lookup(ctx, current)
		if err != nil {
			return fmt.Errorf("walking supervisor chain at %s: %w", current, err)
		}
		if next == nil {
			return nil
		}
		if *next == userID {
			return Invalid("supervisor assignment would create a cycle")
		}
		current = *next
	}
	return Invalid("supervisor chain exceeds %d levels", limit)
}
