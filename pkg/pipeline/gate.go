package pipeline

import (
	"context"
	"fmt"
	"time"

	"xrepost/models"
)

// Gate decides whether an account may still collect in the current window.
type Gate struct {
	store GateStore
	now   func() time.Time
}

func NewGate(store GateStore) *Gate {
	return &Gate{store: store, now: time.Now}
}

// Decision is the outcome of one gate check.
type Decision struct {
	Count   int
	Limit   models.RateLimit
	Allowed bool
}

// CountRecent counts what the account consumed in the trailing window.
// An unknown account counts zero.
func (g *Gate) CountRecent(ctx context.Context, accountID int, window time.Duration) (int, error) {
	return g.store.CountRecent(ctx, accountID, g.now().Add(-window))
}

// UnderLimit reports whether the account is strictly below ceiling.
func (g *Gate) UnderLimit(ctx context.Context, accountID int, window time.Duration, ceiling int) (bool, error) {
	count, err := g.CountRecent(ctx, accountID, window)
	if err != nil {
		return false, err
	}
	return count < ceiling, nil
}

// Check reads the current limit from the store and applies it.
func (g *Gate) Check(ctx context.Context, accountID int) (Decision, error) {
	limit, err := g.store.GetRateLimit(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("rate gate: %w", err)
	}
	count, err := g.CountRecent(ctx, accountID, limit.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate gate: %w", err)
	}
	return Decision{Count: count, Limit: limit, Allowed: count < limit.Ceiling}, nil
}
