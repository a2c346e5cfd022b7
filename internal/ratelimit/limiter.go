// Package ratelimit throttles public endpoints per tenant and client address.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Allower decides whether the event identified by key fits in its budget.
type Allower interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
