// Package keycache caches vendor session keys by device serial. Resolving
// a session key is a separate, more expensive upstream call than a sample
// fetch, so resolved keys are kept across fetch cycles.
package keycache

import (
	"context"
	"time"
)

// Cache stores session keys by device serial with an optional TTL.
// A zero or negative TTL means the entry does not expire.
type Cache interface {
	Get(ctx context.Context, serial string) (string, bool, error)
	Set(ctx context.Context, serial, sessionKey string, ttl time.Duration) error
}
