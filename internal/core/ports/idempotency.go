package ports

import "context"

// IdempotencyStore remembers which client a given Idempotency-Key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, ownerID int64, key string) (clientID int64, found bool, err error)
	Remember(ctx context.Context, ownerID int64, key string, clientID int64) error
}
