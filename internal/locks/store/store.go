package store

import (
	"context"
	"time"

	"opsline/pkg/model"
)

// Store is the durable keyed state behind the lease protocol: one record per
// (resourceType, resourceId). Implementations must serialize the conditional
// writes per key so two near-simultaneous acquires cannot both succeed, and
// must treat a record past its expiry as absent on every read path.
type Store interface {
	// Acquire installs lock as the current record unless a live lock held by
	// a different session exists. On conflict it returns the current owner's
	// record together with ErrConflict.
	Acquire(ctx context.Context, lock *model.Lock, now time.Time) (*model.Lock, error)

	// Renew extends the lease deadline of a live lock owned by sessionID and
	// returns the updated record. Returns ErrNotOwner when the lock is
	// absent, expired, or held by a different session.
	Renew(ctx context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error)

	// Release removes a live lock owned by sessionID. Releasing an absent,
	// expired, or foreign lock is a no-op; the bool reports whether a record
	// was actually removed.
	Release(ctx context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error)

	// Get returns the live lock for the resource, or ErrNotFound when no
	// live lock exists.
	Get(ctx context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error)

	// List returns live locks ordered by acquisition time, plus the total
	// live count for pagination.
	List(ctx context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error)

	// DeleteExpired physically removes expired records and returns what it
	// reclaimed. Correctness never depends on this running promptly.
	DeleteExpired(ctx context.Context, now time.Time) ([]*model.Lock, error)

	// CountLive returns the number of unexpired locks.
	CountLive(ctx context.Context, now time.Time) (int64, error)
}
