package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"opsline/pkg/events"
	"opsline/pkg/model"

	"github.com/google/uuid"
)

// LockAPI is the slice of the lock manager the lease controller needs.
type LockAPI interface {
	Acquire(ctx context.Context, req *model.AcquireLockRequest) (*model.Lock, error)
	Renew(ctx context.Context, resourceID string, req *model.RenewLockRequest) (*model.Lock, error)
	Release(ctx context.Context, resourceID string, req *model.ReleaseLockRequest) error
}

type LeaseState int

const (
	LeaseHeld LeaseState = iota
	LeaseLost
	LeaseReleased
)

func (s LeaseState) String() string {
	switch s {
	case LeaseHeld:
		return "held"
	case LeaseLost:
		return "lost"
	case LeaseReleased:
		return "released"
	}
	return "unknown"
}

// LeaseUpdate tells the UI what happened to the lease.
type LeaseUpdate struct {
	State  LeaseState
	Reason string
}

// Lease holds one resource on behalf of an editing session and keeps the
// lease alive until Close. Every exit path must call Close; it is idempotent
// and releases unconditionally.
type Lease struct {
	api          LockAPI
	resourceID   string
	resourceType string
	sessionID    string
	ownerUserID  string
	renewEvery   time.Duration

	updates chan LeaseUpdate
	cancel  context.CancelFunc

	mu     sync.Mutex
	active bool

	closeOnce sync.Once
}

// AcquireLease locks the resource and starts the renewal loop. On conflict
// the returned error is a *LockHeldError naming the holder.
func AcquireLease(ctx context.Context, api LockAPI, resourceType, resourceID string, renewEvery time.Duration) (*Lease, error) {
	sessionID := uuid.New().String()

	lock, err := api.Acquire(ctx, &model.AcquireLockRequest{
		ResourceID:   resourceID,
		ResourceType: resourceType,
		SessionID:    sessionID,
	})
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	l := &Lease{
		api:          api,
		resourceID:   resourceID,
		resourceType: resourceType,
		sessionID:    sessionID,
		ownerUserID:  lock.OwnerUserID,
		renewEvery:   renewEvery,
		updates:      make(chan LeaseUpdate, 8),
		cancel:       cancel,
		active:       true,
	}

	go l.renewLoop(loopCtx)
	return l, nil
}

// Updates yields state transitions. The channel is buffered; a stalled
// reader loses intermediate updates, never the loop.
func (l *Lease) Updates() <-chan LeaseUpdate {
	return l.updates
}

func (l *Lease) SessionID() string {
	return l.sessionID
}

func (l *Lease) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.renewOnce(ctx) {
				return
			}
		}
	}
}

// renewOnce returns false when the lease is gone for good.
func (l *Lease) renewOnce(ctx context.Context) bool {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := l.api.Renew(callCtx, l.resourceID, &model.RenewLockRequest{
		ResourceType: l.resourceType,
		SessionID:    l.sessionID,
	})
	if err == nil {
		return true
	}

	// The lease may have lapsed during a network blip. Re-acquiring with
	// the same session is idempotent, so this recovers it when the
	// resource is still free or still ours.
	_, err = l.api.Acquire(callCtx, &model.AcquireLockRequest{
		ResourceID:   l.resourceID,
		ResourceType: l.resourceType,
		SessionID:    l.sessionID,
	})
	if err == nil {
		return true
	}

	l.markLost("lease could not be renewed: " + err.Error())
	return false
}

// ApplyEvent reconciles the lease against a broadcast. Call it for every
// event from the realtime stream; events for other resources are ignored.
func (l *Lease) ApplyEvent(ev events.Event) {
	if ev.Type != events.EventResourceLocked && ev.Type != events.EventResourceUnlocked {
		return
	}

	var payload events.LockEventPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return
	}
	if payload.ResourceID != l.resourceID || payload.ResourceType != l.resourceType {
		return
	}

	switch ev.Type {
	case events.EventResourceUnlocked:
		// Our own release echoes back here too; markLost is a no-op once
		// Close has run.
		l.markLost("server reports the resource unlocked")
	case events.EventResourceLocked:
		if payload.OwnerUserID != l.ownerUserID {
			l.markLost("resource was taken over by " + payload.OwnerDisplayName)
		}
	}
}

func (l *Lease) markLost(reason string) {
	l.mu.Lock()
	wasActive := l.active
	l.active = false
	l.mu.Unlock()

	if !wasActive {
		return
	}

	l.cancel()
	l.pushUpdate(LeaseUpdate{State: LeaseLost, Reason: reason})
}

// Close stops renewals and releases the lock. Releasing a lease that
// already lapsed or was lost is harmless; the server treats it as a no-op.
func (l *Lease) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		wasActive := l.active
		l.active = false
		l.mu.Unlock()

		l.cancel()

		err = l.api.Release(ctx, l.resourceID, &model.ReleaseLockRequest{
			ResourceType: l.resourceType,
			SessionID:    l.sessionID,
		})

		if wasActive {
			l.pushUpdate(LeaseUpdate{State: LeaseReleased})
		}
	})
	return err
}

func (l *Lease) pushUpdate(u LeaseUpdate) {
	select {
	case l.updates <- u:
	default:
	}
}
