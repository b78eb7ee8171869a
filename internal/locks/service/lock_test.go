package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/internal/locks/validator"
	"opsline/pkg/auth"
	"opsline/pkg/config"
	apperrors "opsline/pkg/errors"
	"opsline/pkg/events"
	"opsline/pkg/logger"
	"opsline/pkg/model"
)

type mockStore struct {
	acquireFn       func(ctx context.Context, lock *model.Lock, now time.Time) (*model.Lock, error)
	renewFn         func(ctx context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error)
	releaseFn       func(ctx context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error)
	getFn           func(ctx context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error)
	listFn          func(ctx context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error)
	deleteExpiredFn func(ctx context.Context, now time.Time) ([]*model.Lock, error)
	countLiveFn     func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockStore) Acquire(ctx context.Context, lock *model.Lock, now time.Time) (*model.Lock, error) {
	return m.acquireFn(ctx, lock, now)
}

func (m *mockStore) Renew(ctx context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error) {
	return m.renewFn(ctx, resourceType, resourceID, sessionID, now, expiresAt)
}

func (m *mockStore) Release(ctx context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error) {
	return m.releaseFn(ctx, resourceType, resourceID, sessionID, now)
}

func (m *mockStore) Get(ctx context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error) {
	return m.getFn(ctx, resourceType, resourceID, now)
}

func (m *mockStore) List(ctx context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error) {
	return m.listFn(ctx, now, limit, offset)
}

func (m *mockStore) DeleteExpired(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	return m.deleteExpiredFn(ctx, now)
}

func (m *mockStore) CountLive(ctx context.Context, now time.Time) (int64, error) {
	return m.countLiveFn(ctx, now)
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) BroadcastToAll(event events.Event) {
	c.events = append(c.events, event)
}

func newTestService(t *testing.T, st *mockStore) (*lockService, *captureNotifier) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"})
	cfg := &config.Config{
		LeaseDuration: 90 * time.Second,
		Log:           log,
	}
	notifier := &captureNotifier{}
	svc := NewLockService(st, validator.NewLockValidator(log), notifier, nil, nil, cfg).(*lockService)
	return svc, notifier
}

const testSessionID = "0a6558ce-1d40-4b5e-9d4e-3a1f5db10e3c"

func acquireReq(resourceID string) *model.AcquireLockRequest {
	return &model.AcquireLockRequest{
		ResourceID:   resourceID,
		ResourceType: model.ResourceTypeInternalOrder,
		SessionID:    testSessionID,
	}
}

var testIdentity = auth.Identity{UserID: "u-1", DisplayName: "Dana"}

func TestAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("success sets lease fields and broadcasts", func(t *testing.T) {
		var seen *model.Lock
		st := &mockStore{
			acquireFn: func(_ context.Context, lock *model.Lock, _ time.Time) (*model.Lock, error) {
				seen = lock
				stored := *lock
				return &stored, nil
			},
		}
		svc, notifier := newTestService(t, st)

		lock, err := svc.Acquire(ctx, testIdentity, acquireReq("order-1"))
		if err != nil {
			t.Fatalf("expected acquire to succeed, got %v", err)
		}

		if seen.OwnerUserID != "u-1" || seen.OwnerDisplayName != "Dana" {
			t.Errorf("identity not denormalized onto lock: %+v", seen)
		}
		if got := seen.ExpiresAt.Sub(seen.AcquiredAt); got != 90*time.Second {
			t.Errorf("expected 90s lease, got %s", got)
		}
		if lock.OwnerSessionID != testSessionID {
			t.Errorf("unexpected session %s", lock.OwnerSessionID)
		}

		if len(notifier.events) != 1 || notifier.events[0].Type != events.EventResourceLocked {
			t.Fatalf("expected one resource-locked broadcast, got %+v", notifier.events)
		}

		var payload events.LockEventPayload
		if err := json.Unmarshal(notifier.events[0].Payload, &payload); err != nil {
			t.Fatalf("decode broadcast payload: %v", err)
		}
		if payload.OwnerDisplayName != "Dana" {
			t.Errorf("expected owner name in payload, got %+v", payload)
		}
		if payload.AcquiredAt == nil || !payload.AcquiredAt.Equal(seen.AcquiredAt) {
			t.Errorf("expected acquired_at %s in payload, got %+v", seen.AcquiredAt, payload.AcquiredAt)
		}
		if payload.ExpiresAt == nil || !payload.ExpiresAt.Equal(seen.ExpiresAt) {
			t.Errorf("expected expires_at %s in payload, got %+v", seen.ExpiresAt, payload.ExpiresAt)
		}
	})

	t.Run("conflict maps to 409 with owner details", func(t *testing.T) {
		st := &mockStore{
			acquireFn: func(_ context.Context, _ *model.Lock, _ time.Time) (*model.Lock, error) {
				return &model.Lock{OwnerUserID: "u-2", OwnerDisplayName: "Noa"}, lockserrors.ErrConflict
			},
		}
		svc, notifier := newTestService(t, st)

		_, err := svc.Acquire(ctx, testIdentity, acquireReq("order-1"))
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus != http.StatusConflict {
			t.Fatalf("expected 409, got %d", appErr.HTTPStatus)
		}
		if appErr.Details["owner_display_name"] != "Noa" {
			t.Errorf("expected owner in details, got %+v", appErr.Details)
		}
		if len(notifier.events) != 0 {
			t.Error("conflict must not broadcast")
		}
	})

	t.Run("conflict without a readable owner fails closed", func(t *testing.T) {
		st := &mockStore{
			acquireFn: func(_ context.Context, _ *model.Lock, _ time.Time) (*model.Lock, error) {
				return nil, lockserrors.ErrConflict
			},
		}
		svc, notifier := newTestService(t, st)

		lock, err := svc.Acquire(ctx, testIdentity, acquireReq("order-1"))
		if lock != nil {
			t.Error("ownerless conflict must not grant a lease")
		}
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", appErr.HTTPStatus)
		}
		if len(notifier.events) != 0 {
			t.Error("failure must not broadcast")
		}
	})

	t.Run("store failure acquires nothing", func(t *testing.T) {
		st := &mockStore{
			acquireFn: func(_ context.Context, _ *model.Lock, _ time.Time) (*model.Lock, error) {
				return nil, errors.New("connection refused")
			},
		}
		svc, notifier := newTestService(t, st)

		lock, err := svc.Acquire(ctx, testIdentity, acquireReq("order-1"))
		if lock != nil {
			t.Error("store failure must not grant a lease")
		}
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", appErr.HTTPStatus)
		}
		if len(notifier.events) != 0 {
			t.Error("failure must not broadcast")
		}
	})

	t.Run("invalid request is rejected before the store", func(t *testing.T) {
		st := &mockStore{
			acquireFn: func(_ context.Context, _ *model.Lock, _ time.Time) (*model.Lock, error) {
				t.Fatal("store must not be reached")
				return nil, nil
			},
		}
		svc, _ := newTestService(t, st)

		_, err := svc.Acquire(ctx, testIdentity, acquireReq("bad/id"))
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusUnprocessableEntity {
			t.Errorf("expected 422, got %d", appErr.HTTPStatus)
		}
	})
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	req := &model.RenewLockRequest{
		ResourceType: model.ResourceTypeInternalOrder,
		SessionID:    testSessionID,
	}

	t.Run("malformed path id is rejected before the store", func(t *testing.T) {
		st := &mockStore{
			renewFn: func(_ context.Context, _, _, _ string, _, _ time.Time) (*model.Lock, error) {
				t.Fatal("store must not be reached")
				return nil, nil
			},
		}
		svc, _ := newTestService(t, st)

		for _, id := range []string{"", "order/1", strings.Repeat("x", 129)} {
			if _, err := svc.Renew(ctx, id, req); apperrors.AsAppError(err).HTTPStatus != http.StatusBadRequest {
				t.Errorf("id %q: expected 400, got %v", id, err)
			}
		}
	})

	t.Run("success does not broadcast", func(t *testing.T) {
		st := &mockStore{
			renewFn: func(_ context.Context, _, resourceID, _ string, _, expiresAt time.Time) (*model.Lock, error) {
				return &model.Lock{ResourceID: resourceID, ExpiresAt: expiresAt}, nil
			},
		}
		svc, notifier := newTestService(t, st)

		lock, err := svc.Renew(ctx, "order-1", req)
		if err != nil {
			t.Fatalf("expected renewal, got %v", err)
		}
		if lock.ResourceID != "order-1" {
			t.Errorf("unexpected resource %s", lock.ResourceID)
		}
		if len(notifier.events) != 0 {
			t.Error("renewal must not broadcast")
		}
	})

	t.Run("missing lease maps to 404", func(t *testing.T) {
		st := &mockStore{
			renewFn: func(_ context.Context, _, _, _ string, _, _ time.Time) (*model.Lock, error) {
				return nil, lockserrors.ErrNotOwner
			},
			getFn: func(_ context.Context, _, _ string, _ time.Time) (*model.Lock, error) {
				return nil, lockserrors.ErrNotFound
			},
		}
		svc, _ := newTestService(t, st)

		_, err := svc.Renew(ctx, "order-1", req)
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusNotFound {
			t.Errorf("expected 404, got %d", appErr.HTTPStatus)
		}
	})

	t.Run("lease held elsewhere maps to 409", func(t *testing.T) {
		st := &mockStore{
			renewFn: func(_ context.Context, _, _, _ string, _, _ time.Time) (*model.Lock, error) {
				return nil, lockserrors.ErrNotOwner
			},
			getFn: func(_ context.Context, resourceType, resourceID string, _ time.Time) (*model.Lock, error) {
				return &model.Lock{ResourceType: resourceType, ResourceID: resourceID, OwnerUserID: "u-2", OwnerDisplayName: "Noa"}, nil
			},
		}
		svc, _ := newTestService(t, st)

		_, err := svc.Renew(ctx, "order-1", req)
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusConflict {
			t.Errorf("expected 409, got %d", appErr.HTTPStatus)
		}
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	req := &model.ReleaseLockRequest{
		ResourceType: model.ResourceTypeInternalOrder,
		SessionID:    testSessionID,
	}

	t.Run("success broadcasts resource-unlocked", func(t *testing.T) {
		st := &mockStore{
			releaseFn: func(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
				return true, nil
			},
		}
		svc, notifier := newTestService(t, st)

		if err := svc.Release(ctx, "order-1", req); err != nil {
			t.Fatalf("expected release, got %v", err)
		}
		if len(notifier.events) != 1 || notifier.events[0].Type != events.EventResourceUnlocked {
			t.Fatalf("expected one resource-unlocked broadcast, got %+v", notifier.events)
		}
	})

	t.Run("no-op release succeeds silently", func(t *testing.T) {
		st := &mockStore{
			releaseFn: func(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
				return false, nil
			},
		}
		svc, notifier := newTestService(t, st)

		if err := svc.Release(ctx, "order-1", req); err != nil {
			t.Fatalf("no-op release must succeed, got %v", err)
		}
		if len(notifier.events) != 0 {
			t.Error("no-op release must not broadcast")
		}
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		st := &mockStore{
			releaseFn: func(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
				return false, errors.New("connection refused")
			},
		}
		svc, _ := newTestService(t, st)

		err := svc.Release(ctx, "order-1", req)
		if appErr := apperrors.AsAppError(err); appErr.HTTPStatus != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", appErr.HTTPStatus)
		}
	})

	t.Run("malformed path id is rejected before the store", func(t *testing.T) {
		st := &mockStore{
			releaseFn: func(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
				t.Fatal("store must not be reached")
				return false, nil
			},
		}
		svc, _ := newTestService(t, st)

		if err := svc.Release(ctx, "order 1", req); apperrors.AsAppError(err).HTTPStatus != http.StatusBadRequest {
			t.Errorf("expected 400, got %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed id and unknown type are rejected", func(t *testing.T) {
		st := &mockStore{
			getFn: func(_ context.Context, _, _ string, _ time.Time) (*model.Lock, error) {
				t.Fatal("store must not be reached")
				return nil, nil
			},
		}
		svc, _ := newTestService(t, st)

		if _, err := svc.Status(ctx, model.ResourceTypeInternalOrder, strings.Repeat("x", 129)); apperrors.AsAppError(err).HTTPStatus != http.StatusBadRequest {
			t.Errorf("expected 400 for oversized id, got %v", err)
		}
		if _, err := svc.Status(ctx, "warehouse", "order-1"); apperrors.AsAppError(err).HTTPStatus != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown type, got %v", err)
		}
	})

	t.Run("unlocked resource", func(t *testing.T) {
		st := &mockStore{
			getFn: func(_ context.Context, _, _ string, _ time.Time) (*model.Lock, error) {
				return nil, lockserrors.ErrNotFound
			},
		}
		svc, _ := newTestService(t, st)

		status, err := svc.Status(ctx, model.ResourceTypeInternalOrder, "order-1")
		if err != nil {
			t.Fatalf("expected status, got %v", err)
		}
		if status.Locked {
			t.Error("expected unlocked status")
		}
		if status.OwnerUserID != "" || status.ExpiresAt != nil {
			t.Errorf("unlocked status must not leak owner fields: %+v", status)
		}
	})

	t.Run("locked resource carries owner and deadline", func(t *testing.T) {
		now := time.Now()
		st := &mockStore{
			getFn: func(_ context.Context, resourceType, resourceID string, _ time.Time) (*model.Lock, error) {
				return &model.Lock{
					ResourceID:       resourceID,
					ResourceType:     resourceType,
					OwnerUserID:      "u-2",
					OwnerDisplayName: "Noa",
					AcquiredAt:       now,
					ExpiresAt:        now.Add(time.Minute),
				}, nil
			},
		}
		svc, _ := newTestService(t, st)

		status, err := svc.Status(ctx, model.ResourceTypeInternalOrder, "order-1")
		if err != nil {
			t.Fatalf("expected status, got %v", err)
		}
		if !status.Locked || status.OwnerDisplayName != "Noa" || status.ExpiresAt == nil {
			t.Errorf("unexpected status %+v", status)
		}
	})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()

	st := &mockStore{
		deleteExpiredFn: func(_ context.Context, _ time.Time) ([]*model.Lock, error) {
			return []*model.Lock{
				{ResourceType: model.ResourceTypeInternalOrder, ResourceID: "order-1"},
				{ResourceType: model.ResourceTypeCustomerOrder, ResourceID: "order-2"},
			}, nil
		},
		countLiveFn: func(_ context.Context, _ time.Time) (int64, error) {
			return 0, nil
		},
	}
	svc, notifier := newTestService(t, st)

	n, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", n)
	}
	if len(notifier.events) != 2 {
		t.Fatalf("expected one unlock broadcast per reclaimed lease, got %d", len(notifier.events))
	}
	for _, ev := range notifier.events {
		if ev.Type != events.EventResourceUnlocked {
			t.Errorf("expected resource-unlocked, got %s", ev.Type)
		}
	}
}
