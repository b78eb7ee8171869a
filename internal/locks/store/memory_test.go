package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/pkg/model"
)

func testLock(resourceID, sessionID string, now time.Time, ttl time.Duration) *model.Lock {
	return &model.Lock{
		ResourceID:       resourceID,
		ResourceType:     model.ResourceTypeInternalOrder,
		OwnerUserID:      "user-" + sessionID,
		OwnerDisplayName: "User " + sessionID,
		OwnerSessionID:   sessionID,
		AcquiredAt:       now,
		LastRenewedAt:    now,
		ExpiresAt:        now.Add(ttl),
	}
}

func TestMemoryAcquire(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("acquires a free resource", func(t *testing.T) {
		s := NewMemory()
		got, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.OwnerSessionID != "sess-a" {
			t.Errorf("expected owner sess-a, got %s", got.OwnerSessionID)
		}
	})

	t.Run("rejects a second session while the lease is live", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		got, err := s.Acquire(ctx, testLock("order-1", "sess-b", now, time.Minute), now)
		if !errors.Is(err, lockserrors.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if got == nil || got.OwnerSessionID != "sess-a" {
			t.Errorf("conflict should report the current owner, got %+v", got)
		}
	})

	t.Run("re-acquire by the same session succeeds", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		later := now.Add(10 * time.Second)
		got, err := s.Acquire(ctx, testLock("order-1", "sess-a", later, time.Minute), later)
		if err != nil {
			t.Fatalf("expected idempotent re-acquire, got %v", err)
		}
		if !got.ExpiresAt.Equal(later.Add(time.Minute)) {
			t.Errorf("re-acquire should refresh the deadline, got %v", got.ExpiresAt)
		}
	})

	t.Run("expired lease is claimable by anyone", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		after := now.Add(2 * time.Minute)
		got, err := s.Acquire(ctx, testLock("order-1", "sess-b", after, time.Minute), after)
		if err != nil {
			t.Fatalf("expected takeover of expired lease, got %v", err)
		}
		if got.OwnerSessionID != "sess-b" {
			t.Errorf("expected new owner sess-b, got %s", got.OwnerSessionID)
		}
	})

	t.Run("lease expiring exactly now is claimable", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		boundary := now.Add(time.Minute)
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-b", boundary, time.Minute), boundary); err != nil {
			t.Fatalf("expected acquire at the expiry instant, got %v", err)
		}
	})
}

func TestMemoryAcquireMutualExclusion(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()

	const contenders = 32
	var wg sync.WaitGroup
	winners := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess := string(rune('a' + n%26))
			if _, err := s.Acquire(ctx, testLock("order-1", "sess-"+sess, now, time.Minute), now); err == nil {
				winners <- sess
			}
		}(i)
	}
	wg.Wait()
	close(winners)

	distinct := map[string]bool{}
	for w := range winners {
		distinct[w] = true
	}
	if len(distinct) != 1 {
		t.Fatalf("expected exactly one winning session, got %d", len(distinct))
	}
}

func TestMemoryRenew(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("owner extends the lease", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		renewAt := now.Add(30 * time.Second)
		got, err := s.Renew(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", renewAt, renewAt.Add(time.Minute))
		if err != nil {
			t.Fatalf("expected renewal, got %v", err)
		}
		if !got.ExpiresAt.Equal(renewAt.Add(time.Minute)) {
			t.Errorf("expected deadline %v, got %v", renewAt.Add(time.Minute), got.ExpiresAt)
		}
		if !got.LastRenewedAt.Equal(renewAt) {
			t.Errorf("expected last renewed %v, got %v", renewAt, got.LastRenewedAt)
		}
	})

	t.Run("deadline never moves backward", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, 10*time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		renewAt := now.Add(time.Second)
		got, err := s.Renew(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", renewAt, renewAt.Add(time.Minute))
		if err != nil {
			t.Fatalf("expected renewal, got %v", err)
		}
		if !got.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
			t.Errorf("shorter renewal must not shrink the deadline, got %v", got.ExpiresAt)
		}
	})

	t.Run("non-owner cannot renew", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		_, err := s.Renew(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-b", now, now.Add(time.Minute))
		if !errors.Is(err, lockserrors.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("expired lease cannot be renewed", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		after := now.Add(2 * time.Minute)
		_, err := s.Renew(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", after, after.Add(time.Minute))
		if !errors.Is(err, lockserrors.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner for expired lease, got %v", err)
		}
	})

	t.Run("missing lease cannot be renewed", func(t *testing.T) {
		s := NewMemory()
		_, err := s.Renew(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", now, now.Add(time.Minute))
		if !errors.Is(err, lockserrors.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})
}

func TestMemoryRelease(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("owner releases and the resource becomes free", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		released, err := s.Release(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", now)
		if err != nil {
			t.Fatalf("expected release, got %v", err)
		}
		if !released {
			t.Error("expected released=true")
		}

		if _, err := s.Acquire(ctx, testLock("order-1", "sess-b", now, time.Minute), now); err != nil {
			t.Fatalf("resource should be free after release, got %v", err)
		}
	})

	t.Run("release of an unheld lease is a no-op", func(t *testing.T) {
		s := NewMemory()
		released, err := s.Release(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-a", now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if released {
			t.Error("expected released=false for missing lease")
		}
	})

	t.Run("release by a non-owner does not disturb the lease", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		released, err := s.Release(ctx, model.ResourceTypeInternalOrder, "order-1", "sess-b", now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if released {
			t.Error("non-owner release must not report success")
		}

		if _, err := s.Get(ctx, model.ResourceTypeInternalOrder, "order-1", now); err != nil {
			t.Errorf("lease should survive a foreign release, got %v", err)
		}
	})
}

func TestMemoryGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("returns the live lease", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		got, err := s.Get(ctx, model.ResourceTypeInternalOrder, "order-1", now)
		if err != nil {
			t.Fatalf("expected lease, got %v", err)
		}
		if got.OwnerUserID != "user-sess-a" {
			t.Errorf("unexpected owner %s", got.OwnerUserID)
		}
	})

	t.Run("missing lease", func(t *testing.T) {
		s := NewMemory()
		_, err := s.Get(ctx, model.ResourceTypeInternalOrder, "order-1", now)
		if !errors.Is(err, lockserrors.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("expired lease reads as missing", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.Acquire(ctx, testLock("order-1", "sess-a", now, time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}

		_, err := s.Get(ctx, model.ResourceTypeInternalOrder, "order-1", now.Add(2*time.Minute))
		if !errors.Is(err, lockserrors.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryListAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemory()

	// Three live leases and two already expired.
	for _, id := range []string{"order-1", "order-2", "order-3"} {
		if _, err := s.Acquire(ctx, testLock(id, "sess-"+id, now, 10*time.Minute), now); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}
	}
	for _, id := range []string{"stale-1", "stale-2"} {
		if _, err := s.Acquire(ctx, testLock(id, "sess-"+id, now.Add(-time.Hour), time.Minute), now.Add(-time.Hour)); err != nil {
			t.Fatalf("setup acquire failed: %v", err)
		}
	}

	locks, total, err := s.List(ctx, now, 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(locks) != 3 {
		t.Fatalf("expected 3 live leases, got total=%d len=%d", total, len(locks))
	}

	locks, total, err = s.List(ctx, now, 2, 1)
	if err != nil {
		t.Fatalf("paginated list failed: %v", err)
	}
	if total != 3 || len(locks) != 2 {
		t.Fatalf("expected page of 2 out of 3, got total=%d len=%d", total, len(locks))
	}

	count, err := s.CountLive(ctx, now)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 live leases, got %d", count)
	}

	reclaimed, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(reclaimed) != 2 {
		t.Fatalf("expected 2 reclaimed leases, got %d", len(reclaimed))
	}

	count, err = s.CountLive(ctx, now)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("sweep must not touch live leases, got %d", count)
	}
}
