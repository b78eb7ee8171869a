package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/pkg/model"
)

const shardCount = 32

type shard struct {
	mu    sync.Mutex
	locks map[string]*model.Lock
}

// Memory is the single-process lock store. Keys are sharded so contention on
// one resource never serializes operations on another.
type Memory struct {
	shards [shardCount]*shard
}

func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i] = &shard{locks: make(map[string]*model.Lock)}
	}
	return m
}

func lockKey(resourceType, resourceID string) string {
	return resourceType + "/" + resourceID
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Memory) Acquire(_ context.Context, lock *model.Lock, now time.Time) (*model.Lock, error) {
	key := lockKey(lock.ResourceType, lock.ResourceID)
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.locks[key]; ok && !cur.Expired(now) && !cur.OwnedBy(lock.OwnerSessionID) {
		snapshot := *cur
		return &snapshot, lockserrors.ErrConflict
	}

	stored := *lock
	s.locks[key] = &stored

	result := stored
	return &result, nil
}

func (m *Memory) Renew(_ context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error) {
	key := lockKey(resourceType, resourceID)
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[key]
	if !ok || cur.Expired(now) || !cur.OwnedBy(sessionID) {
		return nil, lockserrors.ErrNotOwner
	}

	// The deadline only ever moves forward.
	if expiresAt.After(cur.ExpiresAt) {
		cur.ExpiresAt = expiresAt
	}
	cur.LastRenewedAt = now

	snapshot := *cur
	return &snapshot, nil
}

func (m *Memory) Release(_ context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error) {
	key := lockKey(resourceType, resourceID)
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[key]
	if !ok || cur.Expired(now) || !cur.OwnedBy(sessionID) {
		return false, nil
	}

	delete(s.locks, key)
	return true, nil
}

func (m *Memory) Get(_ context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error) {
	key := lockKey(resourceType, resourceID)
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[key]
	if !ok || cur.Expired(now) {
		return nil, lockserrors.ErrNotFound
	}

	snapshot := *cur
	return &snapshot, nil
}

func (m *Memory) List(_ context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error) {
	var live []*model.Lock
	for _, s := range m.shards {
		s.mu.Lock()
		for _, l := range s.locks {
			if !l.Expired(now) {
				snapshot := *l
				live = append(live, &snapshot)
			}
		}
		s.mu.Unlock()
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].AcquiredAt.Before(live[j].AcquiredAt)
	})

	total := int64(len(live))
	if offset >= total {
		return []*model.Lock{}, total, nil
	}
	end := offset + int64(limit)
	if end > total {
		end = total
	}
	return live[offset:end], total, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) ([]*model.Lock, error) {
	var reclaimed []*model.Lock
	for _, s := range m.shards {
		s.mu.Lock()
		for key, l := range s.locks {
			if l.Expired(now) {
				snapshot := *l
				reclaimed = append(reclaimed, &snapshot)
				delete(s.locks, key)
			}
		}
		s.mu.Unlock()
	}
	return reclaimed, nil
}

func (m *Memory) CountLive(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for _, s := range m.shards {
		s.mu.Lock()
		for _, l := range s.locks {
			if !l.Expired(now) {
				count++
			}
		}
		s.mu.Unlock()
	}
	return count, nil
}
