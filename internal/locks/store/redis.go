package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/pkg/model"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// redisLock is the wire form stored in Redis. Deadlines are millisecond
// epochs so the Lua scripts can compare them numerically.
type redisLock struct {
	ResourceID       string `json:"resource_id"`
	ResourceType     string `json:"resource_type"`
	OwnerUserID      string `json:"owner_user_id"`
	OwnerDisplayName string `json:"owner_display_name"`
	OwnerSessionID   string `json:"owner_session_id"`
	AcquiredAtMS     int64  `json:"acquired_at_ms"`
	LastRenewedAtMS  int64  `json:"last_renewed_at_ms"`
	ExpiresAtMS      int64  `json:"expires_at_ms"`
}

func toRedisLock(l *model.Lock) redisLock {
	return redisLock{
		ResourceID:       l.ResourceID,
		ResourceType:     l.ResourceType,
		OwnerUserID:      l.OwnerUserID,
		OwnerDisplayName: l.OwnerDisplayName,
		OwnerSessionID:   l.OwnerSessionID,
		AcquiredAtMS:     l.AcquiredAt.UnixMilli(),
		LastRenewedAtMS:  l.LastRenewedAt.UnixMilli(),
		ExpiresAtMS:      l.ExpiresAt.UnixMilli(),
	}
}

func (rl redisLock) toModel() *model.Lock {
	return &model.Lock{
		ResourceID:       rl.ResourceID,
		ResourceType:     rl.ResourceType,
		OwnerUserID:      rl.OwnerUserID,
		OwnerDisplayName: rl.OwnerDisplayName,
		OwnerSessionID:   rl.OwnerSessionID,
		AcquiredAt:       time.UnixMilli(rl.AcquiredAtMS),
		LastRenewedAt:    time.UnixMilli(rl.LastRenewedAtMS),
		ExpiresAt:        time.UnixMilli(rl.ExpiresAtMS),
	}
}

// acquireScript installs ARGV[1] unless a live lock by a different session
// exists; on conflict it returns the current record.
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local t = cjson.decode(cur)
	if tonumber(t.expires_at_ms) > tonumber(ARGV[2]) and t.owner_session_id ~= ARGV[3] then
		return cur
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[4])
return ""
`)

var renewScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return ""
end
local t = cjson.decode(cur)
if tonumber(t.expires_at_ms) <= tonumber(ARGV[1]) or t.owner_session_id ~= ARGV[2] then
	return ""
end
if tonumber(ARGV[3]) > tonumber(t.expires_at_ms) then
	t.expires_at_ms = tonumber(ARGV[3])
end
t.last_renewed_at_ms = tonumber(ARGV[1])
local enc = cjson.encode(t)
redis.call("SET", KEYS[1], enc, "PX", ARGV[4])
return enc
`)

var releaseScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return 0
end
local t = cjson.decode(cur)
if tonumber(t.expires_at_ms) > tonumber(ARGV[1]) and t.owner_session_id == ARGV[2] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

var reclaimScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return ""
end
local t = cjson.decode(cur)
if tonumber(t.expires_at_ms) <= tonumber(ARGV[1]) then
	redis.call("DEL", KEYS[1])
	return cur
end
return ""
`)

// Redis backs the lock store with a shared Redis instance, letting several
// application processes share one lock authority. Records carry a PX expiry
// so Redis bounds storage on its own.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(resourceType, resourceID string) string {
	return redisKeyPrefix + resourceType + ":" + resourceID
}

func (r *Redis) Acquire(ctx context.Context, lock *model.Lock, now time.Time) (*model.Lock, error) {
	payload, err := json.Marshal(toRedisLock(lock))
	if err != nil {
		return nil, err
	}

	ttl := lock.ExpiresAt.Sub(now).Milliseconds()
	if ttl <= 0 {
		return nil, fmt.Errorf("lock expiry must be in the future")
	}

	res, err := acquireScript.Run(ctx, r.client,
		[]string{redisKey(lock.ResourceType, lock.ResourceID)},
		string(payload), now.UnixMilli(), lock.OwnerSessionID, ttl,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("redis acquire: %w", err)
	}

	if res != "" {
		var cur redisLock
		if err := json.Unmarshal([]byte(res), &cur); err != nil {
			return nil, fmt.Errorf("redis acquire: decode current owner: %w", err)
		}
		return cur.toModel(), lockserrors.ErrConflict
	}

	stored := *lock
	return &stored, nil
}

func (r *Redis) Renew(ctx context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error) {
	ttl := expiresAt.Sub(now).Milliseconds()
	if ttl <= 0 {
		return nil, fmt.Errorf("lock expiry must be in the future")
	}

	res, err := renewScript.Run(ctx, r.client,
		[]string{redisKey(resourceType, resourceID)},
		now.UnixMilli(), sessionID, expiresAt.UnixMilli(), ttl,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("redis renew: %w", err)
	}
	if res == "" {
		return nil, lockserrors.ErrNotOwner
	}

	var updated redisLock
	if err := json.Unmarshal([]byte(res), &updated); err != nil {
		return nil, fmt.Errorf("redis renew: decode: %w", err)
	}
	return updated.toModel(), nil
}

func (r *Redis) Release(ctx context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error) {
	res, err := releaseScript.Run(ctx, r.client,
		[]string{redisKey(resourceType, resourceID)},
		now.UnixMilli(), sessionID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis release: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Get(ctx context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error) {
	raw, err := r.client.Get(ctx, redisKey(resourceType, resourceID)).Result()
	if err == redis.Nil {
		return nil, lockserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rl redisLock
	if err := json.Unmarshal([]byte(raw), &rl); err != nil {
		return nil, fmt.Errorf("redis get: decode: %w", err)
	}

	lock := rl.toModel()
	if lock.Expired(now) {
		return nil, lockserrors.ErrNotFound
	}
	return lock, nil
}

func (r *Redis) List(ctx context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error) {
	live, err := r.scanLive(ctx, now)
	if err != nil {
		return nil, 0, err
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

func (r *Redis) DeleteExpired(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	// Redis PX expiry normally removes these on its own; this only catches
	// records written with a longer TTL than their lease.
	var reclaimed []*model.Lock

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		res, err := reclaimScript.Run(ctx, r.client, []string{iter.Val()}, now.UnixMilli()).Text()
		if err != nil {
			return reclaimed, fmt.Errorf("redis sweep: %w", err)
		}
		if res == "" {
			continue
		}
		var rl redisLock
		if err := json.Unmarshal([]byte(res), &rl); err != nil {
			continue
		}
		reclaimed = append(reclaimed, rl.toModel())
	}
	if err := iter.Err(); err != nil {
		return reclaimed, fmt.Errorf("redis sweep scan: %w", err)
	}
	return reclaimed, nil
}

func (r *Redis) CountLive(ctx context.Context, now time.Time) (int64, error) {
	live, err := r.scanLive(ctx, now)
	if err != nil {
		return 0, err
	}
	return int64(len(live)), nil
}

func (r *Redis) scanLive(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	var live []*model.Lock

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		var rl redisLock
		if err := json.Unmarshal([]byte(raw), &rl); err != nil {
			continue
		}
		lock := rl.toModel()
		if !lock.Expired(now) {
			live = append(live, lock)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return live, nil
}
