package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "ResourceLocks"

// Mongo backs the lock store with a shared MongoDB collection. A unique index
// on (resource_type, resource_id) plus conditional upserts make acquire an
// atomic compare-and-swap.
type Mongo struct {
	collection *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{collection: db.Collection(CollectionName)}
}

// EnsureIndexes creates the unique resource key index. Call once at startup.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "resource_type", Value: 1},
			{Key: "resource_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create lock index: %w", err)
	}
	return nil
}

func (m *Mongo) Acquire(ctx context.Context, lock *model.Lock, now time.Time) (*model.Lock, error) {
	// The filter matches only when the slot is reclaimable: record expired or
	// already ours. A live foreign lock fails the filter, the upsert then
	// trips the unique index, and that duplicate key is our conflict signal.
	filter := bson.M{
		"resource_type": lock.ResourceType,
		"resource_id":   lock.ResourceID,
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$lte": now}},
			bson.M{"owner_session_id": lock.OwnerSessionID},
		},
	}

	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.After)

	for attempt := 0; attempt < 2; attempt++ {
		var stored model.Lock
		err := m.collection.FindOneAndReplace(ctx, filter, lock, opts).Decode(&stored)
		if err == nil {
			return &stored, nil
		}

		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("mongo acquire: %w", err)
		}

		// A live record owned by someone else blocked the upsert.
		cur, getErr := m.Get(ctx, lock.ResourceType, lock.ResourceID, now)
		if getErr == nil {
			return cur, lockserrors.ErrConflict
		}
		// The blocker expired or was released between our write and read;
		// one more attempt settles it.
	}

	// Both attempts hit a duplicate key yet no live owner was readable.
	// Without an owner to report this is contention, not a conflict; the
	// caller treats it as a store failure and never grants a lease.
	return nil, fmt.Errorf("mongo acquire: contended upsert on %s/%s", lock.ResourceType, lock.ResourceID)
}

func (m *Mongo) Renew(ctx context.Context, resourceType, resourceID, sessionID string, now, expiresAt time.Time) (*model.Lock, error) {
	filter := bson.M{
		"resource_type":    resourceType,
		"resource_id":      resourceID,
		"owner_session_id": sessionID,
		"expires_at":       bson.M{"$gt": now},
	}
	// $max keeps the deadline monotonic even under overlapping renews.
	update := bson.M{
		"$max": bson.M{"expires_at": expiresAt},
		"$set": bson.M{"last_renewed_at": now},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated model.Lock
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, lockserrors.ErrNotOwner
	}
	if err != nil {
		return nil, fmt.Errorf("mongo renew: %w", err)
	}
	return &updated, nil
}

func (m *Mongo) Release(ctx context.Context, resourceType, resourceID, sessionID string, now time.Time) (bool, error) {
	res, err := m.collection.DeleteOne(ctx, bson.M{
		"resource_type":    resourceType,
		"resource_id":      resourceID,
		"owner_session_id": sessionID,
		"expires_at":       bson.M{"$gt": now},
	})
	if err != nil {
		return false, fmt.Errorf("mongo release: %w", err)
	}
	return res.DeletedCount == 1, nil
}

func (m *Mongo) Get(ctx context.Context, resourceType, resourceID string, now time.Time) (*model.Lock, error) {
	var lock model.Lock
	err := m.collection.FindOne(ctx, bson.M{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}).Decode(&lock)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, lockserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get: %w", err)
	}

	if lock.Expired(now) {
		return nil, lockserrors.ErrNotFound
	}
	return &lock, nil
}

func (m *Mongo) List(ctx context.Context, now time.Time, limit int, offset int64) ([]*model.Lock, int64, error) {
	filter := bson.M{"expires_at": bson.M{"$gt": now}}

	total, err := m.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo list count: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "acquired_at", Value: 1}}).
		SetSkip(offset).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo list: %w", err)
	}
	defer cursor.Close(ctx)

	locks := []*model.Lock{}
	for cursor.Next(ctx) {
		var lock model.Lock
		if err := cursor.Decode(&lock); err != nil {
			return nil, 0, fmt.Errorf("mongo list decode: %w", err)
		}
		locks = append(locks, &lock)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("mongo list cursor: %w", err)
	}

	return locks, total, nil
}

func (m *Mongo) DeleteExpired(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}

	cursor, err := m.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo sweep find: %w", err)
	}

	var reclaimed []*model.Lock
	for cursor.Next(ctx) {
		var lock model.Lock
		if err := cursor.Decode(&lock); err != nil {
			continue
		}
		reclaimed = append(reclaimed, &lock)
	}
	cursor.Close(ctx)

	// Delete by the same expiry predicate so a record reclaimed by a fresh
	// acquire in the meantime is left alone.
	if _, err := m.collection.DeleteMany(ctx, filter); err != nil {
		return reclaimed, fmt.Errorf("mongo sweep delete: %w", err)
	}
	return reclaimed, nil
}

func (m *Mongo) CountLive(ctx context.Context, now time.Time) (int64, error) {
	count, err := m.collection.CountDocuments(ctx, bson.M{"expires_at": bson.M{"$gt": now}})
	if err != nil {
		return 0, fmt.Errorf("mongo count: %w", err)
	}
	return count, nil
}
