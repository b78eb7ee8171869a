package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	orderserrors "opsline/internal/orders/errors"
	"opsline/pkg/config"
	mongotx "opsline/pkg/db/mongo"
	"opsline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Orders"

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Order, error)
	Update(ctx context.Context, id string, order *model.Order) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	CountOpen(ctx context.Context) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoOrderRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoOrderRepository(cfg *config.Config) OrderRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOrderRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// notDeleted scopes every read to live records. Deleted orders keep their
// documents for auditability.
func notDeleted() bson.M {
	return bson.M{"deleted_at": bson.M{"$exists": false}}
}

func (r *mongoOrderRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoOrderRepository) Create(ctx context.Context, order *model.Order) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	order.CreatedAt = now
	order.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		order.ID = oid.Hex()
	}
	return nil
}

func (r *mongoOrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", orderserrors.ErrInvalidID, id)
	}

	filter := notDeleted()
	filter["_id"] = objectID

	var order model.Order
	err = r.collection.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, orderserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

func (r *mongoOrderRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Order, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, notDeleted(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := []*model.Order{}
	for cursor.Next(ctx) {
		var order model.Order
		if err := cursor.Decode(&order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("order cursor failed: %w", err)
	}
	return orders, nil
}

func (r *mongoOrderRepository) Update(ctx context.Context, id string, order *model.Order) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", orderserrors.ErrInvalidID, id)
	}

	order.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	filter := notDeleted()
	filter["_id"] = objectID

	update := bson.M{"$set": bson.M{
		"customer_name": order.CustomerName,
		"items":         order.Items,
		"status":        order.Status,
		"notes":         order.Notes,
		"updated_at":    order.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if result.MatchedCount == 0 {
		return orderserrors.ErrNotFound
	}
	return nil
}

func (r *mongoOrderRepository) SoftDelete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", orderserrors.ErrInvalidID, id)
	}

	filter := notDeleted()
	filter["_id"] = objectID

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"deleted_at": time.Now().UTC().Truncate(time.Millisecond)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if result.MatchedCount == 0 {
		return orderserrors.ErrNotFound
	}
	return nil
}

func (r *mongoOrderRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, notDeleted())
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

func (r *mongoOrderRepository) CountOpen(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := notDeleted()
	filter["status"] = bson.M{"$nin": bson.A{"done", "cancelled"}}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}

func (r *mongoOrderRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
