package service

import (
	"context"
	"errors"

	orderserrors "opsline/internal/orders/errors"
	"opsline/internal/orders/repository"
	"opsline/internal/orders/validator"
	"opsline/internal/realtime"
	"opsline/pkg/auth"
	"opsline/pkg/client"
	"opsline/pkg/config"
	apperrors "opsline/pkg/errors"
	"opsline/pkg/events"
	"opsline/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// LockSession is a lock manager client bound to one caller's credential.
type LockSession interface {
	Acquire(ctx context.Context, req *model.AcquireLockRequest) (*model.Lock, error)
	Renew(ctx context.Context, resourceID string, req *model.RenewLockRequest) (*model.Lock, error)
	Release(ctx context.Context, resourceID string, req *model.ReleaseLockRequest) error
}

// LockGateway builds a LockSession from the caller's forwarded token, so
// locks taken through this service carry the editing user's name.
type LockGateway func(token string) LockSession

// Notifier pushes dashboard updates into a user's room.
type Notifier interface {
	BroadcastToUser(userID string, event events.Event)
}

type OrderService interface {
	Create(ctx context.Context, identity auth.Identity, order *model.Order) error
	GetByID(ctx context.Context, id string) (*model.Order, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Order, int64, error)
	OpenForEdit(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error)
	CloseEdit(ctx context.Context, token, id, sessionID string) error
	Update(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error
	Delete(ctx context.Context, identity auth.Identity, token, id, sessionID string) error
}

type orderService struct {
	repo      repository.OrderRepository
	validator *validator.OrderValidator
	locks     LockGateway
	notifier  Notifier
	throttle  *realtime.Throttle
	cfg       *config.Config
}

func NewOrderService(
	repo repository.OrderRepository,
	v *validator.OrderValidator,
	locks LockGateway,
	notifier Notifier,
	throttle *realtime.Throttle,
	cfg *config.Config,
) OrderService {
	return &orderService{
		repo:      repo,
		validator: v,
		locks:     locks,
		notifier:  notifier,
		throttle:  throttle,
		cfg:       cfg,
	}
}

func (s *orderService) Create(ctx context.Context, identity auth.Identity, order *model.Order) error {
	if order.Status == "" {
		order.Status = "draft"
	}
	if err := s.validator.Validate(order); err != nil {
		return apperrors.Validation(err.Error(), nil)
	}

	if err := s.repo.Create(ctx, order); err != nil {
		s.cfg.Log.Error("Failed to create order", "error", err)
		return apperrors.Internal("Failed to create order", err)
	}

	s.cfg.Log.Info("Order created", "id", order.ID, "kind", order.Kind, "created_by", identity.UserID)
	s.pushDashboard(ctx, identity.UserID, order.ID)
	return nil
}

func (s *orderService) GetByID(ctx context.Context, id string) (*model.Order, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Order ID cannot be empty")
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(id, err)
	}
	return order, nil
}

func (s *orderService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Order, int64, error) {
	orders, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list orders", "error", err)
		return nil, 0, apperrors.Internal("Failed to list orders", err)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to count orders", "error", err)
		return nil, 0, apperrors.Internal("Failed to count orders", err)
	}
	return orders, total, nil
}

// OpenForEdit locks the order under the caller's identity. The returned lock
// carries the lease deadline the client must renew against.
func (s *orderService) OpenForEdit(ctx context.Context, token, id, sessionID string) (*model.Order, *model.Lock, error) {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	lock, err := s.locks(token).Acquire(ctx, &model.AcquireLockRequest{
		ResourceID:   order.ID,
		ResourceType: order.ResourceType(),
		SessionID:    sessionID,
	})
	if err != nil {
		return nil, nil, s.mapLockError(err)
	}
	return order, lock, nil
}

func (s *orderService) CloseEdit(ctx context.Context, token, id, sessionID string) error {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.locks(token).Release(ctx, order.ID, &model.ReleaseLockRequest{
		ResourceType: order.ResourceType(),
		SessionID:    sessionID,
	}); err != nil {
		s.cfg.Log.Warn("Failed to release edit lock", "order_id", id, "error", err)
		return s.mapLockError(err)
	}
	return nil
}

func (s *orderService) Update(ctx context.Context, identity auth.Identity, token, id, sessionID string, updates *model.OrderUpdate) error {
	if err := s.validator.ValidateUpdate(updates); err != nil {
		return apperrors.Validation(err.Error(), nil)
	}

	order, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.guardEditLock(ctx, token, order, sessionID); err != nil {
		return err
	}

	// Read-check-write runs inside one transaction so a concurrent sweep or
	// delete between our read and write cannot resurrect the order.
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		current, err := s.repo.FindByID(sessCtx, id)
		if err != nil {
			return s.mapRepoError(id, err)
		}

		applyUpdates(current, updates)
		if err := s.validator.Validate(current); err != nil {
			return apperrors.Validation(err.Error(), nil)
		}

		if err := s.repo.Update(sessCtx, id, current); err != nil {
			return s.mapRepoError(id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Order updated", "id", id, "updated_by", identity.UserID)
	s.pushDashboard(ctx, identity.UserID, id)
	return nil
}

func (s *orderService) Delete(ctx context.Context, identity auth.Identity, token, id, sessionID string) error {
	order, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.guardEditLock(ctx, token, order, sessionID); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return s.mapRepoError(id, err)
	}

	// The edit session is over; free the resource for the next editor.
	if err := s.locks(token).Release(ctx, order.ID, &model.ReleaseLockRequest{
		ResourceType: order.ResourceType(),
		SessionID:    sessionID,
	}); err != nil {
		s.cfg.Log.Warn("Failed to release lock after delete", "order_id", id, "error", err)
	}

	s.cfg.Log.Info("Order deleted", "id", id, "deleted_by", identity.UserID)
	s.pushDashboard(ctx, identity.UserID, id)
	return nil
}

// guardEditLock proves the caller still holds the edit lease. Renewing is
// the proof: it succeeds only for the owning session, and buys the editor
// time for the write that follows.
func (s *orderService) guardEditLock(ctx context.Context, token string, order *model.Order, sessionID string) error {
	if sessionID == "" {
		return apperrors.InvalidInput("session_id is required for order mutations")
	}

	_, err := s.locks(token).Renew(ctx, order.ID, &model.RenewLockRequest{
		ResourceType: order.ResourceType(),
		SessionID:    sessionID,
	})
	if err != nil {
		return apperrors.Conflict("Edit lock is not held; reopen the order for editing")
	}
	return nil
}

func (s *orderService) pushDashboard(ctx context.Context, userID, orderID string) {
	if s.notifier == nil || s.throttle == nil {
		return
	}
	if !s.throttle.Allow(userID) {
		return
	}

	open, err := s.repo.CountOpen(ctx)
	if err != nil {
		s.cfg.Log.Warn("Failed to count open orders for dashboard push", "error", err)
		return
	}

	event, err := events.NewEvent(events.EventDashboardMetrics, events.DashboardMetricsPayload{
		UserID:         userID,
		OpenOrders:     open,
		UpdatedByOrder: orderID,
	})
	if err != nil {
		s.cfg.Log.Error("Failed to build dashboard event", "error", err)
		return
	}
	s.notifier.BroadcastToUser(userID, event)
}

func (s *orderService) mapRepoError(id string, err error) error {
	switch {
	case errors.Is(err, orderserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Order", id)
	case errors.Is(err, orderserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid order ID: " + id)
	default:
		s.cfg.Log.Error("Order repository failure", "id", id, "error", err)
		return apperrors.Internal("Order storage failure", err)
	}
}

func (s *orderService) mapLockError(err error) error {
	var held *client.LockHeldError
	if errors.As(err, &held) {
		return apperrors.LockConflict(held.OwnerUserID, held.OwnerDisplayName)
	}
	return apperrors.Conflict(err.Error())
}

func applyUpdates(order *model.Order, updates *model.OrderUpdate) {
	if updates.CustomerName != "" {
		order.CustomerName = updates.CustomerName
	}
	if updates.Items != nil {
		order.Items = *updates.Items
	}
	if updates.Status != "" {
		order.Status = updates.Status
	}
	if updates.Notes != nil {
		order.Notes = *updates.Notes
	}
}
