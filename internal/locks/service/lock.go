package service

import (
	"context"
	"errors"
	"time"

	lockserrors "opsline/internal/locks/errors"
	"opsline/internal/locks/store"
	"opsline/internal/locks/validator"
	"opsline/pkg/auth"
	"opsline/pkg/config"
	apperrors "opsline/pkg/errors"
	"opsline/pkg/events"
	"opsline/pkg/kafka"
	"opsline/pkg/metrics"
	"opsline/pkg/model"
)

// Notifier pushes lock transitions to connected clients.
type Notifier interface {
	BroadcastToAll(event events.Event)
}

// AuditPublisher records lock transitions on the audit stream. Optional.
type AuditPublisher interface {
	PublishEvent(ctx context.Context, eventType, resourceKey string, payload any) error
}

type LockService interface {
	Acquire(ctx context.Context, identity auth.Identity, req *model.AcquireLockRequest) (*model.Lock, error)
	Renew(ctx context.Context, resourceID string, req *model.RenewLockRequest) (*model.Lock, error)
	Release(ctx context.Context, resourceID string, req *model.ReleaseLockRequest) error
	Status(ctx context.Context, resourceType, resourceID string) (*model.LockStatus, error)
	List(ctx context.Context, limit int, offset int64) ([]*model.Lock, int64, error)
	Sweep(ctx context.Context) (int, error)
}

type lockService struct {
	store     store.Store
	validator *validator.LockValidator
	notifier  Notifier
	audit     AuditPublisher
	metrics   *metrics.Metrics
	cfg       *config.Config
	now       func() time.Time
}

func NewLockService(
	st store.Store,
	v *validator.LockValidator,
	notifier Notifier,
	audit AuditPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
) LockService {
	return &lockService{
		store:     st,
		validator: v,
		notifier:  notifier,
		audit:     audit,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *lockService) Acquire(ctx context.Context, identity auth.Identity, req *model.AcquireLockRequest) (*model.Lock, error) {
	if err := s.validator.ValidateAcquire(req); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	now := s.now().UTC()
	candidate := &model.Lock{
		ResourceID:       req.ResourceID,
		ResourceType:     req.ResourceType,
		OwnerUserID:      identity.UserID,
		OwnerDisplayName: identity.DisplayName,
		OwnerSessionID:   req.SessionID,
		AcquiredAt:       now,
		LastRenewedAt:    now,
		ExpiresAt:        now.Add(s.cfg.LeaseDuration),
	}

	start := s.now()
	lock, err := s.store.Acquire(ctx, candidate, now)
	s.observeLatency("acquire", start)

	if errors.Is(err, lockserrors.ErrConflict) && lock != nil {
		s.countAcquire("conflict")
		s.cfg.Log.Info("Lock acquire rejected",
			"resource_type", req.ResourceType,
			"resource_id", req.ResourceID,
			"requested_by", identity.UserID,
			"held_by", lock.OwnerUserID,
		)
		return lock, apperrors.LockConflict(lock.OwnerUserID, lock.OwnerDisplayName)
	}
	if err != nil {
		// Store failures never grant a lease.
		s.countAcquire("error")
		s.cfg.Log.Error("Lock store unavailable during acquire",
			"resource_type", req.ResourceType,
			"resource_id", req.ResourceID,
			"error", err,
		)
		return nil, apperrors.Unavailable("Lock store")
	}

	s.countAcquire("success")
	s.broadcast(events.EventResourceLocked, events.LockedPayload(lock))
	s.publishAudit(ctx, kafka.EventLockAcquired, lock)

	s.cfg.Log.Info("Lock acquired",
		"resource_type", lock.ResourceType,
		"resource_id", lock.ResourceID,
		"owner", lock.OwnerUserID,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

func (s *lockService) Renew(ctx context.Context, resourceID string, req *model.RenewLockRequest) (*model.Lock, error) {
	if err := s.validator.ValidateResourceID(resourceID); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.validator.ValidateRenew(req); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	now := s.now().UTC()

	start := s.now()
	lock, err := s.store.Renew(ctx, req.ResourceType, resourceID, req.SessionID, now, now.Add(s.cfg.LeaseDuration))
	s.observeLatency("renew", start)

	if errors.Is(err, lockserrors.ErrNotOwner) {
		s.countRenew("rejected")
		return nil, s.renewRejection(ctx, req.ResourceType, resourceID, now)
	}
	if err != nil {
		s.countRenew("error")
		s.cfg.Log.Error("Lock store unavailable during renew",
			"resource_type", req.ResourceType,
			"resource_id", resourceID,
			"error", err,
		)
		return nil, apperrors.Unavailable("Lock store")
	}

	s.countRenew("success")
	s.publishAudit(ctx, kafka.EventLockRenewed, lock)
	return lock, nil
}

// renewRejection distinguishes an evaporated lease from one held elsewhere.
func (s *lockService) renewRejection(ctx context.Context, resourceType, resourceID string, now time.Time) error {
	cur, err := s.store.Get(ctx, resourceType, resourceID, now)
	if errors.Is(err, lockserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Lock", resourceID)
	}
	if err != nil {
		return apperrors.Unavailable("Lock store")
	}
	return apperrors.LockConflict(cur.OwnerUserID, cur.OwnerDisplayName)
}

func (s *lockService) Release(ctx context.Context, resourceID string, req *model.ReleaseLockRequest) error {
	if err := s.validator.ValidateResourceID(resourceID); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if err := s.validator.ValidateRelease(req); err != nil {
		return apperrors.Validation(err.Error(), nil)
	}

	now := s.now().UTC()

	start := s.now()
	released, err := s.store.Release(ctx, req.ResourceType, resourceID, req.SessionID, now)
	s.observeLatency("release", start)

	if err != nil {
		// Releasing is best effort for the caller but the failure is ours to
		// surface; the lease will still lapse on its own.
		s.countRelease("error")
		s.cfg.Log.Error("Lock store unavailable during release",
			"resource_type", req.ResourceType,
			"resource_id", resourceID,
			"error", err,
		)
		return apperrors.Unavailable("Lock store")
	}

	if !released {
		s.countRelease("noop")
		return nil
	}

	s.countRelease("success")
	s.broadcast(events.EventResourceUnlocked, events.UnlockedPayload(req.ResourceType, resourceID))
	s.publishAudit(ctx, kafka.EventLockReleased, &model.Lock{
		ResourceID:     resourceID,
		ResourceType:   req.ResourceType,
		OwnerSessionID: req.SessionID,
	})

	s.cfg.Log.Info("Lock released",
		"resource_type", req.ResourceType,
		"resource_id", resourceID,
	)
	return nil
}

func (s *lockService) Status(ctx context.Context, resourceType, resourceID string) (*model.LockStatus, error) {
	if err := s.validator.ValidateResourceID(resourceID); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if err := s.validator.ValidateResourceType(resourceType); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	lock, err := s.store.Get(ctx, resourceType, resourceID, s.now().UTC())
	if errors.Is(err, lockserrors.ErrNotFound) {
		return &model.LockStatus{
			Locked:       false,
			ResourceID:   resourceID,
			ResourceType: resourceType,
		}, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable("Lock store")
	}

	acquired := lock.AcquiredAt
	expires := lock.ExpiresAt
	return &model.LockStatus{
		Locked:           true,
		ResourceID:       lock.ResourceID,
		ResourceType:     lock.ResourceType,
		OwnerUserID:      lock.OwnerUserID,
		OwnerDisplayName: lock.OwnerDisplayName,
		AcquiredAt:       &acquired,
		ExpiresAt:        &expires,
	}, nil
}

func (s *lockService) List(ctx context.Context, limit int, offset int64) ([]*model.Lock, int64, error) {
	locks, total, err := s.store.List(ctx, s.now().UTC(), limit, offset)
	if err != nil {
		return nil, 0, apperrors.Unavailable("Lock store")
	}
	return locks, total, nil
}

// Sweep removes expired records and announces each reclaimed resource.
// Correctness never depends on it running; reads already treat expired
// records as absent.
func (s *lockService) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	reclaimed, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return len(reclaimed), err
	}

	for _, lock := range reclaimed {
		s.broadcast(events.EventResourceUnlocked, events.UnlockedPayload(lock.ResourceType, lock.ResourceID))
		s.publishAudit(ctx, kafka.EventLockExpired, lock)
	}

	if s.metrics != nil {
		s.metrics.SweptTotal.Add(float64(len(reclaimed)))
		if live, err := s.store.CountLive(ctx, now); err == nil {
			s.metrics.LocksHeld.Set(float64(live))
		}
	}
	return len(reclaimed), nil
}

func (s *lockService) broadcast(eventType string, payload events.LockEventPayload) {
	if s.notifier == nil {
		return
	}
	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		s.cfg.Log.Error("Failed to build broadcast event", "event", eventType, "error", err)
		return
	}
	s.notifier.BroadcastToAll(event)
	if s.metrics != nil {
		s.metrics.Broadcasts.WithLabelValues(eventType).Inc()
	}
}

func (s *lockService) publishAudit(ctx context.Context, eventType string, lock *model.Lock) {
	if s.audit == nil {
		return
	}
	key := lock.ResourceType + "/" + lock.ResourceID
	if err := s.audit.PublishEvent(ctx, eventType, key, lock); err != nil {
		// The audit stream is an observer, not a participant.
		s.cfg.Log.Warn("Failed to publish audit event", "event", eventType, "resource", key, "error", err)
	}
}

func (s *lockService) countAcquire(result string) {
	if s.metrics != nil {
		s.metrics.AcquireTotal.WithLabelValues(result).Inc()
	}
}

func (s *lockService) countRenew(result string) {
	if s.metrics != nil {
		s.metrics.RenewTotal.WithLabelValues(result).Inc()
	}
}

func (s *lockService) countRelease(result string) {
	if s.metrics != nil {
		s.metrics.ReleaseTotal.WithLabelValues(result).Inc()
	}
}

func (s *lockService) observeLatency(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(s.now().Sub(start).Milliseconds()))
	}
}
