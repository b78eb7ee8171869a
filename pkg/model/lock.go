package model

import "time"

// Lock is the ephemeral record of an exclusive edit lease on one resource.
// Ownership is per session, not per user: two tabs of the same operator
// compete like strangers.
type Lock struct {
	ResourceID       string    `json:"resource_id" bson:"resource_id"`
	ResourceType     string    `json:"resource_type" bson:"resource_type"`
	OwnerUserID      string    `json:"owner_user_id" bson:"owner_user_id"`
	OwnerDisplayName string    `json:"owner_display_name" bson:"owner_display_name"`
	OwnerSessionID   string    `json:"owner_session_id" bson:"owner_session_id"`
	AcquiredAt       time.Time `json:"acquired_at" bson:"acquired_at"`
	LastRenewedAt    time.Time `json:"last_renewed_at" bson:"last_renewed_at"`
	ExpiresAt        time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the lease deadline has passed. A lock past its
// deadline is logically absent even if no sweeper has removed it yet.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// OwnedBy reports whether the given session holds this lock.
func (l *Lock) OwnedBy(sessionID string) bool {
	return l.OwnerSessionID == sessionID
}

type AcquireLockRequest struct {
	ResourceID   string `json:"resource_id" validate:"required,resource_id"`
	ResourceType string `json:"resource_type" validate:"required,resource_type"`
	SessionID    string `json:"session_id" validate:"required,uuid4"`
}

type RenewLockRequest struct {
	ResourceType string `json:"resource_type" validate:"required,resource_type"`
	SessionID    string `json:"session_id" validate:"required,uuid4"`
}

type ReleaseLockRequest struct {
	ResourceType string `json:"resource_type" validate:"required,resource_type"`
	SessionID    string `json:"session_id" validate:"required,uuid4"`
}

// LockStatus is the answer to "who holds this resource right now".
type LockStatus struct {
	Locked           bool       `json:"locked"`
	ResourceID       string     `json:"resource_id"`
	ResourceType     string     `json:"resource_type"`
	OwnerUserID      string     `json:"owner_user_id,omitempty"`
	OwnerDisplayName string     `json:"owner_display_name,omitempty"`
	AcquiredAt       *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}
