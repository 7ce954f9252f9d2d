// Package domain contains types for user notifications and the
// transactional outbox.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification types delivered to applicants and admins.
const (
	TypeVerificationApproved = "verification_approved"
	TypeVerificationRejected = "verification_rejected"
	TypeVerificationRevoked  = "verification_revoked"
	TypeOnboardingApproved   = "onboarding_approved"
	TypeOnboardingRejected   = "onboarding_rejected"
)

// Outbox topics consumed by downstream projections.
const (
	TopicVerificationApproved = "verification.approved"
	TopicVerificationRejected = "verification.rejected"
	TopicVerificationRevoked  = "verification.revoked"
	TopicOnboardingApproved   = "onboarding.approved"
	TopicOnboardingRejected   = "onboarding.rejected"
)

// Notification is a persisted, pollable message. IDs are ULIDs so that
// creation order within a request is preserved lexically.
type Notification struct {
	ID        string            `gorm:"primaryKey;type:text" json:"id"`
	UserID    snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Type      string            `gorm:"type:text;not null" json:"type"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	ReadAt    *time.Time        `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// OutboxEvent is written in the same transaction as the state change it
// describes and relayed asynchronously.
type OutboxEvent struct {
	ID          string         `gorm:"primaryKey;type:text" json:"id"`
	Topic       string         `gorm:"type:text;not null;index" json:"topic"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Published   bool           `gorm:"not null;default:false;index" json:"published"`
	PublishedAt *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

type ListRequest struct {
	UserID     snowflake.ID
	UnreadOnly bool
	Limit      int
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, n Notification) error
	InsertOutbox(ctx context.Context, e OutboxEvent) error
	List(ctx context.Context, req ListRequest) ([]Notification, error)
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, userID snowflake.ID, ids []string, readAt time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID snowflake.ID, readAt time.Time) (int64, error)
	ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Notification, error)
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
	MarkRead(ctx context.Context, userID snowflake.ID, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error)
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidType = errors.New("invalid_type")
)
