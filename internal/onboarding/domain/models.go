// Package domain contains organization onboarding: the request an
// organization's prospective first administrator files, decided by the top
// authority.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Statuses; a decided row never reopens.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Decisions.
const (
	DecisionApprove = "approved"
	DecisionReject  = "rejected"
)

// Request is one onboarding submission. At most one pending row per
// applicant, enforced by partial unique index.
type Request struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	ApplicantID     snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_onboarding_requests_pending,where:status = 'pending'" json:"applicant_id"`
	OrgKind         string         `gorm:"type:text;not null" json:"org_kind"`
	SchoolCode      string         `gorm:"type:text;not null" json:"school_code"`
	SchoolName      string         `gorm:"type:text;not null" json:"school_name"`
	AssociationName string         `gorm:"type:text" json:"association_name,omitempty"`
	ContactName     string         `gorm:"type:text;not null" json:"contact_name"`
	ContactEmail    string         `gorm:"type:text;not null" json:"contact_email"`
	ContactPhone    string         `gorm:"type:text" json:"contact_phone,omitempty"`
	EvidenceRefs    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"evidence_refs"`
	Status          string         `gorm:"type:text;not null;default:'pending';index" json:"status"`
	CreatedOrgID    *snowflake.ID  `gorm:"column:created_org_id" json:"created_org_id,omitempty"`
	ReviewedBy      *snowflake.ID  `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	RejectedReason  string         `gorm:"type:text" json:"rejected_reason,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Request) TableName() string { return "onboarding_requests" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id snowflake.ID) (*Request, error)
	ListPending(ctx context.Context, limit int) ([]Request, error)
	ListByApplicant(ctx context.Context, applicantID snowflake.ID) ([]Request, error)
	// MarkDecided is the pending -> approved|rejected compare-and-set.
	MarkDecided(ctx context.Context, id snowflake.ID, status string, reviewedBy snowflake.ID, reason string, createdOrgID *snowflake.ID, at time.Time) (bool, error)
}

var (
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidContact   = errors.New("invalid_contact")
	ErrInvalidDecision  = errors.New("invalid_decision")
	ErrReasonRequired   = errors.New("reason_required")
	ErrDuplicatePending = errors.New("duplicate_pending")
	ErrAlreadyDecided   = errors.New("already_decided")
	ErrRequestNotFound  = errors.New("request_not_found")
	ErrForbidden        = errors.New("forbidden")
)
