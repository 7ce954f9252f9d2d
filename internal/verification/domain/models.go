// Package domain contains the verification request store: typed credential
// requests, the verified-claim flags approvals produce, and the association
// teacher pool fed by approved volunteer teachers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/yunzhijiao/bridge/internal/authorization"
	"gorm.io/datatypes"
)

// Verification types, shared with the routing table.
const (
	TypeUniversityStudent = authorization.TypeUniversityStudent
	TypeVolunteerTeacher  = authorization.TypeVolunteerTeacher
	TypeSpecialAid        = authorization.TypeSpecialAid
	TypeGeneralBasic      = authorization.TypeGeneralBasic
)

// Request statuses. A decided row never reopens; resubmission creates a new
// row. Revoked is reachable only from approved.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusRevoked  = "revoked"
)

// Decisions a reviewer may issue on a pending request.
const (
	DecisionApprove = "approved"
	DecisionReject  = "rejected"
)

// Claim statuses.
const (
	ClaimActive  = "active"
	ClaimRevoked = "revoked"
)

// Request is one credential submission. The partial unique index keeps at
// most one pending row per (applicant, type); rejected history stays intact.
type Request struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	Type           string         `gorm:"type:text;not null;index:ix_verification_requests_type;uniqueIndex:ux_verification_requests_pending,priority:2,where:status = 'pending'" json:"type"`
	ApplicantID    snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_verification_requests_pending,priority:1,where:status = 'pending'" json:"applicant_id"`
	ApplicantName  string         `gorm:"type:text;not null" json:"applicant_name"`
	TargetOrgID    *snowflake.ID  `gorm:"column:target_org_id;index" json:"target_org_id,omitempty"`
	SecondaryOrgID *snowflake.ID  `gorm:"column:secondary_org_id;index" json:"secondary_org_id,omitempty"`
	EvidenceRefs   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"evidence_refs"`
	Note           string         `gorm:"type:text" json:"note,omitempty"`
	Status         string         `gorm:"type:text;not null;default:'pending';index" json:"status"`
	OrphanFlagged  bool           `gorm:"column:orphan_flagged;not null;default:false;index" json:"orphan_flagged"`
	ReviewedBy     *snowflake.ID  `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	RejectedReason string         `gorm:"type:text" json:"rejected_reason,omitempty"`
	RevokedReason  string         `gorm:"type:text" json:"revoked_reason,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Request) TableName() string { return "verification_requests" }

// Claim is the verified flag an approval grants. One row per (user, type);
// revocation flips status instead of deleting, re-approval reactivates.
type Claim struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID  `gorm:"not null;uniqueIndex:ux_claims_user_type,priority:1" json:"user_id"`
	Type      string        `gorm:"type:text;not null;uniqueIndex:ux_claims_user_type,priority:2" json:"type"`
	OrgID     *snowflake.ID `gorm:"column:org_id;index" json:"org_id,omitempty"`
	Status    string        `gorm:"type:text;not null;default:'active'" json:"status"`
	GrantedBy snowflake.ID  `gorm:"not null" json:"granted_by"`
	GrantedAt time.Time     `gorm:"not null" json:"granted_at"`
	RevokedAt *time.Time    `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
}

// TableName sets the database table name.
func (Claim) TableName() string { return "verified_claims" }

// Active reports whether the claim currently holds.
func (c Claim) Active() bool { return c.Status == ClaimActive }

// TeacherPoolEntry lists an approved volunteer teacher under the reviewing
// association. Rows are projections of active claims, removed on revocation.
type TeacherPoolEntry struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID `gorm:"not null;uniqueIndex:ux_teacher_pool,priority:1" json:"user_id"`
	AssociationOrgID snowflake.ID `gorm:"column:association_org_id;not null;index;uniqueIndex:ux_teacher_pool,priority:2" json:"association_org_id"`
	SchoolCode       string       `gorm:"type:text;not null;index" json:"school_code"`
	DisplayName      string       `gorm:"type:text;not null" json:"display_name"`
	Active           bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TeacherPoolEntry) TableName() string { return "teacher_pool_entries" }

// EvidenceRef is one opaque file reference from the evidence store. Contents
// are never inspected here.
type EvidenceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// ValidType reports whether typ names a known verification type.
func ValidType(typ string) bool { return authorization.ValidType(typ) }
