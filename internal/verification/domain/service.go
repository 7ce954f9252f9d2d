package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// SubmitRequest carries one credential submission. TargetOrgID names the
// organization the claim is about; SecondaryOrgID names the reviewing
// association and is required only for volunteer_teacher.
type SubmitRequest struct {
	Type           string
	TargetOrgID    *snowflake.ID
	SecondaryOrgID *snowflake.ID
	EvidenceRefs   []EvidenceRef
	Note           string
}

// ReviewRequest is one reviewer decision on a pending row.
type ReviewRequest struct {
	RequestID snowflake.ID
	Decision  string
	Reason    string
}

// RevokeRequest withdraws an approved claim by applicant and type.
type RevokeRequest struct {
	ApplicantID snowflake.ID
	Type        string
	Reason      string
}

// ListQueueRequest narrows a reviewer's pending queue.
type ListQueueRequest struct {
	Type        string
	TargetOrgID *snowflake.ID
	Limit       int
}

// ListTeacherPoolRequest lists an association's approved volunteer teachers.
type ListTeacherPoolRequest struct {
	AssociationOrgID snowflake.ID
	ActiveOnly       bool
}

// ApplicantDetail is the review-context view of an applicant: the request
// plus their current claims and prior requests.
type ApplicantDetail struct {
	Request      Request   `json:"request"`
	ActiveClaims []Claim   `json:"active_claims"`
	History      []Request `json:"history"`
}

type Service interface {
	Submit(ctx context.Context, applicantID snowflake.ID, applicantName string, req SubmitRequest) (*Request, error)
	ListMine(ctx context.Context, applicantID snowflake.ID) ([]Request, error)
	ListQueue(ctx context.Context, reviewerID snowflake.ID, req ListQueueRequest) ([]Request, error)
	Review(ctx context.Context, reviewerID snowflake.ID, req ReviewRequest) (*Request, error)
	Revoke(ctx context.Context, reviewerID snowflake.ID, req RevokeRequest) error
	GetRequest(ctx context.Context, viewerID snowflake.ID, requestID snowflake.ID) (*Request, error)
	ApplicantDetail(ctx context.Context, reviewerID snowflake.ID, requestID snowflake.ID) (*ApplicantDetail, error)

	ActiveClaims(ctx context.Context, userID snowflake.ID) ([]Claim, error)
	ListClaimHolders(ctx context.Context, reviewerID snowflake.ID, typ string, orgID snowflake.ID) ([]Claim, error)

	ListTeacherPool(ctx context.Context, reviewerID snowflake.ID, req ListTeacherPoolRequest) ([]TeacherPoolEntry, error)
	SetTeacherPoolActive(ctx context.Context, reviewerID snowflake.ID, userID snowflake.ID, associationOrgID snowflake.ID, active bool) error
}

var (
	ErrInvalidType       = errors.New("invalid_type")
	ErrInvalidTarget     = errors.New("invalid_target")
	ErrInvalidSecondary  = errors.New("invalid_secondary")
	ErrInvalidDecision   = errors.New("invalid_decision")
	ErrReasonRequired    = errors.New("reason_required")
	ErrMissingClaim      = errors.New("missing_prerequisite_claim")
	ErrAssociationParent = errors.New("association_parent_mismatch")
	ErrAlreadyVerified   = errors.New("already_verified")
	ErrDuplicatePending  = errors.New("duplicate_pending")
	ErrAlreadyDecided    = errors.New("already_decided")
	ErrRequestNotFound   = errors.New("request_not_found")
	ErrClaimNotFound     = errors.New("claim_not_found")
	ErrPoolEntryNotFound = errors.New("pool_entry_not_found")
	ErrOrphanAuthority   = errors.New("orphan_authority")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = errors.New("rate_limited")
)
