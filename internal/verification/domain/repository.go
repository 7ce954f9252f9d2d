package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// QueueScopeFilter is one entitlement expanded from the reviewer's bindings.
// Exactly one of Global/OrphanOnly/OrgIDs applies per scope.
type QueueScopeFilter struct {
	Type       string
	OrgIDs     []snowflake.ID
	Secondary  bool
	Global     bool
	OrphanOnly bool
}

// QueueFilter selects pending rows for a review queue. Scopes are OR-ed;
// Type and TargetOrgID narrow the result further.
type QueueFilter struct {
	Scopes      []QueueScopeFilter
	Type        string
	TargetOrgID *snowflake.ID
	Limit       int
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id snowflake.ID) (*Request, error)
	ListByApplicant(ctx context.Context, applicantID snowflake.ID) ([]Request, error)
	ListQueue(ctx context.Context, filter QueueFilter) ([]Request, error)
	LatestApproved(ctx context.Context, applicantID snowflake.ID, typ string) (*Request, error)

	// MarkDecided is the pending -> approved|rejected compare-and-set. It
	// reports false when the row was already decided.
	MarkDecided(ctx context.Context, id snowflake.ID, status string, reviewedBy snowflake.ID, reason string, at time.Time) (bool, error)
	// MarkRevoked is the approved -> revoked compare-and-set.
	MarkRevoked(ctx context.Context, id snowflake.ID, reason string, at time.Time) (bool, error)

	UpsertClaim(ctx context.Context, claim Claim) error
	GetClaim(ctx context.Context, userID snowflake.ID, typ string) (*Claim, error)
	ListActiveClaims(ctx context.Context, userID snowflake.ID) ([]Claim, error)
	ListActiveClaimHolders(ctx context.Context, typ string, orgID snowflake.ID) ([]Claim, error)
	RevokeClaim(ctx context.Context, userID snowflake.ID, typ string, at time.Time) (bool, error)

	UpsertTeacherPoolEntry(ctx context.Context, entry TeacherPoolEntry) error
	RemoveTeacherPoolEntry(ctx context.Context, userID snowflake.ID, associationOrgID snowflake.ID) error
	ListTeacherPool(ctx context.Context, associationOrgID snowflake.ID, activeOnly bool) ([]TeacherPoolEntry, error)
	SetTeacherPoolActive(ctx context.Context, userID snowflake.ID, associationOrgID snowflake.ID, active bool) (bool, error)
}
