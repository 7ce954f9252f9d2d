package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Kind          string
	SchoolCode    string
	IncludeHidden bool
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindByKindAndCode(ctx context.Context, kind, code string) (*Organization, error)
	ListOrganizations(ctx context.Context, filter ListFilter) ([]Organization, error)
	SetHasLiveAdmin(ctx context.Context, orgID snowflake.ID, live bool) error

	CreateBinding(ctx context.Context, binding AdminBinding) error
	GetBinding(ctx context.Context, id snowflake.ID) (*AdminBinding, error)
	DeleteBinding(ctx context.Context, id snowflake.ID) error
	ListBindingsByUser(ctx context.Context, userID snowflake.ID) ([]AdminBinding, error)
	CountBindingsForOrg(ctx context.Context, orgID snowflake.ID) (int64, error)

	// FlagPendingRequests marks pending review rows routed to an
	// organization which just lost its last admin. volunteer_teacher rows
	// are matched on the secondary (reviewing) organization, other types
	// on the target.
	FlagPendingRequests(ctx context.Context, orgID snowflake.ID) (int64, error)

	// UnflagPendingRequests clears the orphan flag on pending rows once the
	// organization has a live admin again.
	UnflagPendingRequests(ctx context.Context, orgID snowflake.ID) (int64, error)
}
