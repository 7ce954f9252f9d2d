package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ListCertified(ctx context.Context, req ListOrganizationsRequest) ([]Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	ResolveParentUniversity(ctx context.Context, associationID snowflake.ID) (*Organization, error)
	BindingsForUser(ctx context.Context, userID snowflake.ID) ([]AdminBinding, error)
	CreateAdminBinding(ctx context.Context, actorID snowflake.ID, req CreateAdminBindingRequest) (*AdminBinding, error)
	RemoveAdminBinding(ctx context.Context, actorID snowflake.ID, bindingID snowflake.ID) error
}

type ListOrganizationsRequest struct {
	Kind       string
	SchoolCode string
	// IncludeHidden lists organizations without a live admin; reserved for
	// top-authority views.
	IncludeHidden bool
}

type CreateAdminBindingRequest struct {
	UserID snowflake.ID
	// Kind plus the matching code identify the organization. The organization
	// is created on first use, mirroring onboarding approval.
	OrgKind     string
	SchoolCode  string
	DisplayName string
}

var (
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidSchoolCode   = errors.New("invalid_school_code")
	ErrInvalidDisplayName  = errors.New("invalid_display_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrOrganizationExists  = errors.New("organization_exists")
	ErrBindingNotFound     = errors.New("binding_not_found")
	ErrBindingExists       = errors.New("binding_exists")
	ErrOrgNotFound         = errors.New("organization_not_found")
	ErrNoParentUniversity  = errors.New("no_parent_university")
	ErrForbidden           = errors.New("forbidden")
)
