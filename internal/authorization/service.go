package authorization

import (
	"context"
	"errors"
)

// Service answers the coarse "may this role touch this endpoint group at
// all" question. Fine-grained routing (which request a reviewer may decide)
// stays in the resolver and is re-checked inside the deciding transaction.
type Service interface {
	Authorize(ctx context.Context, actor string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
