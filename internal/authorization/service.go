package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks that actor's role in org grants action on object.
	Authorize(ctx context.Context, actor string, org string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
