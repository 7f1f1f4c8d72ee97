package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("you do not have permission to perform this action")
)

// RoleStore returns the active admin role of a user, or "" when the user is
// not an active admin.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (models.AdminRole, error)
}

// Authorizer is invoked at the start of every public operation, before any
// domain query runs.
type Authorizer struct {
	roles  RoleStore
	logger ectologger.Logger
}

func NewAuthorizer(roles RoleStore, logger ectologger.Logger) *Authorizer {
	return &Authorizer{roles: roles, logger: logger}
}

func (a *Authorizer) Require(ctx context.Context, actor models.Actor, required models.AdminRole) error {
	ctx, span := tracing.StartSpan(ctx, "auth.Authorizer.Require")
	defer span.End()

	if actor.UserID == "" {
		return ErrUnauthenticated
	}

	role, err := a.roles.GetRole(ctx, actor.UserID)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to resolve admin role: %w", err)
	}

	if !role.Satisfies(required) {
		a.logger.WithContext(ctx).WithFields(map[string]any{
			"user_id":       actor.UserID,
			"role":          role,
			"required_role": required,
		}).Warn("Admin role check failed")
		return ErrForbidden
	}
	return nil
}
