package adminuser

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetRole returns the role of an active admin, or "" for everyone else.
func (r *Repository) GetRole(ctx context.Context, userID string) (models.AdminRole, error) {
	ctx, span := tracing.StartSpan(ctx, "adminuser.Repository.GetRole")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("role")
	sb.From("admin_users")
	sb.Where(
		sb.Equal("user_id", userID),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	var role models.AdminRole
	if err := database.Conn(ctx, r.db).GetContext(ctx, &role, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("Failed to get admin role")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve admin role")
	}

	return role, nil
}
