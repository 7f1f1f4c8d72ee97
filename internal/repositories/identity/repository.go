package identity

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

// Repository reads the identity records a duplicate scan groups. Every row
// is returned, suspended and inactive accounts included, oldest first.
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

func (r *Repository) ListClientProfiles(ctx context.Context) ([]models.ClientProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.ListClientProfiles")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"id",
		"user_id",
		"COALESCE(first_name, '') AS first_name",
		"COALESCE(last_name, '') AS last_name",
		"COALESCE(phone, '') AS phone",
		"COALESCE(to_char(birthday, 'YYYY-MM-DD'), '') AS birthday",
		"created_at",
		"is_suspended",
	)
	sb.From("client_profiles")
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var profiles []models.ClientProfile
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &profiles, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list client profiles")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list client profiles")
	}

	return profiles, nil
}

func (r *Repository) ListBusinessAccounts(ctx context.Context) ([]models.BusinessAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.ListBusinessAccounts")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"id",
		"user_id",
		"business_name",
		"COALESCE(phone, '') AS phone",
		"COALESCE(email, '') AS email",
		"created_at",
		"is_verified",
		"is_active",
	)
	sb.From("business_accounts")
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var accounts []models.BusinessAccount
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &accounts, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list business accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list business accounts")
	}

	return accounts, nil
}
