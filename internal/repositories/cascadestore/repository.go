package cascadestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

// batchSize caps the ids bound into a single IN list.
const batchSize = 500

// Repository reads cascade plans and runs the cascade statements. Every
// statement goes through database.Conn so a transaction carried on the
// context is picked up.
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

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (*models.BusinessAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.GetBusiness")
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
	sb.Where(sb.Equal("id", businessID))

	query, args := sb.Build()
	var business models.BusinessAccount
	if err := database.Conn(ctx, r.db).GetContext(ctx, &business, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("business %s not found", businessID))
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("business_id", businessID).Error("Failed to get business")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get business")
	}

	return &business, nil
}

func (r *Repository) ListProductIDs(ctx context.Context, businessID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.ListProductIDs")
	defer span.End()

	return r.listIDs(ctx, "products", "business_id", businessID)
}

func (r *Repository) ListOrderIDs(ctx context.Context, businessID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.ListOrderIDs")
	defer span.End()

	return r.listIDs(ctx, "business_orders", "business_id", businessID)
}

// ListCategoryIDs lists the categories of the user who owns the business.
func (r *Repository) ListCategoryIDs(ctx context.Context, ownerUserID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.ListCategoryIDs")
	defer span.End()

	return r.listIDs(ctx, "categories", "user_id", ownerUserID)
}

func (r *Repository) listIDs(ctx context.Context, table, column, value string) ([]string, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From(table)
	sb.Where(sb.Equal(column, value))
	sb.OrderBy("id ASC")

	query, args := sb.Build()
	ids := []string{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table": table,
			column:  value,
		}).Error("Failed to list ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list %s", table))
	}
	return ids, nil
}

// ListBusinessFunds returns the funds created for the business with their
// contribution count and total.
func (r *Repository) ListBusinessFunds(ctx context.Context, businessID string) ([]models.FundImpact, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.ListBusinessFunds")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"f.id",
		"f.title",
		"COUNT(c.id) AS contribution_count",
		"COALESCE(SUM(c.amount), 0) AS total_contributed",
	)
	sb.From("collective_funds f")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "contributions c", "c.fund_id = f.id")
	sb.Where(sb.Equal("f.business_id", businessID))
	sb.GroupBy("f.id", "f.title")
	sb.OrderBy("f.id ASC")

	query, args := sb.Build()
	var funds []models.FundImpact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &funds, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("business_id", businessID).Error("Failed to list business funds")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list business funds")
	}

	return funds, nil
}

func (r *Repository) DeleteProductRatings(ctx context.Context, productIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteProductRatings")
	defer span.End()

	return r.deleteIn(ctx, "product_ratings", "product_id", productIDs)
}

func (r *Repository) DeleteProducts(ctx context.Context, productIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteProducts")
	defer span.End()

	return r.deleteIn(ctx, "products", "id", productIDs)
}

func (r *Repository) DeleteCategories(ctx context.Context, categoryIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteCategories")
	defer span.End()

	return r.deleteIn(ctx, "categories", "id", categoryIDs)
}

// DisassociateFunds clears business_id on funds that keep their contributions.
func (r *Repository) DisassociateFunds(ctx context.Context, fundIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DisassociateFunds")
	defer span.End()

	var total int64
	for _, batch := range lo.Chunk(lo.Uniq(fundIDs), batchSize) {
		ub := database.NewUpdateBuilder()
		ub.Update("collective_funds")
		ub.Set("business_id = NULL")
		ub.Where(ub.In("id", database.Args(batch)...))

		n, err := r.exec(ctx, "collective_funds", ub)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *Repository) DeleteFundComments(ctx context.Context, fundIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteFundComments")
	defer span.End()

	return r.deleteIn(ctx, "fund_comments", "fund_id", fundIDs)
}

func (r *Repository) DeleteFundActivities(ctx context.Context, fundIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteFundActivities")
	defer span.End()

	return r.deleteIn(ctx, "fund_activities", "fund_id", fundIDs)
}

func (r *Repository) DeleteFunds(ctx context.Context, fundIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteFunds")
	defer span.End()

	return r.deleteIn(ctx, "collective_funds", "id", fundIDs)
}

func (r *Repository) DeleteOrders(ctx context.Context, orderIDs []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteOrders")
	defer span.End()

	return r.deleteIn(ctx, "business_orders", "id", orderIDs)
}

func (r *Repository) DeleteBusiness(ctx context.Context, businessID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "cascadestore.Repository.DeleteBusiness")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom("business_accounts")
	db.Where(db.Equal("id", businessID))

	return r.exec(ctx, "business_accounts", db)
}

func (r *Repository) deleteIn(ctx context.Context, table, column string, ids []string) (int64, error) {
	var total int64
	for _, batch := range lo.Chunk(lo.Uniq(ids), batchSize) {
		db := database.NewDeleteBuilder()
		db.DeleteFrom(table)
		db.Where(db.In(column, database.Args(batch)...))

		n, err := r.exec(ctx, table, db)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *Repository) exec(ctx context.Context, table string, b sqlbuilder.Builder) (int64, error) {
	query, args := b.BuildWithFlavor(sqlbuilder.PostgreSQL)
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Cascade statement failed")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to update %s", table))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to update %s", table))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"table": table,
		"rows":  n,
	}).Debug("Cascade statement applied")
	return n, nil
}
