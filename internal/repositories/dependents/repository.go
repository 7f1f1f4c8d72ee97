package dependents

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

type source struct {
	table  string
	column string
}

// sources maps a dependent count to the rows it counts. Client counts key on
// the user id, business counts on the business account id.
var sources = map[string]source{
	models.CountContacts:      {table: "contacts", column: "user_id"},
	models.CountFundsCreated:  {table: "collective_funds", column: "created_by"},
	models.CountContributions: {table: "contributions", column: "user_id"},
	models.CountPosts:         {table: "posts", column: "user_id"},
	models.CountProducts:      {table: "products", column: "business_id"},
	models.CountOrders:        {table: "business_orders", column: "business_id"},
	models.CountFunds:         {table: "collective_funds", column: "business_id"},
}

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

// CountDependents counts the rows of one dependent kind owned by accountID.
func (r *Repository) CountDependents(ctx context.Context, count string, accountID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "dependents.Repository.CountDependents")
	defer span.End()

	src, ok := sources[count]
	if !ok {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown dependent count %q", count))
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(src.table)
	sb.Where(sb.Equal(src.column, accountID))

	query, args := sb.Build()
	var n int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &n, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count":      count,
			"account_id": accountID,
		}).Error("Failed to count dependents")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to count %s", count))
	}

	return n, nil
}
