package cascadestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joiedevivre/jasmine/internal/repositories/cascadestore"
	"github.com/joiedevivre/jasmine/internal/repositories/repotest"
	"github.com/joiedevivre/jasmine/pkg/cascade"
	"github.com/joiedevivre/jasmine/pkg/database"
)

const (
	businessID = "00000000-0000-0000-0000-0000000000b1"
	otherID    = "00000000-0000-0000-0000-0000000000b2"
	fundEmpty  = "00000000-0000-0000-0000-0000000000f1"
	fundPaid   = "00000000-0000-0000-0000-0000000000f2"
)

func seed(t *testing.T, db database.DB) {
	repotest.Exec(t, db,
		`INSERT INTO business_accounts (id, user_id, business_name) VALUES
			('`+businessID+`', 'owner-1', 'Maison Adjoa'),
			('`+otherID+`', 'owner-2', 'Other Shop')`,
		`INSERT INTO categories (id, user_id, name) VALUES
			('00000000-0000-0000-0000-0000000000c1', 'owner-1', 'Pagnes'),
			('00000000-0000-0000-0000-0000000000c2', 'owner-2', 'Bijoux')`,
		`INSERT INTO products (id, business_id, name) VALUES
			('00000000-0000-0000-0000-0000000000a1', '`+businessID+`', 'Wax'),
			('00000000-0000-0000-0000-0000000000a2', '`+businessID+`', 'Kente'),
			('00000000-0000-0000-0000-0000000000a3', '`+otherID+`', 'Bracelet')`,
		`INSERT INTO product_ratings (id, product_id, user_id, rating) VALUES
			('00000000-0000-0000-0000-0000000000d1', '00000000-0000-0000-0000-0000000000a1', 'buyer-1', 5),
			('00000000-0000-0000-0000-0000000000d2', '00000000-0000-0000-0000-0000000000a3', 'buyer-1', 4)`,
		`INSERT INTO business_orders (id, business_id, buyer_id, total) VALUES
			('00000000-0000-0000-0000-0000000000e1', '`+businessID+`', 'buyer-1', 12000)`,
		`INSERT INTO collective_funds (id, title, created_by, business_id) VALUES
			('`+fundEmpty+`', 'Anniversaire', 'client-1', '`+businessID+`'),
			('`+fundPaid+`', 'Mariage', 'client-2', '`+businessID+`')`,
		`INSERT INTO contributions (id, fund_id, user_id, amount) VALUES
			('00000000-0000-0000-0000-000000000c01', '`+fundPaid+`', 'client-3', 5000),
			('00000000-0000-0000-0000-000000000c02', '`+fundPaid+`', 'client-4', 2500.50)`,
		`INSERT INTO fund_comments (id, fund_id, user_id, content) VALUES
			('00000000-0000-0000-0000-000000000a01', '`+fundEmpty+`', 'client-1', 'Merci')`,
		`INSERT INTO fund_activities (id, fund_id, activity_type) VALUES
			('00000000-0000-0000-0000-000000000a02', '`+fundEmpty+`', 'created')`,
	)
}

func count(t *testing.T, db database.DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.GetContext(context.Background(), &n, query))
	return n
}

func TestRepository_PlanAndCascade(t *testing.T) {
	db := repotest.StartPostgres(t)
	seed(t, db)
	ctx := context.Background()
	logger := repotest.Logger()

	repo := cascadestore.NewRepository(db, logger)
	plan, err := cascade.NewPlanner(repo, logger).Build(ctx, businessID)
	require.NoError(t, err)

	assert.Equal(t, "Maison Adjoa", plan.BusinessName)
	assert.Len(t, plan.ProductIDs, 2)
	assert.Len(t, plan.OrderIDs, 1)
	assert.Len(t, plan.CategoryIDs, 1)
	require.Len(t, plan.DeletableFunds, 1)
	require.Len(t, plan.DisassociatedFunds, 1)
	assert.Equal(t, fundEmpty, plan.DeletableFunds[0].ID)
	assert.Equal(t, 2, plan.DisassociatedFunds[0].ContributionCount)
	assert.Equal(t, "7500.5", plan.DisassociatedFunds[0].TotalContributed.String())

	executor := cascade.NewExecutor(repo, database.NewTransactor(db), true, logger)
	result, err := executor.Execute(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, cascade.StepBusiness, result.LastStep)

	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM business_accounts WHERE id = '`+businessID+`'`))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM collective_funds WHERE id = '`+fundEmpty+`'`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM collective_funds WHERE id = '`+fundPaid+`' AND business_id IS NULL`))
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM contributions`))

	// the other business is untouched
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM products WHERE business_id = '`+otherID+`'`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM product_ratings`))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM categories WHERE user_id = 'owner-2'`))
}

func TestRepository_GetBusinessNotFound(t *testing.T) {
	db := repotest.StartPostgres(t)

	_, err := cascadestore.NewRepository(db, repotest.Logger()).GetBusiness(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
}
