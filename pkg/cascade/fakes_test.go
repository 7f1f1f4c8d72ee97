package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/auth"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/shopspring/decimal"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fund struct {
	businessID    string
	contributions int
}

// memoryDB models the tables a cascade touches.
type memoryDB struct {
	businesses map[string]models.BusinessAccount
	products   map[string]string // product -> business
	ratings    map[string]string // rating -> product
	categories map[string]string // category -> owner user
	orders     map[string]string // order -> business
	funds      map[string]fund
	comments   map[string]string // comment -> fund
	activities map[string]string // activity -> fund

	calls  []string
	failOn string
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		businesses: map[string]models.BusinessAccount{},
		products:   map[string]string{},
		ratings:    map[string]string{},
		categories: map[string]string{},
		orders:     map[string]string{},
		funds:      map[string]fund{},
		comments:   map[string]string{},
		activities: map[string]string{},
	}
}

func (m *memoryDB) clone() *memoryDB {
	c := newMemoryDB()
	for k, v := range m.businesses {
		c.businesses[k] = v
	}
	for _, pair := range []struct{ dst, src map[string]string }{
		{c.products, m.products}, {c.ratings, m.ratings}, {c.categories, m.categories},
		{c.orders, m.orders}, {c.comments, m.comments}, {c.activities, m.activities},
	} {
		for k, v := range pair.src {
			pair.dst[k] = v
		}
	}
	for k, v := range m.funds {
		c.funds[k] = v
	}
	c.failOn = m.failOn
	return c
}

func (m *memoryDB) restore(from *memoryDB) {
	calls := m.calls
	*m = *from
	m.calls = calls
}

func (m *memoryDB) call(name string) error {
	m.calls = append(m.calls, name)
	if m.failOn == name {
		return fmt.Errorf("%s: deadlock detected", name)
	}
	return nil
}

func keysWhere(table map[string]string, match func(string) bool) []string {
	var out []string
	for k, v := range table {
		if match(v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func in(ids []string) func(string) bool {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(v string) bool { return set[v] }
}

func deleteWhere(table map[string]string, match func(string) bool) int64 {
	var n int64
	for k, v := range table {
		if match(v) {
			delete(table, k)
			n++
		}
	}
	return n
}

func deleteKeys(table map[string]string, ids []string) int64 {
	var n int64
	for _, id := range ids {
		if _, ok := table[id]; ok {
			delete(table, id)
			n++
		}
	}
	return n
}

func (m *memoryDB) GetBusiness(_ context.Context, id string) (*models.BusinessAccount, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, errors.New("business not found")
	}
	return &b, nil
}

func (m *memoryDB) ListProductIDs(_ context.Context, businessID string) ([]string, error) {
	return keysWhere(m.products, func(v string) bool { return v == businessID }), nil
}

func (m *memoryDB) ListOrderIDs(_ context.Context, businessID string) ([]string, error) {
	return keysWhere(m.orders, func(v string) bool { return v == businessID }), nil
}

func (m *memoryDB) ListCategoryIDs(_ context.Context, owner string) ([]string, error) {
	return keysWhere(m.categories, func(v string) bool { return v == owner }), nil
}

func (m *memoryDB) ListBusinessFunds(_ context.Context, businessID string) ([]models.FundImpact, error) {
	var out []models.FundImpact
	for id, f := range m.funds {
		if f.businessID == businessID {
			out = append(out, models.FundImpact{
				ID:                id,
				ContributionCount: f.contributions,
				TotalContributed:  decimal.NewFromInt(int64(f.contributions) * 5000),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryDB) DeleteProductRatings(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteProductRatings"); err != nil {
		return 0, err
	}
	return deleteWhere(m.ratings, in(ids)), nil
}

func (m *memoryDB) DeleteProducts(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteProducts"); err != nil {
		return 0, err
	}
	return deleteKeys(m.products, ids), nil
}

func (m *memoryDB) DeleteCategories(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteCategories"); err != nil {
		return 0, err
	}
	return deleteKeys(m.categories, ids), nil
}

func (m *memoryDB) DisassociateFunds(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DisassociateFunds"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if f, ok := m.funds[id]; ok {
			f.businessID = ""
			m.funds[id] = f
			n++
		}
	}
	return n, nil
}

func (m *memoryDB) DeleteFundComments(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteFundComments"); err != nil {
		return 0, err
	}
	return deleteWhere(m.comments, in(ids)), nil
}

func (m *memoryDB) DeleteFundActivities(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteFundActivities"); err != nil {
		return 0, err
	}
	return deleteWhere(m.activities, in(ids)), nil
}

func (m *memoryDB) DeleteFunds(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteFunds"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if f, ok := m.funds[id]; ok {
			if f.contributions > 0 {
				return n, fmt.Errorf("fund %s has contributions", id)
			}
			delete(m.funds, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryDB) DeleteOrders(_ context.Context, ids []string) (int64, error) {
	if err := m.call("DeleteOrders"); err != nil {
		return 0, err
	}
	return deleteKeys(m.orders, ids), nil
}

func (m *memoryDB) DeleteBusiness(_ context.Context, id string) (int64, error) {
	if err := m.call("DeleteBusiness"); err != nil {
		return 0, err
	}
	if _, ok := m.businesses[id]; !ok {
		return 0, nil
	}
	delete(m.businesses, id)
	return 1, nil
}

// memoryTx snapshots the tables and restores them when fn fails.
type memoryTx struct {
	db      *memoryDB
	commits int
}

func (t *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := t.db.clone()
	if err := fn(ctx); err != nil {
		t.db.restore(snapshot)
		return err
	}
	t.commits++
	return nil
}

type fakeAuthorizer struct {
	role models.AdminRole
}

func (a *fakeAuthorizer) Require(_ context.Context, actor models.Actor, role models.AdminRole) error {
	if actor.UserID == "" {
		return auth.ErrUnauthenticated
	}
	if !a.role.Satisfies(role) {
		return auth.ErrForbidden
	}
	return nil
}

type fakeAudit struct {
	entries []*models.AuditLogEntry
}

func (a *fakeAudit) Append(_ context.Context, e *models.AuditLogEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type fakeGraph struct {
	deleted []string
	err     error
}

func (g *fakeGraph) DeleteBusiness(_ context.Context, id string) (int64, error) {
	g.deleted = append(g.deleted, id)
	return 1, g.err
}

// scenarioA: 3 products, 5 orders, one fund with a contribution and one without.
func scenarioA() *memoryDB {
	db := newMemoryDB()
	db.businesses["biz-x"] = models.BusinessAccount{ID: "biz-x", UserID: "owner-x", BusinessName: "Boutique  Éloïse", IsActive: true}
	db.businesses["biz-y"] = models.BusinessAccount{ID: "biz-y", UserID: "owner-y", BusinessName: "Other"}

	for i := 1; i <= 3; i++ {
		p := fmt.Sprintf("prod-%d", i)
		db.products[p] = "biz-x"
		db.ratings["rating-"+p] = p
	}
	db.products["prod-y"] = "biz-y"
	db.ratings["rating-prod-y"] = "prod-y"

	for i := 1; i <= 5; i++ {
		db.orders[fmt.Sprintf("order-%d", i)] = "biz-x"
	}
	db.orders["order-y"] = "biz-y"

	db.categories["cat-1"] = "owner-x"
	db.categories["cat-y"] = "owner-y"

	db.funds["fund-contributed"] = fund{businessID: "biz-x", contributions: 1}
	db.funds["fund-empty"] = fund{businessID: "biz-x"}
	db.comments["comment-1"] = "fund-empty"
	db.activities["activity-1"] = "fund-empty"
	db.comments["comment-2"] = "fund-contributed"
	return db
}
