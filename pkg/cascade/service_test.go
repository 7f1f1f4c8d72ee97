package cascade

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/joiedevivre/jasmine/pkg/auth"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = models.Actor{UserID: "admin-1"}

type serviceFixture struct {
	db     *memoryDB
	audit  *fakeAudit
	graph  *fakeGraph
	locker locking.Locker
	svc    *Service
}

func newServiceFixture(t *testing.T, role models.AdminRole) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		db:     scenarioA(),
		audit:  &fakeAudit{},
		graph:  &fakeGraph{},
		locker: locking.NewLocal(),
	}
	f.svc = NewService(ServiceDeps{
		Authorizer: &fakeAuthorizer{role: role},
		Planner:    NewPlanner(f.db, testLogger()),
		Executor:   NewExecutor(f.db, nil, false, testLogger()),
		Sessions:   NewMemoryStore(15 * time.Minute),
		Audit:      f.audit,
		Locker:     f.locker,
		Graph:      f.graph,
		Logger:     testLogger(),
	})
	return f
}

func acknowledgeAll(t *testing.T, f *serviceFixture, s *Session) {
	t.Helper()
	_, err := f.svc.Acknowledge(context.Background(), admin, "biz-x", s.ID, s.Plan.Consequences())
	require.NoError(t, err)
}

func TestService_FullFlow(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	ctx := context.Background()

	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	assert.Equal(t, []string{
		models.ConsequenceProducts,
		models.ConsequenceOrders,
		models.ConsequenceCategories,
		models.ConsequenceFundsDeleted,
		models.ConsequenceFundsDisassociated,
		models.ConsequenceBusinessRecord,
	}, s.Plan.Consequences())

	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "  boutique  éloïse ")
	require.NoError(t, err)

	var progress []models.CascadeProgress
	result, err := f.svc.Execute(ctx, admin, "biz-x", s.ID, collect(&progress))
	require.NoError(t, err)

	assert.Equal(t, StepBusiness, result.LastStep)
	assert.NotContains(t, f.db.businesses, "biz-x")
	assert.Equal(t, []string{"biz-x"}, f.graph.deleted)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditBusinessCascadeDelete, f.audit.entries[0].ActionType)

	// sessions are single use
	_, err = f.svc.Execute(ctx, admin, "biz-x", s.ID, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_GateBlocksExecution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *serviceFixture, s *Session)
		wantErr error
	}{
		{
			name: "nothing acknowledged",
			prepare: func(t *testing.T, f *serviceFixture, s *Session) {
				_, err := f.svc.ConfirmName(context.Background(), admin, "biz-x", s.ID, "Boutique Éloïse")
				require.NoError(t, err)
			},
			wantErr: ErrGateNotSatisfied,
		},
		{
			name: "one consequence missing",
			prepare: func(t *testing.T, f *serviceFixture, s *Session) {
				consequences := s.Plan.Consequences()
				_, err := f.svc.Acknowledge(context.Background(), admin, "biz-x", s.ID, consequences[:len(consequences)-1])
				require.NoError(t, err)
				_, err = f.svc.ConfirmName(context.Background(), admin, "biz-x", s.ID, "Boutique Éloïse")
				require.NoError(t, err)
			},
			wantErr: ErrGateNotSatisfied,
		},
		{
			name: "name never confirmed",
			prepare: func(t *testing.T, f *serviceFixture, s *Session) {
				acknowledgeAll(t, f, s)
			},
			wantErr: ErrGateNotSatisfied,
		},
		{
			name: "wrong name typed",
			prepare: func(t *testing.T, f *serviceFixture, s *Session) {
				acknowledgeAll(t, f, s)
				_, err := f.svc.ConfirmName(context.Background(), admin, "biz-x", s.ID, "Boutique Eloise")
				require.ErrorIs(t, err, ErrNameMismatch)
			},
			wantErr: ErrGateNotSatisfied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, models.RoleAdmin)
			s, err := f.svc.LoadImpact(context.Background(), admin, "biz-x")
			require.NoError(t, err)
			tt.prepare(t, f, s)

			_, err = f.svc.Execute(context.Background(), admin, "biz-x", s.ID, nil)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.db.calls, "blocked execution issues no statements")
			assert.Contains(t, f.db.businesses, "biz-x")
			assert.Empty(t, f.audit.entries)
		})
	}
}

func TestService_ExecuteWithoutImpact(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)

	_, err := f.svc.Execute(context.Background(), admin, "biz-x", "never-issued", nil)

	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, f.db.calls)
}

func TestService_ConfirmationBoundToActorAndBusiness(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	ctx := context.Background()
	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)

	_, err = f.svc.Acknowledge(ctx, models.Actor{UserID: "admin-2"}, "biz-x", s.ID, []string{models.ConsequenceProducts})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.Acknowledge(ctx, admin, "biz-y", s.ID, []string{models.ConsequenceProducts})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_UnknownConsequence(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	s, err := f.svc.LoadImpact(context.Background(), admin, "biz-x")
	require.NoError(t, err)

	_, err = f.svc.Acknowledge(context.Background(), admin, "biz-x", s.ID, []string{"everything"})
	assert.ErrorIs(t, err, ErrUnknownConsequence)
}

func TestService_PlanGrewAfterAcknowledgement(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	ctx := context.Background()
	delete(f.db.categories, "cat-1")

	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "Boutique Éloïse")
	require.NoError(t, err)

	// a category appears between confirmation and execution
	f.db.categories["cat-new"] = "owner-x"

	_, err = f.svc.Execute(ctx, admin, "biz-x", s.ID, nil)

	assert.ErrorIs(t, err, ErrPlanChanged)
	assert.Empty(t, f.db.calls)
}

func confirmedSession(t *testing.T, f *serviceFixture) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "Boutique Éloïse")
	require.NoError(t, err)
	return s
}

func TestService_AcknowledgedCategoryGrew(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	s := confirmedSession(t, f)
	require.Len(t, s.Plan.ProductIDs, 3)

	for i := 0; i < 50; i++ {
		f.db.products[fmt.Sprintf("prod-late-%d", i)] = "biz-x"
	}

	_, err := f.svc.Execute(context.Background(), admin, "biz-x", s.ID, nil)

	assert.ErrorIs(t, err, ErrPlanChanged)
	assert.Contains(t, err.Error(), models.ConsequenceProducts)
	assert.Empty(t, f.db.calls)
	assert.Len(t, keysWhere(f.db.products, func(b string) bool { return b == "biz-x" }), 53)
}

func TestService_FundChangedPartition(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	s := confirmedSession(t, f)

	// a contribution lands on the fund shown as delete-eligible
	f.db.funds["fund-empty"] = fund{businessID: "biz-x", contributions: 1}

	_, err := f.svc.Execute(context.Background(), admin, "biz-x", s.ID, nil)

	assert.ErrorIs(t, err, ErrPlanChanged)
	assert.Empty(t, f.db.calls)
}

func TestService_PlanShrankStillExecutes(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	s := confirmedSession(t, f)

	delete(f.db.orders, "order-5")

	result, err := f.svc.Execute(context.Background(), admin, "biz-x", s.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, StepBusiness, result.LastStep)
}

func TestService_StepFailureIsAudited(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	ctx := context.Background()
	f.db.failOn = "DeleteOrders"

	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "Boutique Éloïse")
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, admin, "biz-x", s.ID, nil)

	assert.ErrorIs(t, err, ErrCascadeFailed)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditBusinessCascadeFailed, f.audit.entries[0].ActionType)
	assert.Equal(t, StepFundsDelete, f.audit.entries[0].Metadata.Data["last_completed_step"])
	assert.Empty(t, f.graph.deleted)
}

func TestService_GraphFailureDoesNotFailCascade(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	f.graph.err = errors.New("graph unavailable")
	ctx := context.Background()

	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "Boutique Éloïse")
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, admin, "biz-x", s.ID, nil)
	assert.NoError(t, err)
}

func TestService_ConcurrentCascadeRejected(t *testing.T) {
	f := newServiceFixture(t, models.RoleAdmin)
	ctx := context.Background()

	s, err := f.svc.LoadImpact(ctx, admin, "biz-x")
	require.NoError(t, err)
	acknowledgeAll(t, f, s)
	_, err = f.svc.ConfirmName(ctx, admin, "biz-x", s.ID, "Boutique Éloïse")
	require.NoError(t, err)

	err = f.locker.WithLock(ctx, locking.CascadeKey("biz-x"), func(ctx context.Context) error {
		_, err := f.svc.Execute(ctx, admin, "biz-x", s.ID, nil)
		return err
	})

	assert.ErrorIs(t, err, locking.ErrLocked)
	assert.Contains(t, f.db.businesses, "biz-x")
}

func TestService_RequiresAdmin(t *testing.T) {
	f := newServiceFixture(t, "")

	_, err := f.svc.LoadImpact(context.Background(), admin, "biz-x")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.svc.LoadImpact(context.Background(), models.Actor{}, "biz-x")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
