package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/joiedevivre/jasmine/pkg/database"
	"github.com/joiedevivre/jasmine/pkg/locking"
	"github.com/joiedevivre/jasmine/pkg/metrics"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
	"github.com/samber/lo"
)

var (
	ErrNameMismatch       = errors.New("typed name does not match the business name")
	ErrUnknownConsequence = errors.New("unknown consequence")
	ErrPlanChanged        = errors.New("business data changed since the impact was loaded, reload the impact")
)

type Authorizer interface {
	Require(ctx context.Context, actor models.Actor, role models.AdminRole) error
}

type AuditLogger interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

// GraphPruner removes the business from the relationship graph after the
// relational delete. Failures are logged only.
type GraphPruner interface {
	DeleteBusiness(ctx context.Context, businessID string) (int64, error)
}

type CascadeEmitter interface {
	EmitBusinessCascadeDeleted(ctx context.Context, actor models.Actor, result models.CascadeResult) error
}

type ServiceDeps struct {
	Authorizer Authorizer
	Planner    *Planner
	Executor   *Executor
	Sessions   SessionStore
	Audit      AuditLogger
	Locker     locking.Locker
	Graph      GraphPruner
	Emitter    CascadeEmitter
	Logger     ectologger.Logger
}

// Service drives the confirmation flow: LoadImpact, Acknowledge, ConfirmName,
// then Execute. Each call names the confirmation id returned by LoadImpact.
type Service struct {
	authorizer Authorizer
	planner    *Planner
	executor   *Executor
	sessions   SessionStore
	audit      AuditLogger
	locker     locking.Locker
	graph      GraphPruner
	emitter    CascadeEmitter
	logger     ectologger.Logger
	now        func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	locker := deps.Locker
	if locker == nil {
		locker = locking.Noop{}
	}
	return &Service{
		authorizer: deps.Authorizer,
		planner:    deps.Planner,
		executor:   deps.Executor,
		sessions:   deps.Sessions,
		audit:      deps.Audit,
		locker:     locker,
		graph:      deps.Graph,
		emitter:    deps.Emitter,
		logger:     deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// LoadImpact builds the plan and opens a confirmation session for it.
func (s *Service) LoadImpact(ctx context.Context, actor models.Actor, businessID string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "cascade.Service.LoadImpact")
	defer span.End()

	if err := s.authorizer.Require(ctx, actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	plan, err := s.planner.Build(ctx, businessID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:           uuid.New().String(),
		BusinessID:   businessID,
		ActorID:      actor.UserID,
		Plan:         plan,
		ImpactLoaded: true,
		Acknowledged: map[string]bool{},
		CreatedAt:    s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) Acknowledge(ctx context.Context, actor models.Actor, businessID, confirmationID string, consequences []string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "cascade.Service.Acknowledge")
	defer span.End()

	session, err := s.session(ctx, actor, businessID, confirmationID)
	if err != nil {
		return nil, err
	}

	for _, c := range consequences {
		if !knownConsequence(c) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownConsequence, c)
		}
	}
	for _, c := range consequences {
		session.Acknowledged[c] = true
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmName records the typed-back business name. A mismatch leaves the
// session unconfirmed.
func (s *Service) ConfirmName(ctx context.Context, actor models.Actor, businessID, confirmationID, typedName string) (*Session, error) {
	ctx, span := tracing.StartSpan(ctx, "cascade.Service.ConfirmName")
	defer span.End()

	session, err := s.session(ctx, actor, businessID, confirmationID)
	if err != nil {
		return nil, err
	}

	session.NameConfirmed = NamesMatch(typedName, session.Plan.BusinessName)
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	if !session.NameConfirmed {
		return session, ErrNameMismatch
	}
	return session, nil
}

// Execute runs the cascade once every gate condition holds. A blocked call
// changes nothing and leaves the session usable; a started one consumes it.
func (s *Service) Execute(ctx context.Context, actor models.Actor, businessID, confirmationID string, progress ProgressFunc) (models.CascadeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "cascade.Service.Execute")
	defer span.End()

	session, err := s.session(ctx, actor, businessID, confirmationID)
	if err != nil {
		return models.CascadeResult{}, err
	}

	if err := session.Check(); err != nil {
		var gateErr *GateError
		if errors.As(err, &gateErr) {
			metrics.CascadeGateRejections.WithLabelValues(gateErr.Reason).Inc()
		}
		s.logger.WithContext(ctx).WithError(err).WithField("business_id", businessID).Warn("Cascade blocked by confirmation gate")
		return models.CascadeResult{}, err
	}

	var result models.CascadeResult
	err = s.locker.WithLock(ctx, locking.CascadeKey(businessID), func(ctx context.Context) error {
		plan, err := s.planner.Build(ctx, businessID)
		if err != nil {
			return err
		}
		if grown := unconfirmedGrowth(session.Plan, plan); len(grown) > 0 {
			return fmt.Errorf("%w: %v", ErrPlanChanged, grown)
		}

		if _, err := s.sessions.Take(ctx, session.ID); err != nil {
			return err
		}

		result, err = s.executor.Execute(ctx, plan, progress)
		s.record(ctx, actor, plan, result, err)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
	}
	return result, err
}

func (s *Service) session(ctx context.Context, actor models.Actor, businessID, confirmationID string) (*Session, error) {
	if err := s.authorizer.Require(ctx, actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, confirmationID)
	if err != nil {
		return nil, err
	}
	// a session is bound to the admin who loaded the impact and to one business
	if session.BusinessID != businessID || session.ActorID != actor.UserID {
		return nil, ErrSessionNotFound
	}
	if session.Acknowledged == nil {
		session.Acknowledged = map[string]bool{}
	}
	return session, nil
}

// unconfirmedGrowth lists the categories in which current holds ids the
// confirmed plan did not show. Rows that disappeared since are fine.
func unconfirmedGrowth(confirmed, current *models.CascadePlan) []string {
	categories := []struct {
		name               string
		confirmed, current []string
	}{
		{models.ConsequenceProducts, confirmed.ProductIDs, current.ProductIDs},
		{models.ConsequenceOrders, confirmed.OrderIDs, current.OrderIDs},
		{models.ConsequenceCategories, confirmed.CategoryIDs, current.CategoryIDs},
		{models.ConsequenceFundsDeleted, confirmed.DeletableFundIDs(), current.DeletableFundIDs()},
		{models.ConsequenceFundsDisassociated, confirmed.DisassociatedFundIDs(), current.DisassociatedFundIDs()},
	}

	var out []string
	for _, c := range categories {
		if len(lo.Without(c.current, c.confirmed...)) > 0 {
			out = append(out, c.name)
		}
	}
	return out
}

func (s *Service) record(ctx context.Context, actor models.Actor, plan *models.CascadePlan, result models.CascadeResult, execErr error) {
	ctx = context.WithoutCancel(ctx)
	mode := "sequential"
	if result.Transactional {
		mode = "transactional"
	}

	entry := &models.AuditLogEntry{
		ID:          uuid.New().String(),
		AdminUserID: actor.UserID,
		TargetType:  "business_account",
		TargetID:    plan.BusinessID,
		CreatedAt:   s.now(),
	}
	metadata := map[string]any{
		"business_name": plan.BusinessName,
		"counts":        result.Counts,
		"mode":          mode,
	}

	if execErr != nil {
		metrics.CascadeRunsTotal.WithLabelValues("failed", mode).Inc()
		entry.ActionType = models.AuditBusinessCascadeFailed
		entry.Description = fmt.Sprintf("Cascade delete of business %s failed", plan.BusinessName)
		metadata["last_completed_step"] = result.LastStep
		metadata["error"] = execErr.Error()
	} else {
		metrics.CascadeRunsTotal.WithLabelValues("completed", mode).Inc()
		entry.ActionType = models.AuditBusinessCascadeDelete
		entry.Description = fmt.Sprintf("Business %s deleted with its products, orders and funds", plan.BusinessName)
	}
	entry.Metadata = database.NewJSONB(metadata)

	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("business_id", plan.BusinessID).Error("Failed to write cascade audit entry")
	}

	if execErr != nil {
		return
	}

	if s.graph != nil {
		if _, err := s.graph.DeleteBusiness(ctx, plan.BusinessID); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("business_id", plan.BusinessID).Warn("Failed to remove business from graph")
		}
	}
	if s.emitter != nil {
		_ = s.emitter.EmitBusinessCascadeDeleted(ctx, actor, result)
	}
}
