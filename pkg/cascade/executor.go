package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/metrics"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

var (
	ErrCascadeFailed        = errors.New("cascade failed")
	ErrBusinessDeleteFailed = errors.New("business record could not be deleted")
)

// DeleteStore removes or detaches rows by id. Methods are only called with
// non-empty id lists.
type DeleteStore interface {
	DeleteProductRatings(ctx context.Context, productIDs []string) (int64, error)
	DeleteProducts(ctx context.Context, productIDs []string) (int64, error)
	DeleteCategories(ctx context.Context, categoryIDs []string) (int64, error)
	DisassociateFunds(ctx context.Context, fundIDs []string) (int64, error)
	DeleteFundComments(ctx context.Context, fundIDs []string) (int64, error)
	DeleteFundActivities(ctx context.Context, fundIDs []string) (int64, error)
	DeleteFunds(ctx context.Context, fundIDs []string) (int64, error)
	DeleteOrders(ctx context.Context, orderIDs []string) (int64, error)
	DeleteBusiness(ctx context.Context, businessID string) (int64, error)
}

// TxRunner runs fn in one transaction; stores called with the ctx passed to
// fn take part in it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ProgressFunc func(models.CascadeProgress)

// Step names, in execution order.
const (
	StepProductRatings = "product_ratings"
	StepProducts       = "products"
	StepCategories     = "categories"
	StepFundsDetach    = "funds_disassociate"
	StepFundsDelete    = "funds_delete"
	StepOrders         = "orders"
	StepBusiness       = "business_record"
)

type step struct {
	name    string
	percent int
	label   string
	run     func(ctx context.Context, plan *models.CascadePlan) error
}

type Executor struct {
	store         DeleteStore
	tx            TxRunner
	transactional bool
	logger        ectologger.Logger
}

// NewExecutor builds an executor. With transactional set, steps up to and
// including order deletion share one transaction that commits before the
// business row is removed; otherwise each statement commits on its own.
func NewExecutor(store DeleteStore, tx TxRunner, transactional bool, logger ectologger.Logger) *Executor {
	return &Executor{
		store:         store,
		tx:            tx,
		transactional: transactional && tx != nil,
		logger:        logger,
	}
}

func (e *Executor) Transactional() bool {
	return e.transactional
}

func (e *Executor) dependentSteps() []step {
	return []step{
		{StepProductRatings, 15, "Deleting product ratings", func(ctx context.Context, p *models.CascadePlan) error {
			return e.each(ctx, p.ProductIDs, e.store.DeleteProductRatings)
		}},
		{StepProducts, 30, "Deleting products", func(ctx context.Context, p *models.CascadePlan) error {
			return e.each(ctx, p.ProductIDs, e.store.DeleteProducts)
		}},
		{StepCategories, 40, "Deleting categories", func(ctx context.Context, p *models.CascadePlan) error {
			return e.each(ctx, p.CategoryIDs, e.store.DeleteCategories)
		}},
		{StepFundsDetach, 55, "Detaching funds with contributions", func(ctx context.Context, p *models.CascadePlan) error {
			return e.each(ctx, p.DisassociatedFundIDs(), e.store.DisassociateFunds)
		}},
		{StepFundsDelete, 70, "Deleting funds without contributions", func(ctx context.Context, p *models.CascadePlan) error {
			ids := p.DeletableFundIDs()
			if err := e.each(ctx, ids, e.store.DeleteFundComments); err != nil {
				return err
			}
			if err := e.each(ctx, ids, e.store.DeleteFundActivities); err != nil {
				return err
			}
			return e.each(ctx, ids, e.store.DeleteFunds)
		}},
		{StepOrders, 85, "Deleting orders", func(ctx context.Context, p *models.CascadePlan) error {
			return e.each(ctx, p.OrderIDs, e.store.DeleteOrders)
		}},
	}
}

func (e *Executor) each(ctx context.Context, ids []string, fn func(context.Context, []string) (int64, error)) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := fn(ctx, ids)
	return err
}

// Execute runs the cascade for plan. It ignores cancellation of ctx: once the
// first statement is issued the sequence always runs to completion or to its
// first failure. Progress is reported after every step, skipped or not.
func (e *Executor) Execute(ctx context.Context, plan *models.CascadePlan, progress ProgressFunc) (models.CascadeResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "cascade.Executor.Execute")
	defer span.End()

	if progress == nil {
		progress = func(models.CascadeProgress) {}
	}

	result := models.CascadeResult{
		BusinessID:    plan.BusinessID,
		Counts:        plan.Counts(),
		Transactional: e.transactional,
	}
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"business_id":   plan.BusinessID,
		"transactional": e.transactional,
	})

	runDependents := func(ctx context.Context) error {
		for _, s := range e.dependentSteps() {
			started := time.Now()
			if err := s.run(ctx, plan); err != nil {
				log.WithError(err).WithField("step", s.name).Error("Cascade step failed")
				return fmt.Errorf("%w at %s: %w", ErrCascadeFailed, s.name, err)
			}
			metrics.CascadeStepDuration.WithLabelValues(s.name).Observe(time.Since(started).Seconds())
			result.LastStep = s.name
			progress(models.CascadeProgress{Percent: s.percent, ActionLabel: s.label})
		}
		return nil
	}

	var err error
	if e.transactional {
		err = e.tx.WithTx(ctx, runDependents)
		if err != nil && !errors.Is(err, ErrCascadeFailed) {
			// commit failure
			err = fmt.Errorf("%w: %w", ErrCascadeFailed, err)
		}
		if err != nil {
			// nothing from the rolled back steps persisted
			result.LastStep = ""
		}
	} else {
		err = runDependents(ctx)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return result, err
	}

	started := time.Now()
	deleted, err := e.store.DeleteBusiness(ctx, plan.BusinessID)
	if err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to delete business record")
		progress(models.CascadeProgress{Percent: 0, ActionLabel: "Business record could not be deleted"})
		return result, fmt.Errorf("%w: %w", ErrBusinessDeleteFailed, err)
	}
	metrics.CascadeStepDuration.WithLabelValues(StepBusiness).Observe(time.Since(started).Seconds())
	if deleted == 0 {
		log.Warn("Business record was already gone")
	}

	result.LastStep = StepBusiness
	progress(models.CascadeProgress{Percent: 100, ActionLabel: "Business deleted"})
	log.Info("Cascade completed")
	return result, nil
}
