// Package cascade deletes a business together with the rows that depend on
// it, behind a three-stage admin confirmation.
package cascade

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/tracing"
)

type PlanStore interface {
	GetBusiness(ctx context.Context, businessID string) (*models.BusinessAccount, error)
	ListProductIDs(ctx context.Context, businessID string) ([]string, error)
	ListOrderIDs(ctx context.Context, businessID string) ([]string, error)
	ListCategoryIDs(ctx context.Context, ownerUserID string) ([]string, error)
	ListBusinessFunds(ctx context.Context, businessID string) ([]models.FundImpact, error)
}

type Planner struct {
	store  PlanStore
	logger ectologger.Logger
}

func NewPlanner(store PlanStore, logger ectologger.Logger) *Planner {
	return &Planner{store: store, logger: logger}
}

// Build reads everything a cascade of businessID would touch.
func (p *Planner) Build(ctx context.Context, businessID string) (*models.CascadePlan, error) {
	ctx, span := tracing.StartSpan(ctx, "cascade.Planner.Build")
	defer span.End()

	business, err := p.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	plan := &models.CascadePlan{
		BusinessID:   business.ID,
		BusinessName: business.BusinessName,
		OwnerUserID:  business.UserID,
	}

	if plan.ProductIDs, err = p.store.ListProductIDs(ctx, businessID); err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if plan.OrderIDs, err = p.store.ListOrderIDs(ctx, businessID); err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	if business.UserID != "" {
		if plan.CategoryIDs, err = p.store.ListCategoryIDs(ctx, business.UserID); err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
	}

	funds, err := p.store.ListBusinessFunds(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to load funds: %w", err)
	}
	plan.DeletableFunds, plan.DisassociatedFunds = PartitionFunds(funds)

	counts := plan.Counts()
	tracing.SetAttributes(span, counts)
	p.logger.WithContext(ctx).WithField("business_id", businessID).WithFields(map[string]any{
		"products":            counts[models.ConsequenceProducts],
		"orders":              counts[models.ConsequenceOrders],
		"categories":          counts[models.ConsequenceCategories],
		"funds_deleted":       counts[models.ConsequenceFundsDeleted],
		"funds_disassociated": counts[models.ConsequenceFundsDisassociated],
	}).Info("Built cascade plan")

	return plan, nil
}

// PartitionFunds splits funds into those safe to delete (no contributions)
// and those that must only lose their business reference.
func PartitionFunds(funds []models.FundImpact) (deletable, disassociated []models.FundImpact) {
	deletable = []models.FundImpact{}
	disassociated = []models.FundImpact{}
	seen := make(map[string]struct{}, len(funds))

	for _, f := range funds {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}

		if f.ContributionCount > 0 {
			disassociated = append(disassociated, f)
		} else {
			deletable = append(deletable, f)
		}
	}
	return deletable, disassociated
}
