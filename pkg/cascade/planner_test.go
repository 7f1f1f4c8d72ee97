package cascade

import (
	"context"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanner_ScenarioA(t *testing.T) {
	plan, err := NewPlanner(scenarioA(), testLogger()).Build(context.Background(), "biz-x")
	require.NoError(t, err)

	assert.Equal(t, "Boutique  Éloïse", plan.BusinessName)
	assert.Len(t, plan.ProductIDs, 3)
	assert.Len(t, plan.OrderIDs, 5)
	assert.Equal(t, []string{"cat-1"}, plan.CategoryIDs)
	assert.Len(t, append(plan.DeletableFunds, plan.DisassociatedFunds...), 2)
	assert.Equal(t, []string{"fund-contributed"}, plan.DisassociatedFundIDs())
	assert.Equal(t, []string{"fund-empty"}, plan.DeletableFundIDs())
	assert.Equal(t, "5000", plan.DisassociatedFunds[0].TotalContributed.String())
}

func TestPlanner_UnknownBusiness(t *testing.T) {
	_, err := NewPlanner(newMemoryDB(), testLogger()).Build(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPartitionFunds_Invariant(t *testing.T) {
	faker := gofakeit.New(3)

	for round := 0; round < 50; round++ {
		var funds []models.FundImpact
		for i := 0; i < faker.Number(0, 30); i++ {
			funds = append(funds, models.FundImpact{
				ID:                fmt.Sprintf("f-%d", faker.Number(0, 40)),
				ContributionCount: faker.Number(0, 3),
			})
		}

		deletable, disassociated := PartitionFunds(funds)

		del := map[string]bool{}
		for _, f := range deletable {
			assert.Zero(t, f.ContributionCount)
			del[f.ID] = true
		}
		for _, f := range disassociated {
			assert.False(t, del[f.ID], "fund %s in both partitions", f.ID)
			assert.Positive(t, f.ContributionCount)
		}
	}
}

func TestPartitionFunds_Empty(t *testing.T) {
	deletable, disassociated := PartitionFunds(nil)
	assert.Empty(t, deletable)
	assert.Empty(t, disassociated)
}
