package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupStatus_CanTransition(t *testing.T) {
	assert.True(t, GroupStatusPending.CanTransition(GroupStatusReviewed))
	assert.True(t, GroupStatusPending.CanTransition(GroupStatusDismissed))
	assert.True(t, GroupStatusReviewed.CanTransition(GroupStatusMerged))
	assert.False(t, GroupStatusReviewed.CanTransition(GroupStatusPending))
	assert.False(t, GroupStatusMerged.CanTransition(GroupStatusDismissed))
	assert.False(t, GroupStatusDismissed.CanTransition(GroupStatusReviewed))
}

func TestCascadePlan_Consequences(t *testing.T) {
	t.Run("empty plan only asks for the business record", func(t *testing.T) {
		assert.Equal(t, []string{ConsequenceBusinessRecord}, CascadePlan{}.Consequences())
	})

	t.Run("non-empty categories are listed in order", func(t *testing.T) {
		plan := CascadePlan{
			ProductIDs:         []string{"p1"},
			DisassociatedFunds: []FundImpact{{ID: "f1", ContributionCount: 2}},
		}
		assert.Equal(t, []string{
			ConsequenceProducts,
			ConsequenceFundsDisassociated,
			ConsequenceBusinessRecord,
		}, plan.Consequences())
	})
}

func TestAdminRole_Satisfies(t *testing.T) {
	assert.True(t, RoleSuperAdmin.Satisfies(RoleAdmin))
	assert.True(t, RoleAdmin.Satisfies(RoleAdmin))
	assert.False(t, RoleAdmin.Satisfies(RoleSuperAdmin))
	assert.False(t, AdminRole("").Satisfies(RoleAdmin))
}

func TestAccountSnapshot_Total(t *testing.T) {
	s := AccountSnapshot{Counts: map[string]int{CountContacts: 3, CountPosts: 2}}
	assert.Equal(t, 5, s.Total())
}
