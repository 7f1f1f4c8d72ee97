package duplicates

import (
	"sort"

	"github.com/joiedevivre/jasmine/pkg/models"
)

// RankAccounts orders snapshots best survivor first: verified businesses
// before unverified (when preferVerified), then most dependent rows, then
// oldest. The input slice is not modified.
func RankAccounts(snapshots []models.AccountSnapshot, preferVerified bool) []models.AccountSnapshot {
	ranked := make([]models.AccountSnapshot, len(snapshots))
	copy(ranked, snapshots)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if preferVerified && a.IsVerified != b.IsVerified {
			return a.IsVerified
		}
		if ta, tb := a.Total(), b.Total(); ta != tb {
			return ta > tb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return ranked
}
