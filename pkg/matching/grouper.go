package matching

import (
	"sort"

	"github.com/joiedevivre/jasmine/pkg/models"
)

// Candidate is one set of records a rule considers the same person or business.
type Candidate[T models.Identity] struct {
	Criteria   []string
	Confidence models.Confidence
	Records    []T
}

func (c Candidate[T]) AccountIDs() []string {
	ids := make([]string, len(c.Records))
	for i, r := range c.Records {
		ids[i] = r.AccountID()
	}
	return ids
}

// Claimed is the set of account ids already placed in a candidate during one
// pass over a domain.
type Claimed map[string]struct{}

func (c Claimed) Has(id string) bool {
	_, ok := c[id]
	return ok
}

func (c Claimed) Add(ids ...string) {
	for _, id := range ids {
		c[id] = struct{}{}
	}
}

// Group runs rules in order over records sorted oldest first. A record claimed
// by an earlier rule is not offered to later ones.
func Group[T models.Identity](records []T, rules []Rule[T]) []Candidate[T] {
	ordered := make([]T, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt().Before(ordered[j].CreatedAt())
	})

	claimed := Claimed{}
	var out []Candidate[T]

	for _, rule := range rules {
		unclaimed := make([]T, 0, len(ordered))
		for _, rec := range ordered {
			if !claimed.Has(rec.AccountID()) {
				unclaimed = append(unclaimed, rec)
			}
		}

		for _, set := range rule.Partition(unclaimed) {
			c := Candidate[T]{
				Criteria:   rule.Criteria(),
				Confidence: rule.Confidence(),
				Records:    set,
			}
			claimed.Add(c.AccountIDs()...)
			out = append(out, c)
		}
	}
	return out
}
