package matching

import (
	"github.com/joiedevivre/jasmine/pkg/models"
)

// Rule partitions records into candidate duplicate sets. Every returned set
// has at least two records and no record appears in two sets.
type Rule[T models.Identity] interface {
	Criteria() []string
	Confidence() models.Confidence
	Partition(records []T) [][]T
}

// KeyRule groups records that share an exact derived key.
type KeyRule[T models.Identity] struct {
	criteria   []string
	confidence models.Confidence
	key        func(T) string
	minLen     int
}

func NewKeyRule[T models.Identity](criteria []string, confidence models.Confidence, minLen int, key func(T) string) *KeyRule[T] {
	if minLen < 1 {
		minLen = 1
	}
	return &KeyRule[T]{
		criteria:   criteria,
		confidence: confidence,
		key:        key,
		minLen:     minLen,
	}
}

func (r *KeyRule[T]) Criteria() []string            { return r.criteria }
func (r *KeyRule[T]) Confidence() models.Confidence { return r.confidence }

func (r *KeyRule[T]) Partition(records []T) [][]T {
	keys, buckets := GroupByKey(records, r.key, r.minLen)

	var out [][]T
	for _, k := range keys {
		if len(buckets[k]) >= 2 {
			out = append(out, buckets[k])
		}
	}
	return out
}

// GroupByKey buckets records by key, dropping keys shorter than minLen runes.
// Keys are returned in first-seen order and buckets keep input order.
func GroupByKey[T any](records []T, key func(T) string, minLen int) ([]string, map[string][]T) {
	var keys []string
	buckets := make(map[string][]T)

	for _, rec := range records {
		k := key(rec)
		if k == "" || len([]rune(k)) < minLen {
			continue
		}
		if _, seen := buckets[k]; !seen {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], rec)
	}
	return keys, buckets
}

// SimilarityRule links records whose keys score at or above threshold and
// emits each connected cluster.
type SimilarityRule[T models.Identity] struct {
	criteria   []string
	confidence models.Confidence
	key        func(T) string
	threshold  float64
	score      func(a, b string) float64
}

func NewSimilarityRule[T models.Identity](criteria []string, confidence models.Confidence, threshold float64, key func(T) string) *SimilarityRule[T] {
	return &SimilarityRule[T]{
		criteria:   criteria,
		confidence: confidence,
		key:        key,
		threshold:  threshold,
		score:      JaroWinkler,
	}
}

func (r *SimilarityRule[T]) Criteria() []string            { return r.criteria }
func (r *SimilarityRule[T]) Confidence() models.Confidence { return r.confidence }

func (r *SimilarityRule[T]) Partition(records []T) [][]T {
	var (
		items []T
		keys  []string
	)
	for _, rec := range records {
		if k := r.key(rec); k != "" {
			items = append(items, rec)
			keys = append(keys, k)
		}
	}

	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if r.score(keys[i], keys[j]) < r.threshold {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			// keep the earliest index as root so clusters order by first member
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	var roots []int
	clusters := make(map[int][]T)
	for i, rec := range items {
		root := find(i)
		if _, ok := clusters[root]; !ok {
			roots = append(roots, root)
		}
		clusters[root] = append(clusters[root], rec)
	}

	var out [][]T
	for _, root := range roots {
		if len(clusters[root]) >= 2 {
			out = append(out, clusters[root])
		}
	}
	return out
}
