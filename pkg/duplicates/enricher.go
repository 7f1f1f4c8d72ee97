package duplicates

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/joiedevivre/jasmine/pkg/metrics"
	"github.com/joiedevivre/jasmine/pkg/models"
	"github.com/joiedevivre/jasmine/pkg/workers"
	"github.com/samber/mo"
	"golang.org/x/time/rate"
)

// DependentCounter counts rows that depend on an account, one count name at a time.
type DependentCounter interface {
	CountDependents(ctx context.Context, count string, accountID string) (int, error)
}

var (
	ClientCounts   = []string{models.CountContacts, models.CountFundsCreated, models.CountContributions, models.CountPosts}
	BusinessCounts = []string{models.CountProducts, models.CountOrders, models.CountFunds}
)

type countTask struct {
	accountID string
	count     string
}

// Enricher attaches dependent counts to candidate accounts. A failed count is
// recorded as 0 and listed in the snapshot's FailedCounts; it never aborts the
// candidate or the scan.
type Enricher struct {
	counter     DependentCounter
	concurrency int
	limiter     *rate.Limiter
	logger      ectologger.Logger
}

// NewEnricher bounds concurrent count queries to concurrency and, when
// queriesPerSecond > 0, their rate.
func NewEnricher(counter DependentCounter, concurrency int, queriesPerSecond float64, logger ectologger.Logger) *Enricher {
	var limiter *rate.Limiter
	if queriesPerSecond > 0 {
		burst := concurrency
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(queriesPerSecond), burst)
	}

	return &Enricher{
		counter:     counter,
		concurrency: concurrency,
		limiter:     limiter,
		logger:      logger,
	}
}

// Enrich fills snapshot.Counts for every snapshot using the given count names.
func (e *Enricher) Enrich(ctx context.Context, snapshots []models.AccountSnapshot, counts []string) {
	tasks := make([]countTask, 0, len(snapshots)*len(counts))
	for _, s := range snapshots {
		for _, c := range counts {
			tasks = append(tasks, countTask{accountID: s.AccountID, count: c})
		}
	}

	// counts skipped because ctx ended are failures, not zeros
	skipped := func(err error) mo.Result[int] { return mo.Err[int](err) }
	results := workers.MapOr(ctx, tasks, e.concurrency, skipped, func(ctx context.Context, t countTask) mo.Result[int] {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return mo.Err[int](err)
			}
		}
		return mo.TupleToResult(e.counter.CountDependents(ctx, t.count, t.accountID))
	})

	byAccount := make(map[string]int, len(snapshots))
	for i := range snapshots {
		snapshots[i].Counts = make(map[string]int, len(counts))
		snapshots[i].FailedCounts = nil
		byAccount[snapshots[i].AccountID] = i
	}

	for i, t := range tasks {
		s := &snapshots[byAccount[t.accountID]]
		n, err := results[i].Get()
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"account_id": t.accountID,
				"count":      t.count,
			}).Warn("Dependent count failed, recording 0")
			metrics.EnrichmentFailures.WithLabelValues(t.count).Inc()
			s.FailedCounts = append(s.FailedCounts, t.count)
		}
		s.Counts[t.count] = n
	}
}
