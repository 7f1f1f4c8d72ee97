// Package workers runs bounded fan-out work.
package workers

import (
	"context"
	"sync"
)

const DefaultConcurrency = 8

type indexed[T any] struct {
	index int
	item  T
}

// Map calls fn for every item with at most concurrency calls in flight and
// returns the results in input order. Items not started before ctx is done
// keep the zero value of R.
func Map[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) R) []R {
	return MapOr(ctx, items, concurrency, func(error) R {
		var zero R
		return zero
	}, fn)
}

// MapOr is Map with an explicit result for items that never started because
// ctx was done; unstarted receives the context error.
func MapOr[T, R any](ctx context.Context, items []T, concurrency int, unstarted func(error) R, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	started := make([]bool, len(items))
	if len(items) == 0 {
		return results
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	itemChan := make(chan indexed[T])
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range itemChan {
				// each worker owns distinct indexes, so no lock is needed
				results[it.index] = fn(ctx, it.item)
			}
		}()
	}

feed:
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case itemChan <- indexed[T]{index: i, item: item}:
			started[i] = true
		}
	}
	close(itemChan)

	wg.Wait()
	for i := range results {
		if started[i] {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		results[i] = unstarted(err)
	}
	return results
}
