// Package worker runs a handler over a batch of items with a bounded number
// of goroutines.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"igharvest/pkg/logger"
)

// Handler processes the item at index. It must return a result even when
// ctx is done so every item produces exactly one result.
type Handler[T, R any] func(ctx context.Context, index int, item T) R

// Map runs handler over items with at most limit items in flight and
// returns the results in input order. With limit == 1 items are handled
// strictly one after another in input order.
func Map[T, R any](ctx context.Context, limit int, items []T, handler Handler[T, R], log logger.Logger) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	log.DebugWithFields("Starting batch", map[string]interface{}{
		"items": len(items),
		"limit": limit,
	})
	start := time.Now()

	// handlers never fail the group; a plain Group keeps ctx untouched
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			results[i] = handler(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()

	log.DebugWithFields("Batch finished", map[string]interface{}{
		"items":    len(items),
		"duration": time.Since(start),
	})
	return results
}
