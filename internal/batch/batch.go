package batch

import (
	"context"
	"sync"
)

// DefaultLimit caps in-flight items for every periodic job. The fixed
// limit is the only backpressure control: there is no dynamic pool.
const DefaultLimit = 10

// ForEachLimit runs fn over items with at most limit in flight at once.
// Item failures are isolated: fn's error is reported through onErr (when
// non-nil) and never stops the remaining items. Returns early only when
// the context is cancelled; items not yet started are skipped.
func ForEachLimit[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) error, onErr func(item T, err error)) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for _, item := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}: // acquire
		}

		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			defer func() { <-sem }() // release

			if err := fn(ctx, it); err != nil && onErr != nil {
				onErr(it, err)
			}
		}(item)
	}

	wg.Wait()
}
