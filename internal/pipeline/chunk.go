package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// upsertChunked writes items in chunks of size, the items of one chunk
// concurrently. A failing item does not stop its siblings or later chunks;
// every failure is returned joined. It returns how many items were written.
func upsertChunked[T any](ctx context.Context, items []T, size int, upsert func(context.Context, T) error) (int, error) {
	if size <= 0 {
		size = defaultChunkSize
	}
	var written atomic.Int64
	var errs []error
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		end := min(start+size, len(items))
		chunkErrs := make([]error, end-start)

		var g errgroup.Group
		for i, item := range items[start:end] {
			g.Go(func() error {
				if err := upsert(ctx, item); err != nil {
					chunkErrs[i] = err
					return nil
				}
				written.Add(1)
				return nil
			})
		}
		_ = g.Wait()
		errs = append(errs, chunkErrs...)
	}
	return int(written.Load()), errors.Join(errs...)
}
