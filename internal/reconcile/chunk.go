package reconcile

import (
	"context"
	"time"
)

// Chunk splits items into consecutive slices of at most size elements.
// A non-positive size yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// ForEachChunk calls fn for each chunk in order, sleeping delay between
// chunks. Nothing sleeps when there is only one chunk. The context is checked
// at every chunk boundary; the first error from fn or the context stops the loop.
func ForEachChunk[T any](ctx context.Context, items []T, size int, delay time.Duration, fn func(ctx context.Context, index int, chunk []T) error) error {
	for i, chunk := range Chunk(items, size) {
		if i > 0 {
			if err := Sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
