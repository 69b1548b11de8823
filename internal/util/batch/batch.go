// Package batch provides bounded fan-out for per-item work against the
// marketplace API. Items within a batch run concurrently up to a fixed
// limit; every item settles with its own result, one failure never cancels
// its siblings.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the settled outcome for a single item.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// Run executes fn for every id with at most limit concurrent calls and
// returns one result per id, in input order. fn errors are captured per
// item, not propagated.
func Run[T any](ctx context.Context, limit int, ids []string, fn func(ctx context.Context, id string) (T, error)) []Result[T] {
	if limit <= 0 {
		limit = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)

	results := make([]Result[T], len(ids))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			value, err := fn(ctx, id)
			results[i] = Result[T]{ID: id, Value: value, Err: err}
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()
	return results
}

// Chunk splits ids into consecutive groups of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
