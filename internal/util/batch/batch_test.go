package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSettlesEveryItem(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	results := Run(context.Background(), 2, ids, func(ctx context.Context, id string) (string, error) {
		if id == "c" {
			return "", errors.New("boom")
		}
		return id + "!", nil
	})

	require.Len(t, results, 4)

	// Results come back in input order.
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "a!", results[0].Value)
	require.NoError(t, results[0].Err)

	// One failure does not cancel siblings.
	assert.Error(t, results[2].Err)
	assert.Equal(t, "d!", results[3].Value)
	require.NoError(t, results[3].Err)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var active, peak int64
	var mu sync.Mutex

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	Run(context.Background(), 3, ids, func(ctx context.Context, id string) (int, error) {
		n := atomic.AddInt64(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		atomic.AddInt64(&active, -1)
		return 0, nil
	})

	assert.LessOrEqual(t, peak, int64(3))
}

func TestRunEmptyInput(t *testing.T) {
	results := Run(context.Background(), 5, nil, func(ctx context.Context, id string) (int, error) {
		t.Fatal("fn should not be called")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		size int
		want [][]string
	}{
		{"even split", []string{"a", "b", "c", "d"}, 2, [][]string{{"a", "b"}, {"c", "d"}}},
		{"remainder", []string{"a", "b", "c"}, 2, [][]string{{"a", "b"}, {"c"}}},
		{"single chunk", []string{"a"}, 10, [][]string{{"a"}}},
		{"empty", nil, 2, nil},
		{"zero size", []string{"a"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.ids, tt.size))
		})
	}
}
