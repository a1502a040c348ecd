package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

func TestUpsertRejectsEmptyVector(t *testing.T) {
	idx := New(memory.New())
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	err := idx.Upsert(context.Background(), tc, "mem-1", "cheap", nil, "hash")
	require.Error(t, err)
}

func TestSearchNeverMixesModelSpaces(t *testing.T) {
	idx := New(memory.New())
	tc := tenant.New("acme", "actor", nil, "", time.Time{})

	require.NoError(t, idx.Upsert(context.Background(), tc, "mem-1", "cheap", []float32{1, 0, 0}, "h1"))
	require.NoError(t, idx.Upsert(context.Background(), tc, "mem-2", "heavy", []float32{0, 1, 0}, "h2"))

	cheapHits, err := idx.Search(context.Background(), tc, "cheap", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, cheapHits, 1)
	require.Equal(t, "mem-1", cheapHits[0].MemoryID)

	heavyHits, err := idx.Search(context.Background(), tc, "heavy", []float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, heavyHits, 1)
	require.Equal(t, "mem-2", heavyHits[0].MemoryID)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	idx := New(memory.New())
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	_, err := idx.Search(context.Background(), tc, "cheap", nil, 5)
	require.Error(t, err)
}

func TestDeleteRemovesEveryModelsEmbedding(t *testing.T) {
	idx := New(memory.New())
	tc := tenant.New("acme", "actor", nil, "", time.Time{})

	require.NoError(t, idx.Upsert(context.Background(), tc, "mem-1", "cheap", []float32{1, 0}, "h1"))
	require.NoError(t, idx.Upsert(context.Background(), tc, "mem-1", "heavy", []float32{0, 1}, "h2"))
	require.NoError(t, idx.Delete(context.Background(), tc, "mem-1"))

	hits, err := idx.Search(context.Background(), tc, "cheap", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
