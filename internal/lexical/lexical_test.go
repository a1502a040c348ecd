package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
)

func TestSearchRanksByTermOverlap(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	_, err := store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "the build broke because of a null pointer exception"})
	require.NoError(t, err)
	_, err = store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "unrelated content about quarterly revenue"})
	require.NoError(t, err)

	s := New(store)
	hits, err := s.Search(ctx, "acme", "null pointer exception", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSearchReturnsNothingForEmptyQuery(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "some content"})
	require.NoError(t, err)

	s := New(store)
	hits, err := s.Search(ctx, "acme", "   ", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchRebuildsIndexWhenDocumentCountChanges(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "alpha beta"})
	require.NoError(t, err)

	s := New(store)
	_, err = s.Search(ctx, "acme", "alpha", 10)
	require.NoError(t, err)

	_, err = store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "alpha gamma"})
	require.NoError(t, err)

	hits, err := s.Search(ctx, "acme", "alpha", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchIsolatesTenants(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	_, err := store.CreateRecord(ctx, storage.Record{Tenant: "acme", Content: "shared keyword here"})
	require.NoError(t, err)
	_, err = store.CreateRecord(ctx, storage.Record{Tenant: "globex", Content: "shared keyword here too"})
	require.NoError(t, err)

	s := New(store)
	hits, err := s.Search(ctx, "acme", "shared keyword", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
