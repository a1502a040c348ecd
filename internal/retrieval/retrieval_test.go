package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

type fakeDense struct {
	cands []Candidate
	err   error
}

func (f fakeDense) Search(_ context.Context, _ *tenant.Context, _ string, _ []float32, _ int) ([]Candidate, error) {
	return f.cands, f.err
}

type fakeLexical struct {
	cands []Candidate
	err   error
}

func (f fakeLexical) Search(_ context.Context, _, _ string, _ int) ([]Candidate, error) {
	return f.cands, f.err
}

type fakeGraph struct{ cands []Candidate }

func (f fakeGraph) Expand(_ context.Context, _ string, _ []string, _, _ int) ([]Candidate, error) {
	return f.cands, nil
}

type fakeRecords struct{ recs map[string]storage.Record }

func (f fakeRecords) GetMany(_ context.Context, _ string, ids []string) (map[string]storage.Record, error) {
	out := make(map[string]storage.Record, len(ids))
	for _, id := range ids {
		if r, ok := f.recs[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func rec(id string, infoClass storage.InfoClass) storage.Record {
	return storage.Record{ID: id, InfoClass: infoClass, LastAccessedAt: time.Now().UTC()}
}

func TestQueryFusesDenseAndLexicalChannels(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Internal),
	}}
	lexicalHits := make([]Candidate, 6)
	for i := range lexicalHits {
		lexicalHits[i] = Candidate{MemoryID: "a", Score: 0.4}
	}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.5}}},
		fakeLexical{cands: lexicalHits}, // enough confident hits to skip safe-exit
		nil, records, policyguard.New(nil), nil, nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
}

func TestQuerySafeEarlyExitReturnsLexicalOnly(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Internal),
	}}
	eng := New(
		// Dense outranks "a", but embeddings are computed asynchronously and
		// a precise, well-keyworded query should trust the lexical hit it
		// actually has rather than a dense order that can be stale or empty.
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.2}}},
		fakeLexical{cands: []Candidate{{MemoryID: "b", Score: 0.7}}},
		nil, records, policyguard.New(nil), nil, nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{SafeExitThreshold: 5}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.Equal(t, "lexical", resp.EarlyExit)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "b", resp.Results[0].Record.ID)
}

func TestQueryShapesOutContentAboveReadCeiling(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Restricted),
	}}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.8}}},
		fakeLexical{cands: nil},
		nil, records, policyguard.New(nil), nil, nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	tc.Policy.MaxReadClass = tenant.Internal
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	for _, r := range resp.Results {
		require.NotEqual(t, "b", r.Record.ID)
	}
}

func TestQueryDegradesWhenOneChannelErrorsButOthersSucceed(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{"a": rec("a", storage.Internal)}}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}}},
		fakeLexical{err: errors.New("lexical index unavailable")},
		nil, records, policyguard.New(nil), nil, nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)
}

func TestReciprocalRankFusionCombinesListsByRankPosition(t *testing.T) {
	fused := reciprocalRankFusion(60,
		[]Candidate{{MemoryID: "a"}, {MemoryID: "b"}},
		[]Candidate{{MemoryID: "b"}, {MemoryID: "a"}},
	)
	require.Len(t, fused, 2)
	// "a" and "b" both appear in both lists at complementary ranks, so
	// their fused scores tie; the deterministic id-order tiebreak applies.
	require.Equal(t, []string{"a", "b"}, fused)
}

func TestSafeEarlyExitThresholdBoundary(t *testing.T) {
	confident := []Candidate{{Score: 1}, {Score: 1}, {Score: 1}}
	require.True(t, safeEarlyExit(confident, 5))
	require.False(t, safeEarlyExit(confident, 3))
}

type fakeReranker struct {
	order []string
	delay time.Duration
	err   error
}

func (f fakeReranker) Rerank(ctx context.Context, _ *tenant.Context, _ string, _ []storage.Record) ([]string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.order, f.err
}

func TestLearnedRerankFallsBackOnDeadlineExceeded(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Internal),
	}}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.8}}},
		fakeLexical{cands: nil},
		nil, records, policyguard.New(nil),
		fakeReranker{order: []string{"b", "a"}, delay: 100 * time.Millisecond},
		nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{RerankDeadlineMS: 1}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.Equal(t, "a", resp.Results[0].Record.ID)
}

func TestLearnedRerankAppliesOrderWithinDeadline(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Internal),
	}}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.8}}},
		fakeLexical{cands: nil},
		nil, records, policyguard.New(nil),
		fakeReranker{order: []string{"b", "a"}},
		nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{RerankDeadlineMS: 500}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.Equal(t, "b", resp.Results[0].Record.ID)
}

func TestLearnedRerankFallsBackAndFlagsBudgetDenial(t *testing.T) {
	records := fakeRecords{recs: map[string]storage.Record{
		"a": rec("a", storage.Internal),
		"b": rec("b", storage.Internal),
	}}
	eng := New(
		fakeDense{cands: []Candidate{{MemoryID: "a", Score: 0.9}, {MemoryID: "b", Score: 0.8}}},
		fakeLexical{cands: nil},
		nil, records, policyguard.New(nil),
		fakeReranker{err: raeerrors.BudgetExceeded("acme", 1, 0)},
		nil,
	)

	tc := tenant.New("acme", "reader", nil, "", time.Time{})
	resp, err := eng.Query(context.Background(), tc, tenant.RetrievalConfig{RerankDeadlineMS: 500}, "q", "cheap", []float32{1, 0})
	require.NoError(t, err)
	require.Equal(t, "rerank_skipped: budget", resp.DegradationReason)
	require.Equal(t, "a", resp.Results[0].Record.ID)
}
