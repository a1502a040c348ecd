package reflection

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

type scriptedActor struct {
	drafts []string
	calls  int
}

func (a *scriptedActor) Complete(_ context.Context, _ *tenant.Context, _ string) (string, error) {
	d := a.drafts[a.calls]
	a.calls++
	return d, nil
}

type fixedEvaluator struct{ score float64 }

func (f fixedEvaluator) Score(_ string, _ []Evidence, _ Criteria) float64 { return f.score }

func newTestSink() *audit.Sink {
	return audit.New(memory.New(), nil, 16)
}

func TestReflectAcceptsFirstDraftClearingThreshold(t *testing.T) {
	actor := &scriptedActor{drafts: []string{"prefer small, reviewed changes over large ones"}}
	engine := New(actor, fixedEvaluator{score: 0.9}, policyguard.New(nil), nil)
	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})

	lesson, err := engine.Reflect(context.Background(), tc, tenant.ReflectionConfig{MaxIterations: 2, AcceptanceThreshold: 0.7},
		[]Evidence{{MemoryID: "m1", Content: "change X broke the build", InfoClass: storage.Internal}}, Criteria{})
	require.NoError(t, err)
	require.Equal(t, 1, lesson.Iterations)
	require.Equal(t, []string{"m1"}, lesson.ParentIDs)
}

func TestReflectRevisesOnLowScoreThenAccepts(t *testing.T) {
	actor := &scriptedActor{drafts: []string{"weak draft", "use small commits and always review diffs"}}
	scores := []float64{0.2, 0.85}
	calls := 0
	evaluator := scoreSequencer(func() float64 {
		s := scores[calls]
		calls++
		return s
	})

	engine := New(actor, evaluator, policyguard.New(nil), nil)
	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})

	lesson, err := engine.Reflect(context.Background(), tc, tenant.ReflectionConfig{MaxIterations: 2, AcceptanceThreshold: 0.7},
		[]Evidence{{MemoryID: "m1", Content: "evidence", InfoClass: storage.Internal}}, Criteria{})
	require.NoError(t, err)
	require.Equal(t, 2, lesson.Iterations)
}

type scoreSequencer func() float64

func (f scoreSequencer) Score(_ string, _ []Evidence, _ Criteria) float64 { return f() }

func TestReflectAbandonsWhenThresholdNeverMet(t *testing.T) {
	actor := &scriptedActor{drafts: []string{"draft one", "draft two"}}
	engine := New(actor, fixedEvaluator{score: 0.1}, policyguard.New(nil), nil)
	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})

	_, err := engine.Reflect(context.Background(), tc, tenant.ReflectionConfig{MaxIterations: 2, AcceptanceThreshold: 0.7},
		[]Evidence{{MemoryID: "m1", Content: "evidence", InfoClass: storage.Internal}}, Criteria{})
	require.Error(t, err)
	require.Equal(t, 2, actor.calls)
}

func TestReflectRejectsEmptyEvidence(t *testing.T) {
	engine := New(&scriptedActor{}, fixedEvaluator{score: 1}, policyguard.New(nil), nil)
	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})

	_, err := engine.Reflect(context.Background(), tc, tenant.ReflectionConfig{}, nil, Criteria{})
	require.Error(t, err)
}

func TestReflectAbandonsDraftThatQuotesConfidentialEvidenceVerbatim(t *testing.T) {
	longSecret := strings.Repeat("s", 60)
	actor := &scriptedActor{drafts: []string{"the pattern is: " + longSecret}}
	engine := New(actor, fixedEvaluator{score: 0.95}, policyguard.New(nil), newTestSink())
	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})

	_, err := engine.Reflect(context.Background(), tc, tenant.ReflectionConfig{MaxIterations: 1, AcceptanceThreshold: 0.7},
		[]Evidence{{MemoryID: "m1", Content: longSecret, InfoClass: storage.Confidential}}, Criteria{})
	require.Error(t, err)
}

func TestHeuristicEvaluatorRewardsActionableNovelDrafts(t *testing.T) {
	ev := heuristicEvaluator{}
	evidence := []Evidence{{MemoryID: "m1", Content: "the server crashed because of a null pointer in handler X", InfoClass: storage.Internal}}

	actionable := ev.Score("always validate input before a null pointer reaches the handler", evidence, defaultCriteria())
	copycat := ev.Score("the server crashed because of a null pointer in handler X", evidence, defaultCriteria())
	require.Greater(t, actionable, copycat)
}
