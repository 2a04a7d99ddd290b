package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	s := New("what drives coral bleaching", map[string]any{"k": 1})

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "what drives coral bleaching", s.Query)
	assert.Empty(t, s.FinalConfidenceVector)
	assert.Empty(t, s.Trace)
	assert.Equal(t, 1, s.OperationalParams()["k"])

	other := New("same query", nil)
	assert.NotEqual(t, s.ID, other.ID)
	assert.NotNil(t, other.OperationalParams())
}

func TestSeededRandIsReproducible(t *testing.T) {
	a := New("q", map[string]any{"random_seed": 42})
	b := New("q", map[string]any{"random_seed": 42})

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Rand().Int63(), b.Rand().Int63())
	}

	// float64 seeds work too, which is how JSON-decoded params arrive.
	c := New("q", map[string]any{"random_seed": float64(42)})
	d := New("q", map[string]any{"random_seed": 42})
	assert.Equal(t, d.Rand().Int63(), c.Rand().Int63())
}

func TestMergeContextConcatenatesArrays(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"ids": []any{"a", "b"}})
	s.MergeContext(map[string]any{"ids": []any{"c"}})

	assert.Equal(t, []any{"a", "b", "c"}, s.AccumulatedContext["ids"])
}

func TestMergeContextShallowMergesMaps(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"stats": map[string]any{"nodes": 3, "edges": 2}})
	s.MergeContext(map[string]any{"stats": map[string]any{"edges": 5, "communities": 1}})

	merged := s.AccumulatedContext["stats"].(map[string]any)
	assert.Equal(t, 3, merged["nodes"])
	assert.Equal(t, 5, merged["edges"])
	assert.Equal(t, 1, merged["communities"])
}

func TestMergeContextKeepsPreviousScalar(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"phase": "decomposition"})
	s.MergeContext(map[string]any{"phase": "hypothesis"})

	assert.Equal(t, "hypothesis", s.AccumulatedContext["phase"])
	assert.Equal(t, "decomposition", s.AccumulatedContext["phase_previous"])
}

func TestMergeContextTypeMismatchFallsBackToScalarPolicy(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"value": []any{"a"}})
	s.MergeContext(map[string]any{"value": "plain"})

	assert.Equal(t, "plain", s.AccumulatedContext["value"])
	assert.Equal(t, []any{"a"}, s.AccumulatedContext["value_previous"])
}

func TestStageContext(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"evidence_stage": map[string]any{"created": 4}})

	ctx := s.StageContext("evidence_stage")
	require.NotNil(t, ctx)
	assert.Equal(t, 4, ctx["created"])

	assert.Nil(t, s.StageContext("missing_stage"))
}

func TestDeepCopyIsIndependent(t *testing.T) {
	s := New("q", map[string]any{"random_seed": 7})
	s.FinalAnswer = "draft"
	s.MergeContext(map[string]any{"ids": []any{"a"}})
	s.AppendTrace(TraceRecord{StageNumber: 1, StageName: "initialization_stage"})

	snapshot, err := s.DeepCopy()
	require.NoError(t, err)

	s.FinalAnswer = "revised"
	s.MergeContext(map[string]any{"ids": []any{"b"}})
	s.AppendTrace(TraceRecord{StageNumber: 2, StageName: "decomposition_stage"})

	assert.Equal(t, "draft", snapshot.FinalAnswer)
	assert.Equal(t, []any{"a"}, snapshot.AccumulatedContext["ids"])
	assert.Len(t, snapshot.Trace, 1)

	// The snapshot shares the live generator so restores do not replay draws.
	assert.Same(t, s.Rand(), snapshot.Rand())
}

func TestRestoreFrom(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"phase": "one"})
	snapshot, err := s.DeepCopy()
	require.NoError(t, err)

	s.FinalAnswer = "late answer"
	s.MergeContext(map[string]any{"phase": "two"})
	s.AppendTrace(TraceRecord{StageNumber: 3})

	rng := s.Rand()
	require.NoError(t, s.RestoreFrom(snapshot))

	assert.Empty(t, s.FinalAnswer)
	assert.Equal(t, "one", s.AccumulatedContext["phase"])
	assert.Empty(t, s.Trace)
	assert.Same(t, rng, s.Rand())
}

func TestRestoreFromKeepsSnapshotIndependent(t *testing.T) {
	s := New("q", nil)
	s.MergeContext(map[string]any{"phase": "one"})
	snapshot, err := s.DeepCopy()
	require.NoError(t, err)

	require.NoError(t, s.RestoreFrom(snapshot))

	// Writes after a restore must not reach back into the stored snapshot,
	// or a later rollback would restore corrupted state.
	s.MergeContext(map[string]any{"evidence_stage": map[string]any{"hits": 3}})
	s.AppendTrace(TraceRecord{StageNumber: 4})

	assert.NotContains(t, snapshot.AccumulatedContext, "evidence_stage")
	assert.Empty(t, snapshot.Trace)
	assert.Equal(t, "one", snapshot.AccumulatedContext["phase"])

	// A second restore from the same snapshot still yields the clean state.
	require.NoError(t, s.RestoreFrom(snapshot))
	assert.NotContains(t, s.AccumulatedContext, "evidence_stage")
	assert.Empty(t, s.Trace)
}
