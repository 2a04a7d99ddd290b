package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/config"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
)

func TestParseCriteriaAcceptsMapShape(t *testing.T) {
	raw := []any{
		map[string]any{
			"name":               "custom_pass",
			"min_avg_confidence": 0.7,
			"node_types":         []any{"HYPOTHESIS"},
		},
	}

	criteria, err := parseCriteria(raw)
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, "custom_pass", criteria[0].Name)
	assert.Equal(t, 0.7, criteria[0].MinAvgConfidence)
	assert.Equal(t, []string{"HYPOTHESIS"}, criteria[0].NodeTypes)
}

func TestParseCriteriaAcceptsTypedShape(t *testing.T) {
	gap := true
	criteria, err := parseCriteria([]models.SubgraphCriterion{
		{Name: "gaps", IsKnowledgeGap: &gap},
	})
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	require.NotNil(t, criteria[0].IsKnowledgeGap)
	assert.True(t, *criteria[0].IsKnowledgeGap)
}

func TestParseCriteriaRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"empty list", []any{}},
		{"missing name", []any{map[string]any{"min_avg_confidence": 0.5}}},
		{"not a list", map[string]any{"name": "x"}},
		{"scalar", "high_confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCriteria(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestResolveCriteriaFallsBackToDefaults(t *testing.T) {
	cfg := config.Default()
	s := NewSubgraphExtractionStage(Deps{Cfg: cfg})

	// Malformed custom criteria fall back to the built-in plan.
	sess := session.New("q", map[string]any{
		"subgraph_extraction_criteria": []any{map[string]any{"min_avg_confidence": 0.9}},
	})
	criteria := s.resolveCriteria(sess)

	require.Len(t, criteria, 3)
	assert.Equal(t, "high_confidence_core", criteria[0].Name)
	assert.Equal(t, "key_hypotheses_and_support", criteria[1].Name)
	assert.Equal(t, "knowledge_gaps_focus", criteria[2].Name)
	require.NotNil(t, criteria[2].IsKnowledgeGap)
	assert.True(t, *criteria[2].IsKnowledgeGap)

	// Absent parameter also yields the defaults.
	assert.Len(t, s.resolveCriteria(session.New("q", nil)), 3)
}

func TestResolveCriteriaUsesValidCustomList(t *testing.T) {
	cfg := config.Default()
	s := NewSubgraphExtractionStage(Deps{Cfg: cfg})
	sess := session.New("q", map[string]any{
		"subgraph_extraction_criteria": []any{
			map[string]any{"name": "only_hypotheses", "node_types": []any{"HYPOTHESIS"}},
		},
	})

	criteria := s.resolveCriteria(sess)
	require.Len(t, criteria, 1)
	assert.Equal(t, "only_hypotheses", criteria[0].Name)
}
