package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reasongraph/reasongraph/internal/models"
)

func TestBuildCriterionClauseEmpty(t *testing.T) {
	clause, params := buildCriterionClause(models.SubgraphCriterion{})
	assert.Empty(t, clause)
	assert.Empty(t, params)
}

func TestBuildCriterionClauseThresholds(t *testing.T) {
	clause, params := buildCriterionClause(models.SubgraphCriterion{
		MinAvgConfidence: 0.6,
		MinImpactScore:   0.5,
	})

	assert.True(t, strings.HasPrefix(clause, "WHERE "))
	assert.Contains(t, clause, "confidence_overall_avg")
	assert.Contains(t, clause, "metadata_impact_score")
	assert.Equal(t, 0.6, params["min_avg_confidence"])
	assert.Equal(t, 0.5, params["min_impact_score"])
}

func TestBuildCriterionClauseFiltersInvalidNodeTypes(t *testing.T) {
	clause, params := buildCriterionClause(models.SubgraphCriterion{
		NodeTypes: []string{"HYPOTHESIS", "BOGUS", "EVIDENCE"},
	})

	assert.Contains(t, clause, "n.type IN $node_types")
	assert.Equal(t, []string{"HYPOTHESIS", "EVIDENCE"}, params["node_types"])

	// All-invalid types produce no condition at all.
	clause, params = buildCriterionClause(models.SubgraphCriterion{NodeTypes: []string{"BOGUS"}})
	assert.Empty(t, clause)
	assert.NotContains(t, params, "node_types")
}

func TestBuildCriterionClauseTags(t *testing.T) {
	clause, params := buildCriterionClause(models.SubgraphCriterion{
		IncludeDisciplinaryTags: []string{"immunology"},
		ExcludeDisciplinaryTags: []string{"economics"},
	})

	assert.Contains(t, clause, "any(tag IN $include_tags")
	assert.Contains(t, clause, "none(tag IN $exclude_tags")
	assert.Equal(t, []string{"immunology"}, params["include_tags"])
	assert.Equal(t, []string{"economics"}, params["exclude_tags"])
}

func TestBuildCriterionClauseKnowledgeGap(t *testing.T) {
	gap := true
	clause, params := buildCriterionClause(models.SubgraphCriterion{IsKnowledgeGap: &gap})
	assert.Contains(t, clause, "metadata_is_knowledge_gap")
	assert.Equal(t, true, params["is_knowledge_gap"])

	// Unset pointer means no filter either way.
	clause, _ = buildCriterionClause(models.SubgraphCriterion{})
	assert.NotContains(t, clause, "metadata_is_knowledge_gap")
}

func TestBuildCriterionClauseJoinsWithAnd(t *testing.T) {
	clause, _ := buildCriterionClause(models.SubgraphCriterion{
		MinAvgConfidence: 0.4,
		LayerIDs:         []string{"layer-1"},
	})
	assert.Equal(t, 1, strings.Count(clause, " AND "))
	assert.Contains(t, clause, "n.metadata_layer_id IN $layer_ids")
}
