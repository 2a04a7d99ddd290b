package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
)

func TestNodeAvgConfidence(t *testing.T) {
	// Stored overall average wins.
	assert.Equal(t, 0.8, nodeAvgConfidence(map[string]any{
		"confidence_overall_avg":       0.8,
		"confidence_empirical_support": 0.1,
	}))

	// Without the average, the present components are averaged.
	assert.InDelta(t, 0.5, nodeAvgConfidence(map[string]any{
		"confidence_empirical_support": 0.4,
		"confidence_theoretical_basis": 0.6,
	}), 1e-9)

	// Nothing stored means zero.
	assert.Equal(t, 0.0, nodeAvgConfidence(map[string]any{}))
}

func hypothesisNode(id string, impact, avg float64) models.RetrievedNode {
	return models.RetrievedNode{
		ID:     id,
		Labels: []string{"Node", "HYPOTHESIS"},
		Properties: map[string]any{
			"id":                     id,
			"label":                  "Hypothesis " + id,
			"type":                   "HYPOTHESIS",
			"metadata_impact_score":  impact,
			"confidence_overall_avg": avg,
		},
	}
}

func TestComposeSectionRanksAndLimitsKeyNodes(t *testing.T) {
	s := NewCompositionStage(Deps{})
	sg := models.ExtractedSubgraphData{
		Name: "high_confidence_core",
		Nodes: []models.RetrievedNode{
			hypothesisNode("a", 0.9, 0.7),
			hypothesisNode("b", 0.8, 0.7),
			hypothesisNode("c", 0.7, 0.7),
			hypothesisNode("d", 0.95, 0.7),
			// Below both bars: never a key node.
			hypothesisNode("e", 0.1, 0.2),
			// Eligible type filter: root nodes never carry claims.
			{ID: "root", Properties: map[string]any{
				"type": "ROOT", "metadata_impact_score": 1.0, "confidence_overall_avg": 1.0,
			}},
		},
	}

	section, citations := s.composeSection(sg)

	assert.Equal(t, "Findings: high_confidence_core", section.Title)
	assert.Equal(t, []string{"d", "a", "b"}, section.ReferencedNodeIDs)
	require.Len(t, citations, 3)
	assert.Equal(t, "Node-d", citations[0].ID)
	assert.Equal(t, "Hypothesis d", citations[0].Text)
	assert.Contains(t, section.Content, "covers 6 nodes")
}

func TestExecuteComposesReportAndDeduplicatesCitations(t *testing.T) {
	s := NewCompositionStage(Deps{})
	sess := session.New("what limits coral recovery", nil)
	sess.AppendTrace(session.TraceRecord{StageNumber: 1, StageName: NameInitialization, Summary: "root created"})

	shared := hypothesisNode("shared", 0.9, 0.8)
	sess.MergeContext(map[string]any{
		NameSubgraphExtraction: map[string]any{
			"subgraphs": []models.ExtractedSubgraphData{
				{Name: "first", Nodes: []models.RetrievedNode{shared}},
				{Name: "second", Nodes: []models.RetrievedNode{shared}},
			},
		},
	})

	out, err := s.Execute(context.Background(), sess)
	require.NoError(t, err)
	assert.True(t, out.Success)

	payload, ok := out.ContextUpdate[NameComposition].(map[string]any)
	require.True(t, ok)
	composed, ok := payload["composed_output"].(models.ComposedOutput)
	require.True(t, ok)
	assert.Len(t, composed.Sections, 2)
	// The same node cited from two subgraphs appears once.
	require.Len(t, composed.Citations, 1)
	assert.Equal(t, "Node-shared", composed.Citations[0].ID)

	require.NotEmpty(t, sess.FinalAnswer)
	assert.True(t, strings.HasPrefix(sess.FinalAnswer, "Research Synthesis: what limits coral recovery"))
	assert.Contains(t, sess.FinalAnswer, "## Findings: first")
	assert.Contains(t, sess.FinalAnswer, "## Citations")
	assert.Contains(t, sess.FinalAnswer, "## Appendix")
}

func TestDecodeSubgraphsHandlesRestoredMapShape(t *testing.T) {
	// After a checkpoint restore the payload arrives as generic JSON maps.
	restored := map[string]any{
		"subgraphs": []any{
			map[string]any{
				"name": "restored_pass",
				"nodes": []any{
					map[string]any{"id": "n1", "properties": map[string]any{"label": "x"}},
				},
				"edges": []any{},
			},
		},
	}

	subgraphs := decodeSubgraphs(restored)
	require.Len(t, subgraphs, 1)
	assert.Equal(t, "restored_pass", subgraphs[0].Name)
	require.Len(t, subgraphs[0].Nodes, 1)
	assert.Equal(t, "n1", subgraphs[0].Nodes[0].ID)

	assert.Nil(t, decodeSubgraphs(nil))
	assert.Nil(t, decodeSubgraphs(map[string]any{}))
}

func TestTraceAppendixIncludesErrors(t *testing.T) {
	sess := session.New("q", nil)
	assert.Empty(t, traceAppendix(sess))

	sess.AppendTrace(session.TraceRecord{StageNumber: 2, StageName: NameDecomposition, Summary: "ok"})
	sess.AppendTrace(session.TraceRecord{StageNumber: 3, StageName: NameHypothesis, Summary: "retried", Error: "transient store failure"})

	appendix := traceAppendix(sess)
	assert.Contains(t, appendix, NameDecomposition)
	assert.Contains(t, appendix, "[error: transient store failure]")
}
