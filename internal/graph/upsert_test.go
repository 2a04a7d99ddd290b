package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/models"
)

func TestFlattenNodeScalarsAndConfidence(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := models.Node{
		ID:         "hypo-1",
		Label:      "Microbiome diversity drives response",
		Type:       models.NodeTypeHypothesis,
		Confidence: models.NewConfidenceVector(0.8, 0.6, 0.4, 0.2),
		Metadata: models.NodeMetadata{
			QueryContext:     "gut microbiome",
			ImpactScore:      0.75,
			DisciplinaryTags: models.TagSet("immunology", "biology"),
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	props := FlattenNode(n)

	assert.Equal(t, "hypo-1", props["id"])
	assert.Equal(t, "HYPOTHESIS", props["type"])
	assert.Equal(t, 0.8, props["confidence_empirical_support"])
	assert.Equal(t, 0.6, props["confidence_theoretical_basis"])
	assert.Equal(t, 0.4, props["confidence_methodological_rigor"])
	assert.Equal(t, 0.2, props["confidence_consensus_alignment"])
	assert.InDelta(t, 0.5, props["confidence_overall_avg"].(float64), 1e-9)
	assert.Equal(t, 0.75, props["metadata_impact_score"])
	assert.Equal(t, "biology,immunology", props["metadata_disciplinary_tags"])
	assert.Equal(t, "2026-03-01T10:00:00Z", props["created_at"])
	assert.Equal(t, "2026-03-01T10:00:00Z", props["updated_at"])
}

func TestFlattenNodeOmitsEmptyStrings(t *testing.T) {
	props := FlattenNode(models.Node{ID: "n1", Type: models.NodeTypeRoot})

	_, hasDescription := props["metadata_description"]
	assert.False(t, hasDescription)
	_, hasTags := props["metadata_disciplinary_tags"]
	assert.False(t, hasTags)
	_, hasDOI := props["metadata_doi"]
	assert.False(t, hasDOI)
}

func TestFlattenNodeStructuredFieldsAreJSON(t *testing.T) {
	n := models.Node{
		ID:   "ev-1",
		Type: models.NodeTypeEvidence,
		Metadata: models.NodeMetadata{
			Authors: []string{"Okafor", "Lindqvist"},
			Power:   &models.StatisticalPower{Value: 0.8, SampleSize: 240},
			Falsification: &models.FalsificationCriteria{
				Description:        "replication fails",
				TestableConditions: []string{"effect absent in cohort B"},
			},
			AdditionalProperties: map[string]any{
				"source":     "openalex",
				"cited_by":   41,
				"raw_scores": []float64{0.1, 0.2},
			},
		},
	}

	props := FlattenNode(n)

	var authors []string
	require.NoError(t, json.Unmarshal([]byte(props["metadata_authors"].(string)), &authors))
	assert.Equal(t, []string{"Okafor", "Lindqvist"}, authors)

	var power models.StatisticalPower
	require.NoError(t, json.Unmarshal([]byte(props["metadata_statistical_power"].(string)), &power))
	assert.Equal(t, 240, power.SampleSize)

	var criteria models.FalsificationCriteria
	require.NoError(t, json.Unmarshal([]byte(props["metadata_falsification_criteria"].(string)), &criteria))
	assert.Len(t, criteria.TestableConditions, 1)

	// Scalar additional properties stay inline; compound ones are stringified.
	assert.Equal(t, "openalex", props["metadata_source"])
	assert.Equal(t, 41, props["metadata_cited_by"])
	assert.IsType(t, "", props["metadata_raw_scores"])
}

func TestFlattenNodeFillsZeroTimestamps(t *testing.T) {
	props := FlattenNode(models.Node{ID: "n1", Type: models.NodeTypeRoot})

	createdAt, err := time.Parse(time.RFC3339, props["created_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), createdAt, time.Minute)
	assert.Equal(t, props["created_at"], props["updated_at"])
}

func TestFlattenEdgeClampsConfidence(t *testing.T) {
	props := FlattenEdge(models.Edge{
		ID:         "edge-1",
		SourceID:   "a",
		TargetID:   "b",
		Type:       models.EdgeTypeSupportive,
		Confidence: 1.7,
		Metadata:   models.EdgeMetadata{Description: "lexical match", Weight: 0.4},
	})

	assert.Equal(t, "edge-1", props["id"])
	assert.Equal(t, 1.0, props["confidence"])
	assert.Equal(t, "lexical match", props["metadata_description"])
	assert.Equal(t, 0.4, props["metadata_weight"])

	negative := FlattenEdge(models.Edge{ID: "edge-2", Confidence: -0.3})
	assert.Equal(t, 0.0, negative["confidence"])
	_, hasWeight := negative["metadata_weight"]
	assert.False(t, hasWeight)
}
