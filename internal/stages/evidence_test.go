package stages

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/bayes"
	"github.com/reasongraph/reasongraph/internal/models"
)

func TestClassifySupportStrongSupport(t *testing.T) {
	strength, supports := classifySupport(
		"Results confirm the mechanism behind microbial diversity",
		"Microbial diversity improves outcomes",
	)

	assert.True(t, supports)
	assert.InDelta(t, 0.9, strength, 1e-9)
}

func TestClassifySupportStrongContradiction(t *testing.T) {
	strength, supports := classifySupport(
		"Findings refute and contradict the proposed link",
		"Sleep quality affects memory consolidation",
	)

	assert.False(t, supports)
	assert.InDelta(t, 0.9, strength, 1e-9)
}

func TestClassifySupportNegationFlipsSupport(t *testing.T) {
	strength, supports := classifySupport(
		"the data does not support the claim",
		"Ocean acidification reduces calcification",
	)

	assert.False(t, supports)
	assert.InDelta(t, 0.7, strength, 1e-9)
}

func TestClassifySupportNeutralDefaults(t *testing.T) {
	strength, supports := classifySupport(
		"data were collected during field season",
		"something unrelated entirely",
	)
	assert.True(t, supports)
	assert.InDelta(t, 0.3, strength, 1e-9)

	strength, supports = classifySupport(
		"researchers question whether effects hold",
		"something unrelated entirely",
	)
	assert.False(t, supports)
	assert.InDelta(t, 0.3, strength, 1e-9)
}

func TestTermWeightMatchesPrefixes(t *testing.T) {
	assert.Equal(t, 3.0, termWeight("confirms", strongSupport, moderateSupport, weakSupport))
	assert.Equal(t, 2.0, termWeight("validated", strongSupport, moderateSupport, weakSupport))
	assert.Equal(t, 1.0, termWeight("suggests", strongSupport, moderateSupport, weakSupport))
	assert.Equal(t, 3.0, termWeight("refuted", strongContra, moderateContra, weakContra))
	assert.Equal(t, 0.0, termWeight("neutral", strongSupport, moderateSupport, weakSupport))
}

func TestInferEvidenceType(t *testing.T) {
	tests := []struct {
		text string
		want bayes.EvidenceType
	}{
		{"a randomized controlled trial of treatment X", bayes.EvidenceExperimental},
		{"prospective cohort study across three sites", bayes.EvidenceObservational},
		{"a theoretical framework for adaptation", bayes.EvidenceTheoretical},
		{"expert consensus statement on screening", bayes.EvidenceExpertOpinion},
		{"survey of field measurements", bayes.EvidenceEmpirical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferEvidenceType(tt.text), tt.text)
	}
}

func TestConfidenceSpread(t *testing.T) {
	assert.Equal(t, 0.0, confidenceSpread(models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)))
	assert.InDelta(t, 0.25, confidenceSpread(models.NewConfidenceVector(0, 1, 0, 1)), 1e-9)
	assert.InDelta(t, 0.04, confidenceSpread(models.NewConfidenceVector(0.9, 0.5, 0.5, 0.5)), 1e-9)
}

func TestPlanQueryPrefersPlanOverLabel(t *testing.T) {
	plan, err := json.Marshal(models.Plan{Type: "literature_search", Query: "microbiome treatment response"})
	require.NoError(t, err)

	props := map[string]any{
		"label":         "Hypothesis label",
		"metadata_plan": string(plan),
	}
	assert.Equal(t, "microbiome treatment response", planQuery(props))
}

func TestPlanQueryFallsBackToLabel(t *testing.T) {
	// No plan at all.
	assert.Equal(t, "bare label", planQuery(map[string]any{"label": "bare label"}))

	// Plan present but without a query.
	plan, err := json.Marshal(models.Plan{Type: "analysis"})
	require.NoError(t, err)
	assert.Equal(t, "the label", planQuery(map[string]any{
		"label": "the label", "metadata_plan": string(plan),
	}))

	// Malformed plan JSON.
	assert.Equal(t, "the label", planQuery(map[string]any{
		"label": "the label", "metadata_plan": "{broken",
	}))
}

func TestTruncateLabel(t *testing.T) {
	assert.Equal(t, "short", truncateLabel("short", 10))
	assert.Equal(t, "abcde...", truncateLabel("abcdefgh", 5))
}

func TestTruncateLabelKeepsValidUTF8(t *testing.T) {
	// The cut point lands inside the two-byte "é"; the whole rune must go.
	label := "café au lait"
	got := truncateLabel(label, 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "caf...", got)
}

func TestStableIDIsDeterministic(t *testing.T) {
	sessionID := "session-1"
	hypID := "hypo-a"

	first := stableID("ev", sessionID, hypID, "pubmed", "https://x.org/1", "Title one")
	second := stableID("ev", sessionID, hypID, "pubmed", "https://x.org/1", "Title one")
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "ev-"))

	// Any identifying part changing yields a different id.
	assert.NotEqual(t, first, stableID("ev", sessionID, hypID, "pubmed", "https://x.org/2", "Title one"))
	assert.NotEqual(t, first, stableID("ev", "session-2", hypID, "pubmed", "https://x.org/1", "Title one"))
	assert.NotEqual(t, first, stableID("edge", sessionID, hypID, "pubmed", "https://x.org/1", "Title one"))
}

func TestEvidenceIDsRepeatAcrossRuns(t *testing.T) {
	// Two passes over the same session and retrieval results must build the
	// same id set, so the MERGE-by-id upserts reuse existing records.
	buildIDs := func() []string {
		sessionID := "session-fixed"
		hypID := "hypo-fixed"
		var ids []string
		for _, rec := range []struct{ source, url, title string }{
			{"pubmed", "https://pubmed.ncbi.nlm.nih.gov/100/", "Gut flora and immunity"},
			{"openalex", "https://example.org/reef", "Reef recovery dynamics"},
		} {
			evidenceID := stableID("ev", sessionID, hypID, rec.source, rec.url, rec.title)
			ids = append(ids,
				evidenceID,
				stableID("edge", "assessment", evidenceID, hypID),
				stableID("ibn", sessionID, hypID, evidenceID),
			)
		}
		hyperedgeID := stableID("hyper", sessionID, hypID)
		ids = append(ids, hyperedgeID, stableID("edge", "member", hyperedgeID, hypID))
		return ids
	}

	assert.Equal(t, buildIDs(), buildIDs())
}
