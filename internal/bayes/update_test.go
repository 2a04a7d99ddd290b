package bayes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/models"
)

func TestUpdateConfidenceSupportRaisesEmpirical(t *testing.T) {
	prior := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	result, err := UpdateConfidence(prior, 0.8, true, EvidenceExperimental, 100)
	require.NoError(t, err)

	assert.Greater(t, result.Posterior.EmpiricalSupport, prior.EmpiricalSupport)
	assert.Greater(t, result.Posterior.ConsensusAlignment, prior.ConsensusAlignment)
	assert.Greater(t, result.PosteriorOdds, 1.0)
	assert.Greater(t, result.InformationGain, 0.0)
}

func TestUpdateConfidenceContradictionLowersEmpirical(t *testing.T) {
	prior := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	result, err := UpdateConfidence(prior, 0.8, false, EvidenceExperimental, 100)
	require.NoError(t, err)

	assert.Less(t, result.Posterior.EmpiricalSupport, prior.EmpiricalSupport)
	assert.Less(t, result.Posterior.ConsensusAlignment, prior.ConsensusAlignment)
	assert.Less(t, result.PosteriorOdds, 1.0)
}

func TestUpdateConfidenceEvidenceTypeOrdering(t *testing.T) {
	// For equal strength and sample size, stronger designs move the
	// posterior further.
	prior := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	experimental, err := UpdateConfidence(prior, 0.5, true, EvidenceExperimental, 10)
	require.NoError(t, err)
	observational, err := UpdateConfidence(prior, 0.5, true, EvidenceObservational, 10)
	require.NoError(t, err)
	expert, err := UpdateConfidence(prior, 0.5, true, EvidenceExpertOpinion, 10)
	require.NoError(t, err)

	assert.Greater(t, experimental.Posterior.EmpiricalSupport, observational.Posterior.EmpiricalSupport)
	assert.Greater(t, observational.Posterior.EmpiricalSupport, expert.Posterior.EmpiricalSupport)
}

func TestUpdateConfidenceSampleSizeAmplifies(t *testing.T) {
	prior := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	small, err := UpdateConfidence(prior, 0.6, true, EvidenceEmpirical, 1)
	require.NoError(t, err)
	large, err := UpdateConfidence(prior, 0.6, true, EvidenceEmpirical, 10000)
	require.NoError(t, err)

	assert.Greater(t, large.Posterior.EmpiricalSupport, small.Posterior.EmpiricalSupport)
	assert.Greater(t, large.Posterior.MethodologicalRigor, small.Posterior.MethodologicalRigor)
}

func TestUpdateConfidenceDeterministic(t *testing.T) {
	prior := models.NewConfidenceVector(0.4, 0.3, 0.6, 0.5)

	first, err := UpdateConfidence(prior, 0.7, true, EvidenceObservational, 42)
	require.NoError(t, err)
	second, err := UpdateConfidence(prior, 0.7, true, EvidenceObservational, 42)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestUpdateConfidenceClampsExtremePriors(t *testing.T) {
	// Priors at the boundaries must not produce degenerate odds.
	for _, empirical := range []float64{0, 1} {
		prior := models.NewConfidenceVector(empirical, 0.5, 0.5, 0.5)
		result, err := UpdateConfidence(prior, 0.5, true, EvidenceEmpirical, 10)
		require.NoError(t, err)
		assert.Greater(t, result.Posterior.EmpiricalSupport, 0.0)
		assert.Less(t, result.Posterior.EmpiricalSupport, 1.0)
	}
}

func TestUpdateConfidenceRejectsInvalidInput(t *testing.T) {
	prior := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	tests := []struct {
		name       string
		strength   float64
		sampleSize int
	}{
		{"negative strength", -0.1, 10},
		{"strength above one", 1.1, 10},
		{"zero sample size", 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UpdateConfidence(prior, tt.strength, true, EvidenceEmpirical, tt.sampleSize)
			assert.Error(t, err)
		})
	}
}

func TestUpdateConfidencePosteriorStaysClamped(t *testing.T) {
	prior := models.NewConfidenceVector(0.95, 0.95, 0.95, 0.95)
	result, err := UpdateConfidence(prior, 1.0, true, EvidenceExperimental, 100000)
	require.NoError(t, err)

	for _, c := range result.Posterior.ToList() {
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}
