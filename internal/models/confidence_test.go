package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceVectorClamp(t *testing.T) {
	v := NewConfidenceVector(-0.5, 1.5, 0.3, 0.7)
	assert.Equal(t, 0.0, v.EmpiricalSupport)
	assert.Equal(t, 1.0, v.TheoreticalBasis)
	assert.Equal(t, 0.3, v.MethodologicalRigor)
	assert.Equal(t, 0.7, v.ConsensusAlignment)
}

func TestConfidenceVectorFromList(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   ConfidenceVector
	}{
		{"full", []float64{0.1, 0.2, 0.3, 0.4}, ConfidenceVector{0.1, 0.2, 0.3, 0.4}},
		{"short is zero padded", []float64{0.9}, ConfidenceVector{0.9, 0, 0, 0}},
		{"extra ignored", []float64{0.1, 0.2, 0.3, 0.4, 0.5}, ConfidenceVector{0.1, 0.2, 0.3, 0.4}},
		{"nil", nil, ConfidenceVector{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfidenceVectorFromList(tt.values))
		})
	}
}

func TestConfidenceVectorString(t *testing.T) {
	tests := []struct {
		name string
		v    ConfidenceVector
		want string
	}{
		{"zeros keep decimal", ConfidenceVector{}, "0.0,0.0,0.0,0.0"},
		{"ones keep decimal", ConfidenceVector{1, 1, 1, 1}, "1.0,1.0,1.0,1.0"},
		{"mixed", ConfidenceVector{0.5, 0.25, 1, 0}, "0.5,0.25,1.0,0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestParseConfidenceVectorRoundTrip(t *testing.T) {
	original := NewConfidenceVector(0.8, 0.65, 0.9, 0.4)
	parsed, err := ParseConfidenceVector(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseConfidenceVectorRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few components", "0.5,0.5,0.5"},
		{"too many components", "0.5,0.5,0.5,0.5,0.5"},
		{"not a number", "0.5,abc,0.5,0.5"},
		{"out of range", "0.5,1.5,0.5,0.5"},
		{"negative", "-0.1,0.5,0.5,0.5"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfidenceVector(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestConfidenceVectorAverageAndMin(t *testing.T) {
	v := ConfidenceVector{0.2, 0.4, 0.6, 0.8}
	assert.InDelta(t, 0.5, v.Average(), 1e-9)
	assert.Equal(t, 0.2, v.Min())
}
