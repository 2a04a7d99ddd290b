package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ConfidenceVector holds the four independent confidence components attached to
// every node and to the final session result. Components are never derived from
// one another; each is clamped to [0,1] on write.
type ConfidenceVector struct {
	EmpiricalSupport    float64 `json:"empirical_support"`
	TheoreticalBasis    float64 `json:"theoretical_basis"`
	MethodologicalRigor float64 `json:"methodological_rigor"`
	ConsensusAlignment  float64 `json:"consensus_alignment"`
}

// NewConfidenceVector builds a clamped vector from raw components.
func NewConfidenceVector(empirical, theoretical, methodological, consensus float64) ConfidenceVector {
	v := ConfidenceVector{
		EmpiricalSupport:    empirical,
		TheoreticalBasis:    theoretical,
		MethodologicalRigor: methodological,
		ConsensusAlignment:  consensus,
	}
	v.Clamp()
	return v
}

// ConfidenceVectorFromList builds a vector from a 4-element slice.
// Short slices are zero-padded; extra elements are ignored.
func ConfidenceVectorFromList(values []float64) ConfidenceVector {
	padded := make([]float64, 4)
	copy(padded, values)
	return NewConfidenceVector(padded[0], padded[1], padded[2], padded[3])
}

// Clamp forces every component into [0,1] in place.
func (v *ConfidenceVector) Clamp() {
	v.EmpiricalSupport = clamp01(v.EmpiricalSupport)
	v.TheoreticalBasis = clamp01(v.TheoreticalBasis)
	v.MethodologicalRigor = clamp01(v.MethodologicalRigor)
	v.ConsensusAlignment = clamp01(v.ConsensusAlignment)
}

// ToList returns the components in canonical order
// (empirical, theoretical, methodological, consensus).
func (v ConfidenceVector) ToList() []float64 {
	return []float64{v.EmpiricalSupport, v.TheoreticalBasis, v.MethodologicalRigor, v.ConsensusAlignment}
}

// Average returns the mean of the four components.
func (v ConfidenceVector) Average() float64 {
	return (v.EmpiricalSupport + v.TheoreticalBasis + v.MethodologicalRigor + v.ConsensusAlignment) / 4.0
}

// Min returns the smallest component, used by the pruning stage.
func (v ConfidenceVector) Min() float64 {
	min := v.EmpiricalSupport
	for _, c := range []float64{v.TheoreticalBasis, v.MethodologicalRigor, v.ConsensusAlignment} {
		if c < min {
			min = c
		}
	}
	return min
}

// String serializes as "e,t,m,c". Whole numbers keep one decimal place so the
// wire form always reads as four floats (e.g. "0.0,0.0,0.0,0.0").
func (v ConfidenceVector) String() string {
	parts := make([]string, 0, 4)
	for _, c := range v.ToList() {
		s := strconv.FormatFloat(c, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

// ParseConfidenceVector parses the "e,t,m,c" wire form. It requires exactly
// four comma-separated floats, each within [0,1].
func ParseConfidenceVector(s string) (ConfidenceVector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ConfidenceVector{}, fmt.Errorf("confidence vector must have 4 components, got %d", len(parts))
	}
	values := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ConfidenceVector{}, fmt.Errorf("confidence component %d is not a number: %w", i, err)
		}
		if f < 0 || f > 1 {
			return ConfidenceVector{}, fmt.Errorf("confidence component %d out of range [0,1]: %f", i, f)
		}
		values[i] = f
	}
	return ConfidenceVectorFromList(values), nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
