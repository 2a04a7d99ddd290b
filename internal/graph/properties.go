package graph

import (
	"strconv"

	"github.com/reasongraph/reasongraph/internal/models"
)

// Helpers for reading flattened store properties back into typed values.
// The store may hand back int64 where a float was written, so numeric reads
// coerce across the scalar kinds.

// PropString reads a string property, returning fallback when absent.
func PropString(props map[string]any, key, fallback string) string {
	if raw, ok := props[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return fallback
}

// PropFloat reads a numeric property, returning fallback when absent.
func PropFloat(props map[string]any, key string, fallback float64) float64 {
	raw, ok := props[key]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// PropBool reads a boolean property, returning fallback when absent.
func PropBool(props map[string]any, key string, fallback bool) bool {
	if raw, ok := props[key]; ok {
		if b, ok := raw.(bool); ok {
			return b
		}
	}
	return fallback
}

// ConfidenceFromProperties rebuilds the four-component vector from flattened
// properties, defaulting missing components to 0.5.
func ConfidenceFromProperties(props map[string]any) models.ConfidenceVector {
	return models.NewConfidenceVector(
		PropFloat(props, "confidence_empirical_support", 0.5),
		PropFloat(props, "confidence_theoretical_basis", 0.5),
		PropFloat(props, "confidence_methodological_rigor", 0.5),
		PropFloat(props, "confidence_consensus_alignment", 0.5),
	)
}

// TagsFromProperties rebuilds the disciplinary tag set from the comma-joined
// wire form.
func TagsFromProperties(props map[string]any) map[string]struct{} {
	return models.TagsFromString(PropString(props, "metadata_disciplinary_tags", ""))
}
