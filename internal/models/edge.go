package models

import "time"

// EdgeType is the closed set of typed semantic relations.
type EdgeType string

const (
	EdgeTypeDecompositionOf     EdgeType = "DECOMPOSITION_OF"
	EdgeTypeGeneratesHypothesis EdgeType = "GENERATES_HYPOTHESIS"
	EdgeTypeSupportive          EdgeType = "SUPPORTIVE"
	EdgeTypeContradictory       EdgeType = "CONTRADICTORY"
	EdgeTypeIBNSourceLink       EdgeType = "IBN_SOURCE_LINK"
	EdgeTypeIBNTargetLink       EdgeType = "IBN_TARGET_LINK"
	EdgeTypeHasMember           EdgeType = "HAS_MEMBER"
	EdgeTypeCauses              EdgeType = "CAUSES"
	EdgeTypeTemporalPrecedes    EdgeType = "TEMPORAL_PRECEDES"
	EdgeTypeCorrelative         EdgeType = "CORRELATIVE"
	EdgeTypeSpecializationOf    EdgeType = "SPECIALIZATION_OF"
	EdgeTypeOther               EdgeType = "OTHER"
)

// AllEdgeTypes lists every valid relationship type; relationship writes are
// validated against this allow-list before hitting the store.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeTypeDecompositionOf, EdgeTypeGeneratesHypothesis, EdgeTypeSupportive,
		EdgeTypeContradictory, EdgeTypeIBNSourceLink, EdgeTypeIBNTargetLink,
		EdgeTypeHasMember, EdgeTypeCauses, EdgeTypeTemporalPrecedes,
		EdgeTypeCorrelative, EdgeTypeSpecializationOf, EdgeTypeOther,
	}
}

// IsValidEdgeType reports whether s names a known relationship type.
func IsValidEdgeType(s string) bool {
	for _, t := range AllEdgeTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// EdgeMetadata carries edge-level auxiliary attributes.
type EdgeMetadata struct {
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Edge is a typed relation between two nodes. Confidence is scalar.
type Edge struct {
	ID         string       `json:"id"`
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       EdgeType     `json:"type"`
	Confidence float64      `json:"confidence"`
	Metadata   EdgeMetadata `json:"metadata"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
