package models

import (
	"sort"
	"strings"
	"time"
)

// NodeType is the closed set of reasoning-graph node kinds.
type NodeType string

const (
	NodeTypeRoot                    NodeType = "ROOT"
	NodeTypeTaskUnderstanding       NodeType = "TASK_UNDERSTANDING"
	NodeTypeDecompositionDimension  NodeType = "DECOMPOSITION_DIMENSION"
	NodeTypeHypothesis              NodeType = "HYPOTHESIS"
	NodeTypeEvidence                NodeType = "EVIDENCE"
	NodeTypePlaceholderGap          NodeType = "PLACEHOLDER_GAP"
	NodeTypeInterdisciplinaryBridge NodeType = "INTERDISCIPLINARY_BRIDGE"
	NodeTypeResearchQuestion        NodeType = "RESEARCH_QUESTION"
	NodeTypeHyperedgeCenter         NodeType = "HYPEREDGE_CENTER"
)

// AllNodeTypes lists every valid node type, used for label validation.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeRoot, NodeTypeTaskUnderstanding, NodeTypeDecompositionDimension,
		NodeTypeHypothesis, NodeTypeEvidence, NodeTypePlaceholderGap,
		NodeTypeInterdisciplinaryBridge, NodeTypeResearchQuestion, NodeTypeHyperedgeCenter,
	}
}

// IsValidNodeType reports whether s names a known node type.
func IsValidNodeType(s string) bool {
	for _, t := range AllNodeTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// EpistemicStatus tracks how a node's claim is currently justified.
type EpistemicStatus string

const (
	EpistemicAssumption           EpistemicStatus = "ASSUMPTION"
	EpistemicHypothesis           EpistemicStatus = "HYPOTHESIS"
	EpistemicEvidenceSupported    EpistemicStatus = "EVIDENCE_SUPPORTED"
	EpistemicEvidenceContradicted EpistemicStatus = "EVIDENCE_CONTRADICTED"
	EpistemicInferred             EpistemicStatus = "INFERRED"
	EpistemicUnknown              EpistemicStatus = "UNKNOWN"
)

// FalsificationCriteria describes how a hypothesis could be proven wrong.
type FalsificationCriteria struct {
	Description        string   `json:"description"`
	TestableConditions []string `json:"testable_conditions"`
}

// BiasFlag marks a potential reasoning bias attached to a hypothesis.
type BiasFlag struct {
	BiasType            string `json:"bias_type"`
	Description         string `json:"description"`
	AssessmentStageID   string `json:"assessment_stage_id"`
	MitigationSuggested string `json:"mitigation_suggested,omitempty"`
	Severity            string `json:"severity"` // low | medium | high
}

// Plan is the execution sketch attached to a hypothesis.
type Plan struct {
	Type              string   `json:"type"`
	Description       string   `json:"description"`
	EstimatedCost     float64  `json:"estimated_cost"`
	EstimatedDuration float64  `json:"estimated_duration"`
	RequiredResources []string `json:"required_resources"`
	Query             string   `json:"query,omitempty"`
}

// StatisticalPower records the strength of an evidence item's methodology.
type StatisticalPower struct {
	Value      float64 `json:"value"`
	Method     string  `json:"method_description,omitempty"`
	SampleSize int     `json:"sample_size,omitempty"`
	EffectSize float64 `json:"effect_size,omitempty"`
}

// NodeMetadata carries the auxiliary node attributes that survive persistence.
// Disciplinary tags are a set in memory and a comma-joined string on the wire.
type NodeMetadata struct {
	Description          string                 `json:"description,omitempty"`
	QueryContext         string                 `json:"query_context,omitempty"`
	SourceDescription    string                 `json:"source_description,omitempty"`
	EpistemicStatus      EpistemicStatus        `json:"epistemic_status,omitempty"`
	DisciplinaryTags     map[string]struct{}    `json:"-"`
	LayerID              string                 `json:"layer_id,omitempty"`
	ImpactScore          float64                `json:"impact_score"`
	IsKnowledgeGap       bool                   `json:"is_knowledge_gap"`
	DOI                  string                 `json:"doi,omitempty"`
	Authors              []string               `json:"authors,omitempty"`
	PublicationDate      string                 `json:"publication_date,omitempty"`
	RevisionHistory      []map[string]any       `json:"revision_history,omitempty"`
	Falsification        *FalsificationCriteria `json:"falsification_criteria,omitempty"`
	Power                *StatisticalPower      `json:"statistical_power,omitempty"`
	PlanJSON             string                 `json:"plan,omitempty"`
	BiasFlagsJSON        string                 `json:"bias_flags,omitempty"`
	AdditionalProperties map[string]any         `json:"additional_properties,omitempty"`
}

// Node is a reasoning-graph entity.
type Node struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	Type       NodeType         `json:"type"`
	Confidence ConfidenceVector `json:"confidence"`
	Metadata   NodeMetadata     `json:"metadata"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// TagSet builds a tag set from a list, dropping empties.
func TagSet(tags ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// TagsToString serializes a tag set as a sorted comma-joined string, the
// persisted wire form for disciplinary_tags.
func TagsToString(tags map[string]struct{}) string {
	if len(tags) == 0 {
		return ""
	}
	list := make([]string, 0, len(tags))
	for t := range tags {
		list = append(list, t)
	}
	sort.Strings(list)
	return strings.Join(list, ",")
}

// TagsFromString parses the comma-joined wire form back into a set.
func TagsFromString(s string) map[string]struct{} {
	if strings.TrimSpace(s) == "" {
		return map[string]struct{}{}
	}
	return TagSet(strings.Split(s, ",")...)
}

// UnionTags returns a ∪ b without mutating either set.
func UnionTags(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for t := range a {
		out[t] = struct{}{}
	}
	for t := range b {
		out[t] = struct{}{}
	}
	return out
}

// IntersectTags returns a ∩ b.
func IntersectTags(a, b map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for t := range a {
		if _, ok := b[t]; ok {
			out[t] = struct{}{}
		}
	}
	return out
}

// TagsEqual reports whether two tag sets contain the same members.
func TagsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if _, ok := b[t]; !ok {
			return false
		}
	}
	return true
}
