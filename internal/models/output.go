package models

// RetrievedNode is the repository's wire form for a node pulled out of the
// store: raw labels plus the flattened property map.
type RetrievedNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// RetrievedEdge is the repository's wire form for a relationship.
type RetrievedEdge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartID    string         `json:"start"`
	EndID      string         `json:"end"`
	Properties map[string]any `json:"properties"`
}

// ExtractedSubgraphData is one named subgraph produced by the extraction stage.
type ExtractedSubgraphData struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Nodes       []RetrievedNode `json:"nodes"`
	Edges       []RetrievedEdge `json:"edges"`
	Metrics     map[string]any  `json:"metrics,omitempty"`
}

// SubgraphCriterion is a declarative filter for seeding one extraction pass.
type SubgraphCriterion struct {
	Name                    string   `json:"name"`
	Description             string   `json:"description,omitempty"`
	MinAvgConfidence        float64  `json:"min_avg_confidence,omitempty"`
	MinImpactScore          float64  `json:"min_impact_score,omitempty"`
	NodeTypes               []string `json:"node_types,omitempty"`
	IncludeDisciplinaryTags []string `json:"include_disciplinary_tags,omitempty"`
	ExcludeDisciplinaryTags []string `json:"exclude_disciplinary_tags,omitempty"`
	LayerIDs                []string `json:"layer_ids,omitempty"`
	IsKnowledgeGap          *bool    `json:"is_knowledge_gap,omitempty"`
	IncludeNeighborsDepth   int      `json:"include_neighbors_depth"`
}

// CitationItem is one bibliography entry in a composed report.
type CitationItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
}

// OutputSection is one titled section of a composed report.
type OutputSection struct {
	Title              string   `json:"title"`
	Content            string   `json:"content"`
	Type               string   `json:"type"`
	ReferencedNodeIDs  []string `json:"referenced_node_ids,omitempty"`
	RelatedCitationIDs []string `json:"related_citation_ids,omitempty"`
}

// ComposedOutput is the finished report produced by the composition stage.
type ComposedOutput struct {
	Title                         string          `json:"title"`
	ExecutiveSummary              string          `json:"executive_summary"`
	Sections                      []OutputSection `json:"sections"`
	Citations                     []CitationItem  `json:"citations"`
	ReasoningTraceAppendixSummary string          `json:"reasoning_trace_appendix_summary,omitempty"`
}

// AuditStatus is the outcome of one reflection check.
type AuditStatus string

const (
	AuditNotRun        AuditStatus = "NOT_RUN"
	AuditPass          AuditStatus = "PASS"
	AuditWarning       AuditStatus = "WARNING"
	AuditFail          AuditStatus = "FAIL"
	AuditNotApplicable AuditStatus = "NOT_APPLICABLE"
	AuditError         AuditStatus = "ERROR"
)

// AuditCheckResult is one entry of the reflection stage's checklist.
type AuditCheckResult struct {
	CheckName string         `json:"check_name"`
	Status    AuditStatus    `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
