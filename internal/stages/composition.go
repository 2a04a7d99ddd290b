package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// CompositionStage turns the extracted subgraphs into a composed report:
// titled sections with key claims, a deduplicated citation list, and a
// reasoning-trace appendix. The rendered report becomes the session's final
// answer.
type CompositionStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewCompositionStage builds the stage.
func NewCompositionStage(deps Deps) *CompositionStage {
	return &CompositionStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_composition"),
	}
}

func (s *CompositionStage) Name() string { return NameComposition }

// keyNodeTypes are the node kinds eligible to carry claims in the report.
var keyNodeTypes = map[string]struct{}{
	string(models.NodeTypeHypothesis):              {},
	string(models.NodeTypeEvidence):                {},
	string(models.NodeTypeInterdisciplinaryBridge): {},
}

// Execute composes the report from the extraction stage's subgraphs.
func (s *CompositionStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	subgraphs := decodeSubgraphs(sess.StageContext(NameSubgraphExtraction))

	output := models.ComposedOutput{
		Title:            "Research Synthesis: " + sess.Query,
		ExecutiveSummary: s.executiveSummary(sess, subgraphs),
	}

	seenCitations := map[string]struct{}{}
	for _, sg := range subgraphs {
		section, citations := s.composeSection(sg)
		output.Sections = append(output.Sections, section)
		for _, c := range citations {
			if _, dup := seenCitations[c.ID]; dup {
				continue
			}
			seenCitations[c.ID] = struct{}{}
			output.Citations = append(output.Citations, c)
		}
	}
	output.ReasoningTraceAppendixSummary = traceAppendix(sess)

	sess.FinalAnswer = renderReport(output)

	s.logger.Info("composition complete",
		"sections", len(output.Sections), "citations", len(output.Citations))
	return stage.Succeed(s.Name(),
		fmt.Sprintf("Composed report with %d sections and %d citations", len(output.Sections), len(output.Citations)),
		map[string]any{"composed_output": output},
		map[string]any{"section_count": len(output.Sections), "citation_count": len(output.Citations)},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *CompositionStage) Cleanup(context.Context) error { return nil }

// decodeSubgraphs reads the extraction payload, tolerating both the typed
// in-memory shape and the map shape a checkpoint restore produces.
func decodeSubgraphs(extractionCtx map[string]any) []models.ExtractedSubgraphData {
	if extractionCtx == nil {
		return nil
	}
	raw, ok := extractionCtx["subgraphs"]
	if !ok {
		return nil
	}
	if typed, ok := raw.([]models.ExtractedSubgraphData); ok {
		return typed
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var subgraphs []models.ExtractedSubgraphData
	if err := json.Unmarshal(encoded, &subgraphs); err != nil {
		return nil
	}
	return subgraphs
}

// nodeAvgConfidence reads the stored overall average, falling back to the
// mean of the four components, defaulting to 0 when nothing is stored.
func nodeAvgConfidence(props map[string]any) float64 {
	if avg := graph.PropFloat(props, "confidence_overall_avg", -1); avg >= 0 {
		return avg
	}
	components := []string{
		"confidence_empirical_support", "confidence_theoretical_basis",
		"confidence_methodological_rigor", "confidence_consensus_alignment",
	}
	sum, found := 0.0, 0
	for _, key := range components {
		if v := graph.PropFloat(props, key, -1); v >= 0 {
			sum += v
			found++
		}
	}
	if found == 0 {
		return 0
	}
	return sum / float64(found)
}

// composeSection builds one titled section and its citations from a subgraph.
// Up to three key nodes carry claims: type-eligible nodes clearing the
// confidence-or-impact bar, ordered by impact then confidence.
func (s *CompositionStage) composeSection(sg models.ExtractedSubgraphData) (models.OutputSection, []models.CitationItem) {
	type scored struct {
		node   models.RetrievedNode
		avg    float64
		impact float64
	}
	var eligible []scored
	confidenceSum := 0.0
	for _, node := range sg.Nodes {
		avg := nodeAvgConfidence(node.Properties)
		confidenceSum += avg
		nodeType := graph.PropString(node.Properties, "type", "")
		if _, ok := keyNodeTypes[nodeType]; !ok {
			continue
		}
		impact := graph.PropFloat(node.Properties, "metadata_impact_score", 0)
		if avg > 0.6 || impact > 0.6 {
			eligible = append(eligible, scored{node: node, avg: avg, impact: impact})
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].impact != eligible[j].impact {
			return eligible[i].impact > eligible[j].impact
		}
		return eligible[i].avg > eligible[j].avg
	})
	if len(eligible) > 3 {
		eligible = eligible[:3]
	}

	avgConfidence := 0.0
	if len(sg.Nodes) > 0 {
		avgConfidence = confidenceSum / float64(len(sg.Nodes))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subgraph %q covers %d nodes and %d relationships (average confidence %.2f).\n",
		sg.Name, len(sg.Nodes), len(sg.Edges), avgConfidence)
	if sg.Description != "" {
		b.WriteString(sg.Description + "\n")
	}

	var citations []models.CitationItem
	var referenced, citationIDs []string
	for _, item := range eligible {
		label := graph.PropString(item.node.Properties, "label", item.node.ID)
		citationID := "Node-" + item.node.ID
		fmt.Fprintf(&b, "- %s (confidence %.2f, impact %.2f) [%s]\n",
			label, item.avg, item.impact, citationID)
		referenced = append(referenced, item.node.ID)
		citationIDs = append(citationIDs, citationID)
		citations = append(citations, models.CitationItem{
			ID:     citationID,
			Text:   label,
			Source: graph.PropString(item.node.Properties, "metadata_source_description", ""),
			URL:    graph.PropString(item.node.Properties, "metadata_url", ""),
		})
	}

	return models.OutputSection{
		Title:              "Findings: " + sg.Name,
		Content:            b.String(),
		Type:               "subgraph_findings",
		ReferencedNodeIDs:  referenced,
		RelatedCitationIDs: citationIDs,
	}, citations
}

// executiveSummary is a short overview of what the pipeline produced.
func (s *CompositionStage) executiveSummary(sess *session.Session, subgraphs []models.ExtractedSubgraphData) string {
	totalNodes, totalEdges := 0, 0
	for _, sg := range subgraphs {
		totalNodes += len(sg.Nodes)
		totalEdges += len(sg.Edges)
	}
	return fmt.Sprintf(
		"Analysis of %q produced %d focus subgraphs spanning %d nodes and %d relationships. "+
			"Each section below summarizes one subgraph with its highest-impact claims and citations.",
		sess.Query, len(subgraphs), totalNodes, totalEdges)
}

// traceAppendix formats the session trace into the report appendix.
func traceAppendix(sess *session.Session) string {
	if len(sess.Trace) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Reasoning trace:\n")
	for _, entry := range sess.Trace {
		fmt.Fprintf(&b, "%d. %s (%d ms): %s", entry.StageNumber, entry.StageName, entry.DurationMS, entry.Summary)
		if entry.Error != "" {
			fmt.Fprintf(&b, " [error: %s]", entry.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderReport flattens the composed output into the final answer text.
func renderReport(output models.ComposedOutput) string {
	var b strings.Builder
	b.WriteString(output.Title + "\n\n")
	b.WriteString(output.ExecutiveSummary + "\n")
	for _, section := range output.Sections {
		b.WriteString("\n## " + section.Title + "\n")
		b.WriteString(section.Content)
	}
	if len(output.Citations) > 0 {
		b.WriteString("\n## Citations\n")
		for _, c := range output.Citations {
			fmt.Fprintf(&b, "[%s] %s", c.ID, c.Text)
			if c.URL != "" {
				b.WriteString(" (" + c.URL + ")")
			}
			b.WriteString("\n")
		}
	}
	if output.ReasoningTraceAppendixSummary != "" {
		b.WriteString("\n## Appendix\n" + output.ReasoningTraceAppendixSummary)
	}
	return b.String()
}
