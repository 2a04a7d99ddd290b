package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/reasongraph/reasongraph/internal/bayes"
	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/retrieval"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// EvidenceStage iteratively selects the most promising hypothesis, gathers
// evidence from the retrieval adapters, classifies support, persists EVIDENCE
// nodes and typed links, and applies the Bayesian confidence update. Bridge
// and hyperedge structures are synthesized when their preconditions hold.
type EvidenceStage struct {
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	retrievers []retrieval.Retriever
	sem        *semaphore.Weighted
}

// NewEvidenceStage builds the stage. Adapters are constructed lazily on first
// execution so a store-only pipeline run does not touch the network.
func NewEvidenceStage(deps Deps) *EvidenceStage {
	return &EvidenceStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_evidence"),
	}
}

func (s *EvidenceStage) Name() string { return NameEvidence }

// ensureRetrievers constructs the adapters once. All adapters failing to
// construct is fatal; a partial set is usable.
func (s *EvidenceStage) ensureRetrievers() ([]retrieval.Retriever, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retrievers != nil {
		return s.retrievers, nil
	}
	retrievers, failures := retrieval.NewRetrievers(s.deps.Cfg.Retrieval)
	for _, failure := range failures {
		s.logger.Warn("retrieval adapter unavailable", "error", failure)
	}
	if len(retrievers) == 0 {
		return nil, fmt.Errorf("no retrieval adapters available: %d construction failures", len(failures))
	}
	s.retrievers = retrievers

	maxConcurrent := s.deps.Cfg.Retrieval.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	s.sem = semaphore.NewWeighted(maxConcurrent)
	return s.retrievers, nil
}

// Execute runs the evidence-gathering loop.
func (s *EvidenceStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	retrievers, err := s.ensureRetrievers()
	if err != nil {
		return stage.Output{}, err
	}

	maxIterations := s.deps.Cfg.Defaults.EvidenceMaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}

	processed := map[string]struct{}{}
	var evidenceIDs, ibnIDs, hyperedgeIDs, processedHypotheses []string
	totalInfoGain := 0.0
	iterations := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		candidate, err := s.selectHypothesis(ctx, sess.Query, processed)
		if err != nil {
			return stage.Output{}, fmt.Errorf("hypothesis selection failed: %w", err)
		}
		if candidate == nil {
			break
		}
		iterations++
		hypID := graph.PropString(candidate, "id", "")
		processed[hypID] = struct{}{}
		processedHypotheses = append(processedHypotheses, hypID)

		searchQuery := planQuery(candidate)
		records := s.retrieveAll(ctx, retrievers, searchQuery)
		if len(records) == 0 {
			s.logger.Info("no evidence retrieved", "hypothesis_id", hypID, "query", searchQuery)
			continue
		}

		created, gain, err := s.persistEvidence(ctx, sess, candidate, records)
		if err != nil {
			return stage.Output{}, err
		}
		totalInfoGain += gain
		evidenceIDs = append(evidenceIDs, created.evidenceIDs...)
		ibnIDs = append(ibnIDs, created.ibnIDs...)
		if created.hyperedgeID != "" {
			hyperedgeIDs = append(hyperedgeIDs, created.hyperedgeID)
		}
	}

	// Temporal decay and topology adaptation are reserved follow-on steps;
	// the loop above is idempotent on the store, so re-runs reuse ids.
	s.logger.Info("evidence stage complete",
		"iterations", iterations,
		"evidence_nodes", len(evidenceIDs),
		"ibn_nodes", len(ibnIDs),
		"hyperedges", len(hyperedgeIDs))

	return stage.Succeed(s.Name(),
		fmt.Sprintf("Gathered %d evidence items across %d hypotheses", len(evidenceIDs), len(processedHypotheses)),
		map[string]any{
			"evidence_node_ids":      evidenceIDs,
			"ibn_node_ids":           ibnIDs,
			"hyperedge_node_ids":     hyperedgeIDs,
			"hypotheses_processed":   processedHypotheses,
			"iterations_completed":   iterations,
			"total_information_gain": totalInfoGain,
		},
		map[string]any{"nodes_created": len(evidenceIDs) + len(ibnIDs) + len(hyperedgeIDs)},
	), nil
}

// Cleanup closes the retrieval adapters.
func (s *EvidenceStage) Cleanup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, r := range s.retrievers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.retrievers = nil
	return firstErr
}

// selectHypothesis queries up to 10 unprocessed candidates ordered by impact
// descending then empirical support ascending, and re-ranks them in memory by
// impact plus the spread of the confidence components around 0.5. Returns nil
// when no candidate remains.
func (s *EvidenceStage) selectHypothesis(ctx context.Context, query string, processed map[string]struct{}) (map[string]any, error) {
	excluded := make([]string, 0, len(processed))
	for id := range processed {
		excluded = append(excluded, id)
	}
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:HYPOTHESIS)
		WHERE n.metadata_query_context = $query AND NOT n.id IN $excluded
		RETURN properties(n) AS properties
		ORDER BY n.metadata_impact_score DESC, n.confidence_empirical_support ASC
		LIMIT 10
	`, map[string]any{"query": query, "excluded": excluded}, graph.ModeRead)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var best map[string]any
	bestScore := -1.0
	for _, record := range records {
		props, ok := record["properties"].(map[string]any)
		if !ok {
			continue
		}
		impact := graph.PropFloat(props, "metadata_impact_score", 0)
		conf := graph.ConfidenceFromProperties(props)
		score := impact + confidenceSpread(conf)
		if score > bestScore {
			bestScore = score
			best = props
		}
	}
	return best, nil
}

// confidenceSpread is the mean squared deviation of the four components
// around the uncertainty midpoint 0.5.
func confidenceSpread(v models.ConfidenceVector) float64 {
	sum := 0.0
	for _, c := range v.ToList() {
		d := c - 0.5
		sum += d * d
	}
	return sum / 4
}

// planQuery extracts the search query from the hypothesis plan when present,
// falling back to the label.
func planQuery(props map[string]any) string {
	if raw := graph.PropString(props, "metadata_plan", ""); raw != "" {
		var plan models.Plan
		if err := json.Unmarshal([]byte(raw), &plan); err == nil && strings.TrimSpace(plan.Query) != "" {
			return plan.Query
		}
	}
	return graph.PropString(props, "label", "")
}

// retrieveAll fans out to every adapter under the bounded-concurrency
// semaphore, two results per adapter. Adapter failures are logged and
// skipped; result order is fixed by adapter declaration order.
func (s *EvidenceStage) retrieveAll(ctx context.Context, retrievers []retrieval.Retriever, query string) []retrieval.ArticleRecord {
	perAdapter := make([][]retrieval.ArticleRecord, len(retrievers))
	g, gctx := errgroup.WithContext(ctx)

	for i, r := range retrievers {
		i, r := i, r
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer s.sem.Release(1)

			results, err := r.Search(gctx, query, 2)
			if err != nil {
				s.logger.Warn("adapter search failed", "adapter", r.Name(), "error", err)
				return nil
			}
			perAdapter[i] = results
			return nil
		})
	}
	g.Wait()

	var out []retrieval.ArticleRecord
	for _, results := range perAdapter {
		out = append(out, results...)
	}
	return out
}

// createdArtifacts collects the ids produced by one iteration.
type createdArtifacts struct {
	evidenceIDs []string
	ibnIDs      []string
	hyperedgeID string
}

// persistEvidence writes the evidence nodes, typed links, bridge and
// hyperedge structures for one hypothesis, then applies the Bayesian updates
// and writes the posterior back onto the hypothesis.
func (s *EvidenceStage) persistEvidence(ctx context.Context, sess *session.Session, hypothesis map[string]any, records []retrieval.ArticleRecord) (createdArtifacts, float64, error) {
	var artifacts createdArtifacts

	hypID := graph.PropString(hypothesis, "id", "")
	hypLabel := graph.PropString(hypothesis, "label", "")
	hypTags := graph.TagsFromProperties(hypothesis)
	hypLayer := graph.PropString(hypothesis, "metadata_layer_id", s.deps.Cfg.Defaults.InitialLayer)
	prior := graph.ConfidenceFromProperties(hypothesis)

	var nodes []models.Node
	var edges []models.Edge
	posterior := prior
	totalGain := 0.0
	anySupport, anyContradiction := false, false
	var evidenceEmpiricals []float64

	ibnThreshold := s.deps.Cfg.Defaults.IBNSimilarityThreshold

	for _, record := range records {
		text := record.Title + " " + record.Snippet
		strength, supports := classifySupport(text, hypLabel)

		power := models.StatisticalPower{
			Value:      clamp01(0.4 + 0.4*strength),
			Method:     "heuristic assessment from retrieval metadata",
			SampleSize: maxInt(1, record.CitedByCount),
		}
		evidenceType := inferEvidenceType(text)

		status := models.EpistemicEvidenceSupported
		if !supports {
			status = models.EpistemicEvidenceContradicted
		}
		if supports {
			anySupport = true
		} else {
			anyContradiction = true
		}

		evidenceID := stableID("ev", sess.ID, hypID, record.Source, record.URL, record.Title)
		conf := models.NewConfidenceVector(strength, 0.5, strength*0.8, 0.5)
		tags := models.UnionTags(hypTags, models.TagSet(record.Source))
		nodes = append(nodes, models.Node{
			ID:         evidenceID,
			Label:      "Evidence: " + record.Title,
			Type:       models.NodeTypeEvidence,
			Confidence: conf,
			Metadata: models.NodeMetadata{
				Description:       record.Snippet,
				QueryContext:      sess.Query,
				SourceDescription: record.Source,
				EpistemicStatus:   status,
				DisciplinaryTags:  tags,
				LayerID:           hypLayer,
				ImpactScore:       clamp01(strength * power.Value),
				DOI:               record.DOI,
				Authors:           record.Authors,
				PublicationDate:   record.PublicationDate,
				Power:             &power,
				AdditionalProperties: map[string]any{
					"url":           record.URL,
					"evidence_type": string(evidenceType),
				},
			},
		})

		edgeType := models.EdgeTypeSupportive
		if !supports {
			edgeType = models.EdgeTypeContradictory
		}
		edges = append(edges, models.Edge{
			ID:         stableID("edge", "assessment", evidenceID, hypID),
			SourceID:   evidenceID,
			TargetID:   hypID,
			Type:       edgeType,
			Confidence: strength,
			Metadata:   models.EdgeMetadata{Description: "evidence assessment", Weight: strength},
		})
		artifacts.evidenceIDs = append(artifacts.evidenceIDs, evidenceID)
		evidenceEmpiricals = append(evidenceEmpiricals, strength)

		result, err := bayes.UpdateConfidence(posterior, strength, supports, evidenceType, power.SampleSize)
		if err != nil {
			s.logger.Warn("confidence update skipped", "evidence_id", evidenceID, "error", err)
			continue
		}
		posterior = result.Posterior
		totalGain += result.InformationGain

		// Bridge synthesis: both tag sets populated, at least one shared
		// discipline, and label similarity above the configured threshold.
		similarity := labelSimilarity("Evidence: "+record.Title, hypLabel)
		if len(tags) > 0 && len(hypTags) > 0 &&
			len(models.IntersectTags(tags, hypTags)) >= 1 &&
			similarity >= ibnThreshold {
			ibnID := stableID("ibn", sess.ID, hypID, evidenceID)
			nodes = append(nodes, models.Node{
				ID:         ibnID,
				Label:      fmt.Sprintf("Bridge: %s <-> %s", record.Source, truncateLabel(hypLabel, 60)),
				Type:       models.NodeTypeInterdisciplinaryBridge,
				Confidence: models.NewConfidenceVector(similarity, 0.4, 0.5, 0.3),
				Metadata: models.NodeMetadata{
					Description:      "Interdisciplinary bridge between evidence and hypothesis",
					QueryContext:     sess.Query,
					EpistemicStatus:  models.EpistemicInferred,
					DisciplinaryTags: models.UnionTags(tags, hypTags),
					LayerID:          hypLayer,
					ImpactScore:      0.6,
				},
			})
			edges = append(edges,
				models.Edge{
					ID:         stableID("edge", "ibn-source", evidenceID, ibnID),
					SourceID:   evidenceID,
					TargetID:   ibnID,
					Type:       models.EdgeTypeIBNSourceLink,
					Confidence: similarity,
				},
				models.Edge{
					ID:         stableID("edge", "ibn-target", ibnID, hypID),
					SourceID:   ibnID,
					TargetID:   hypID,
					Type:       models.EdgeTypeIBNTargetLink,
					Confidence: similarity,
				},
			)
			artifacts.ibnIDs = append(artifacts.ibnIDs, ibnID)
		}
	}

	if len(artifacts.evidenceIDs) >= s.deps.Cfg.Defaults.MinNodesForHyperedge {
		sum := posterior.EmpiricalSupport
		for _, e := range evidenceEmpiricals {
			sum += e
		}
		meanEmpirical := sum / float64(len(evidenceEmpiricals)+1)

		hyperedgeID := stableID("hyper", sess.ID, hypID)
		nodes = append(nodes, models.Node{
			ID:         hyperedgeID,
			Label:      "Hyperedge: joint evidence for " + truncateLabel(hypLabel, 60),
			Type:       models.NodeTypeHyperedgeCenter,
			Confidence: models.NewConfidenceVector(meanEmpirical, 0.5, 0.5, 0.5),
			Metadata: models.NodeMetadata{
				Description:      "Reified group of a hypothesis and its co-retrieved evidence",
				QueryContext:     sess.Query,
				EpistemicStatus:  models.EpistemicInferred,
				DisciplinaryTags: hypTags,
				LayerID:          hypLayer,
				ImpactScore:      0.5,
			},
		})
		memberIDs := append([]string{hypID}, artifacts.evidenceIDs...)
		for _, memberID := range memberIDs {
			edges = append(edges, models.Edge{
				ID:         stableID("edge", "member", hyperedgeID, memberID),
				SourceID:   hyperedgeID,
				TargetID:   memberID,
				Type:       models.EdgeTypeHasMember,
				Confidence: 0.8,
			})
		}
		artifacts.hyperedgeID = hyperedgeID
	}

	if err := s.deps.Repo.UpsertNodes(ctx, nodes); err != nil {
		return artifacts, 0, fmt.Errorf("evidence upsert failed: %w", err)
	}
	if err := s.deps.Repo.UpsertEdges(ctx, edges); err != nil {
		return artifacts, 0, fmt.Errorf("evidence edge upsert failed: %w", err)
	}
	if err := s.writeHypothesisPosterior(ctx, hypID, posterior, anySupport, anyContradiction); err != nil {
		return artifacts, 0, err
	}
	return artifacts, totalGain, nil
}

// writeHypothesisPosterior persists the updated confidence vector and
// epistemic status onto the hypothesis node.
func (s *EvidenceStage) writeHypothesisPosterior(ctx context.Context, hypID string, posterior models.ConfidenceVector, anySupport, anyContradiction bool) error {
	status := models.EpistemicHypothesis
	switch {
	case anySupport && !anyContradiction:
		status = models.EpistemicEvidenceSupported
	case anyContradiction && !anySupport:
		status = models.EpistemicEvidenceContradicted
	}

	_, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:Node {id: $id})
		SET n.confidence_empirical_support = $empirical,
			n.confidence_theoretical_basis = $theoretical,
			n.confidence_methodological_rigor = $methodological,
			n.confidence_consensus_alignment = $consensus,
			n.confidence_overall_avg = $overall,
			n.metadata_epistemic_status = $status,
			n.updated_at = $updated_at
	`, map[string]any{
		"id":             hypID,
		"empirical":      posterior.EmpiricalSupport,
		"theoretical":    posterior.TheoreticalBasis,
		"methodological": posterior.MethodologicalRigor,
		"consensus":      posterior.ConsensusAlignment,
		"overall":        posterior.Average(),
		"status":         string(status),
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	}, graph.ModeWrite)
	if err != nil {
		return fmt.Errorf("hypothesis posterior write failed: %w", err)
	}
	return nil
}

// Support-classification lexicon. Terms are matched on lowercased stemmed-ish
// prefixes over whole words.
var (
	strongSupport   = []string{"confirm", "demonstrate", "prove", "establish"}
	moderateSupport = []string{"support", "validate", "corroborate", "replicate"}
	weakSupport     = []string{"suggest", "indicate", "consistent", "associate"}

	strongContra   = []string{"refute", "disprove", "contradict", "falsif"}
	moderateContra = []string{"challenge", "dispute", "inconsistent", "undermine"}
	weakContra     = []string{"question", "doubt", "unlikely", "inconclusive"}

	negators = map[string]struct{}{
		"not": {}, "no": {}, "never": {}, "without": {}, "fails": {}, "fail": {}, "cannot": {},
	}
)

// classifySupport scores evidence text against the hypothesis label and
// returns (strength, supports). A negated supportive verb counts as a
// moderate contradiction instead.
func classifySupport(text, hypothesisLabel string) (float64, bool) {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		words[i] = strings.Trim(w, ".,;:!?()[]{}\"'")
	}

	net := 0.0
	for i, w := range words {
		if weight := termWeight(w, strongSupport, moderateSupport, weakSupport); weight > 0 {
			if negatedAt(words, i) {
				net -= 2
			} else {
				net += weight
			}
			continue
		}
		if weight := termWeight(w, strongContra, moderateContra, weakContra); weight > 0 {
			net -= weight
		}
	}

	// Semantic overlap boost in the supportive direction.
	hypWords := contentWords(hypothesisLabel)
	textWords := contentWords(text)
	if len(hypWords) > 0 {
		overlap := 0
		for w := range hypWords {
			if _, ok := textWords[w]; ok {
				overlap++
			}
		}
		boost := 2 * float64(overlap) / float64(len(hypWords))
		if boost > 2 {
			boost = 2
		}
		net += boost
	}

	var strength float64
	var supports bool
	switch {
	case net > 1.5:
		supports = true
		strength = 0.5 + net/10
	case net < -1.5:
		supports = false
		strength = 0.5 + (-net)/10
	default:
		supports = net >= 0
		strength = 0.3
	}
	if strength > 0.9 {
		strength = 0.9
	}
	if strength < 0.1 {
		strength = 0.1
	}
	return strength, supports
}

// termWeight returns 3/2/1 for a strong/moderate/weak lexicon hit, matching
// on term prefix so inflections count.
func termWeight(word string, strong, moderate, weak []string) float64 {
	for _, t := range strong {
		if strings.HasPrefix(word, t) {
			return 3
		}
	}
	for _, t := range moderate {
		if strings.HasPrefix(word, t) {
			return 2
		}
	}
	for _, t := range weak {
		if strings.HasPrefix(word, t) {
			return 1
		}
	}
	return 0
}

// negatedAt reports whether any of the three words preceding index i negate it.
func negatedAt(words []string, i int) bool {
	for j := i - 3; j < i; j++ {
		if j < 0 {
			continue
		}
		if _, ok := negators[words[j]]; ok {
			return true
		}
	}
	return false
}

// inferEvidenceType maps retrieval text onto the update curve selector.
func inferEvidenceType(text string) bayes.EvidenceType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "randomized") || strings.Contains(lower, "randomised") || strings.Contains(lower, "trial"):
		return bayes.EvidenceExperimental
	case strings.Contains(lower, "cohort") || strings.Contains(lower, "observational") || strings.Contains(lower, "cross-sectional"):
		return bayes.EvidenceObservational
	case strings.Contains(lower, "theoretical") || strings.Contains(lower, "model") || strings.Contains(lower, "framework"):
		return bayes.EvidenceTheoretical
	case strings.Contains(lower, "expert") || strings.Contains(lower, "consensus statement") || strings.Contains(lower, "guideline"):
		return bayes.EvidenceExpertOpinion
	default:
		return bayes.EvidenceEmpirical
	}
}

// truncateLabel caps a label at n bytes without splitting a multi-byte rune.
func truncateLabel(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
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

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
