package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// ReflectionStage audits the finished graph against a fixed checklist and
// derives the session's final confidence vector from the audit outcomes.
type ReflectionStage struct {
	deps   Deps
	logger *slog.Logger
}

// NewReflectionStage builds the stage.
func NewReflectionStage(deps Deps) *ReflectionStage {
	return &ReflectionStage{
		deps:   deps,
		logger: slog.Default().With("component", "stage_reflection"),
	}
}

func (s *ReflectionStage) Name() string { return NameReflection }

// Execute runs the checklist, computes the final vector, and writes it back
// onto the session.
func (s *ReflectionStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	checks := []models.AuditCheckResult{
		s.checkConfidenceCoverage(ctx, sess),
		s.checkBiasFlags(ctx, sess),
		s.checkKnowledgeGapCoverage(ctx, sess),
		s.checkFalsifiability(ctx, sess),
		s.checkStatisticalRigor(ctx, sess),
		{CheckName: "causal_inference_audit", Status: models.AuditNotRun,
			Message: "Causal claim validation is not yet implemented"},
		{CheckName: "temporal_consistency_audit", Status: models.AuditNotRun,
			Message: "Temporal ordering validation is not yet implemented"},
		{CheckName: "collaboration_attribution_audit", Status: models.AuditNotRun,
			Message: "Multi-contributor attribution is not yet implemented"},
	}

	final := s.finalVector(checks)
	sess.FinalConfidenceVector = final.String()

	passCount, activeCount := tallyChecks(checks)
	s.logger.Info("reflection complete",
		"checks_passed", passCount, "checks_active", activeCount,
		"final_confidence", sess.FinalConfidenceVector)

	checkPayload := make([]map[string]any, 0, len(checks))
	for _, c := range checks {
		entry := map[string]any{
			"check_name": c.CheckName,
			"status":     string(c.Status),
			"message":    c.Message,
		}
		if len(c.Details) > 0 {
			entry["details"] = c.Details
		}
		checkPayload = append(checkPayload, entry)
	}

	return stage.Succeed(s.Name(),
		fmt.Sprintf("Audit finished: %d/%d active checks passed", passCount, activeCount),
		map[string]any{
			"audit_checks":            checkPayload,
			"final_confidence_vector": sess.FinalConfidenceVector,
		},
		map[string]any{"checks_passed": passCount, "checks_active": activeCount},
	), nil
}

// Cleanup holds no per-stage resources.
func (s *ReflectionStage) Cleanup(context.Context) error { return nil }

// finalVector starts from the neutral baseline and applies the additive
// adjustments each graded check earns, plus the consensus bonus.
func (s *ReflectionStage) finalVector(checks []models.AuditCheckResult) models.ConfidenceVector {
	final := models.NewConfidenceVector(0.5, 0.5, 0.5, 0.5)

	for _, check := range checks {
		switch check.CheckName {
		case "hypothesis_falsifiability":
			final.MethodologicalRigor += gradedAdjustment(check.Status, 0.15, 0.05, -0.20)
		case "bias_flags":
			final.MethodologicalRigor += gradedAdjustment(check.Status, 0.10, 0, -0.15)
		case "statistical_rigor":
			final.EmpiricalSupport += gradedAdjustment(check.Status, 0.20, -0.05, -0.10)
		}
	}

	passCount, activeCount := tallyChecks(checks)
	if activeCount > 0 {
		final.ConsensusAlignment += (float64(passCount)/float64(activeCount) - 0.5) * 0.2
	}
	final.Clamp()
	return final
}

// gradedAdjustment maps pass/warning/fail onto the check's additive deltas.
func gradedAdjustment(status models.AuditStatus, pass, warning, fail float64) float64 {
	switch status {
	case models.AuditPass:
		return pass
	case models.AuditWarning:
		return warning
	case models.AuditFail:
		return fail
	default:
		return 0
	}
}

// tallyChecks counts passes over the checks that actually ran.
func tallyChecks(checks []models.AuditCheckResult) (passCount, activeCount int) {
	for _, check := range checks {
		switch check.Status {
		case models.AuditNotRun, models.AuditNotApplicable:
			continue
		}
		activeCount++
		if check.Status == models.AuditPass {
			passCount++
		}
	}
	return passCount, activeCount
}

// checkConfidenceCoverage grades how much of the session graph clears the
// high-confidence and high-impact bars.
func (s *ReflectionStage) checkConfidenceCoverage(ctx context.Context, sess *session.Session) models.AuditCheckResult {
	const name = "confidence_impact_coverage"
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:Node)
		WHERE n.metadata_query_context = $query
		RETURN count(n) AS total,
			sum(CASE WHEN coalesce(n.confidence_overall_avg, 0.0) >= $conf THEN 1 ELSE 0 END) AS confident,
			sum(CASE WHEN coalesce(n.metadata_impact_score, 0.0) >= $impact THEN 1 ELSE 0 END) AS impactful
	`, map[string]any{
		"query":  sess.Query,
		"conf":   s.deps.Cfg.Defaults.HighConfidenceThreshold,
		"impact": s.deps.Cfg.Defaults.HighImpactThreshold,
	}, graph.ModeRead)
	if err != nil {
		return auditError(name, err)
	}
	total := countFromRecords(records, "total")
	if total == 0 {
		return models.AuditCheckResult{CheckName: name, Status: models.AuditNotApplicable,
			Message: "No nodes were produced for this query"}
	}
	confident := countFromRecords(records, "confident")
	impactful := countFromRecords(records, "impactful")
	confidentRatio := float64(confident) / float64(total)

	status := models.AuditPass
	switch {
	case confidentRatio < 0.1:
		status = models.AuditFail
	case confidentRatio < 0.25:
		status = models.AuditWarning
	}
	return models.AuditCheckResult{
		CheckName: name,
		Status:    status,
		Message:   fmt.Sprintf("%.0f%% of nodes are high-confidence", confidentRatio*100),
		Details: map[string]any{
			"total": total, "high_confidence": confident, "high_impact": impactful,
		},
	}
}

// checkBiasFlags grades the graph against the high-severity bias budget.
func (s *ReflectionStage) checkBiasFlags(ctx context.Context, sess *session.Session) models.AuditCheckResult {
	const name = "bias_flags"
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:HYPOTHESIS)
		WHERE n.metadata_query_context = $query AND n.metadata_bias_flags IS NOT NULL
		RETURN n.metadata_bias_flags AS flags
	`, map[string]any{"query": sess.Query}, graph.ModeRead)
	if err != nil {
		return auditError(name, err)
	}

	flagged := len(records)
	highSeverity := 0
	for _, record := range records {
		if flags, ok := record["flags"].(string); ok && strings.Contains(flags, `"severity":"high"`) {
			highSeverity++
		}
	}

	status := models.AuditPass
	message := fmt.Sprintf("%d hypotheses carry bias flags, %d high severity", flagged, highSeverity)
	switch {
	case highSeverity > s.deps.Cfg.Defaults.MaxHighSeverityBiasNodes:
		status = models.AuditFail
	case flagged > 0:
		status = models.AuditWarning
	}
	return models.AuditCheckResult{
		CheckName: name, Status: status, Message: message,
		Details: map[string]any{"flagged": flagged, "high_severity": highSeverity},
	}
}

// checkKnowledgeGapCoverage verifies that flagged knowledge gaps were either
// absent or surfaced by the composed output.
func (s *ReflectionStage) checkKnowledgeGapCoverage(ctx context.Context, sess *session.Session) models.AuditCheckResult {
	const name = "knowledge_gap_coverage"
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:Node)
		WHERE n.metadata_query_context = $query AND n.metadata_is_knowledge_gap = true
		RETURN count(n) AS total
	`, map[string]any{"query": sess.Query}, graph.ModeRead)
	if err != nil {
		return auditError(name, err)
	}
	gaps := countFromRecords(records, "total")
	if gaps == 0 {
		return models.AuditCheckResult{CheckName: name, Status: models.AuditNotApplicable,
			Message: "No knowledge gaps were flagged"}
	}

	status := models.AuditWarning
	message := fmt.Sprintf("%d knowledge gaps flagged but not surfaced in the composed output", gaps)
	if strings.Contains(strings.ToLower(sess.FinalAnswer), "knowledge_gaps") ||
		strings.Contains(strings.ToLower(sess.FinalAnswer), "knowledge gap") {
		status = models.AuditPass
		message = fmt.Sprintf("%d knowledge gaps flagged and surfaced in the composed output", gaps)
	}
	return models.AuditCheckResult{
		CheckName: name, Status: status, Message: message,
		Details: map[string]any{"gap_nodes": gaps},
	}
}

// checkFalsifiability grades the share of hypotheses carrying falsification
// criteria against the configured minimum ratio.
func (s *ReflectionStage) checkFalsifiability(ctx context.Context, sess *session.Session) models.AuditCheckResult {
	const name = "hypothesis_falsifiability"
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:HYPOTHESIS)
		WHERE n.metadata_query_context = $query
		RETURN count(n) AS total,
			sum(CASE WHEN n.metadata_falsification_criteria IS NOT NULL THEN 1 ELSE 0 END) AS falsifiable
	`, map[string]any{"query": sess.Query}, graph.ModeRead)
	if err != nil {
		return auditError(name, err)
	}
	total := countFromRecords(records, "total")
	if total == 0 {
		return models.AuditCheckResult{CheckName: name, Status: models.AuditNotApplicable,
			Message: "No hypotheses were produced"}
	}
	falsifiable := countFromRecords(records, "falsifiable")
	ratio := float64(falsifiable) / float64(total)
	minRatio := s.deps.Cfg.Defaults.MinFalsifiableHypothesisRatio

	status := models.AuditPass
	switch {
	case ratio < minRatio*0.75:
		status = models.AuditFail
	case ratio < minRatio:
		status = models.AuditWarning
	}
	return models.AuditCheckResult{
		CheckName: name, Status: status,
		Message: fmt.Sprintf("%.0f%% of hypotheses carry falsification criteria", ratio*100),
		Details: map[string]any{"total": total, "falsifiable": falsifiable},
	}
}

// checkStatisticalRigor grades the share of evidence nodes carrying a
// statistical power record.
func (s *ReflectionStage) checkStatisticalRigor(ctx context.Context, sess *session.Session) models.AuditCheckResult {
	const name = "statistical_rigor"
	records, err := s.deps.Repo.ExecuteQuery(ctx, `
		MATCH (n:EVIDENCE)
		WHERE n.metadata_query_context = $query
		RETURN count(n) AS total,
			sum(CASE WHEN n.metadata_statistical_power IS NOT NULL THEN 1 ELSE 0 END) AS powered
	`, map[string]any{"query": sess.Query}, graph.ModeRead)
	if err != nil {
		return auditError(name, err)
	}
	total := countFromRecords(records, "total")
	if total == 0 {
		return models.AuditCheckResult{CheckName: name, Status: models.AuditNotApplicable,
			Message: "No evidence nodes were produced"}
	}
	powered := countFromRecords(records, "powered")
	ratio := float64(powered) / float64(total)
	minRatio := s.deps.Cfg.Defaults.MinPoweredEvidenceRatio

	status := models.AuditPass
	switch {
	case ratio < minRatio*0.5:
		status = models.AuditFail
	case ratio < minRatio:
		status = models.AuditWarning
	}
	return models.AuditCheckResult{
		CheckName: name, Status: status,
		Message: fmt.Sprintf("%.0f%% of evidence nodes carry power assessments", ratio*100),
		Details: map[string]any{"total": total, "powered": powered},
	}
}

// auditError downgrades a store failure on one check to an ERROR status
// instead of failing the stage.
func auditError(name string, err error) models.AuditCheckResult {
	return models.AuditCheckResult{
		CheckName: name,
		Status:    models.AuditError,
		Message:   "check aborted: " + err.Error(),
	}
}
