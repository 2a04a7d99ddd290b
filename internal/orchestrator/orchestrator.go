// Package orchestrator sequences the reasoning stages for one query at a
// time: checkpointing, integrity validation, retry with rollback, context
// merging, and finalization.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/reasongraph/reasongraph/internal/config"
	apperrors "github.com/reasongraph/reasongraph/internal/errors"
	"github.com/reasongraph/reasongraph/internal/models"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// State is the orchestrator's lifecycle position for the current query.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateFinalized State = "finalized"
	StateAborted   State = "aborted"
)

const (
	maxCheckpoints     = 10
	maxRollbackDepth   = 5
	maxStageAttempts   = 3
	fallbackVector     = "0.5,0.5,0.5,0.5"
	zeroVector         = "0.0,0.0,0.0,0.0"
	defaultFinalAnswer = "Processing completed, but no final answer was generated."
)

// Checkpoint is one saved session snapshot plus its position in the walk.
type Checkpoint struct {
	Snapshot   *session.Session
	StageIndex int
	Timestamp  time.Time
}

// Archiver persists finished sessions; a nil archiver disables archiving.
type Archiver interface {
	SaveSession(ctx context.Context, sess *session.Session) error
}

// Orchestrator walks one session through the configured stages. A single
// instance processes one query at a time; concurrent calls fail fast.
type Orchestrator struct {
	stages    []stage.Stage
	cfg       *config.Config
	resources *ResourceMonitor
	archive   Archiver
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	busySession string

	checkpoints   []Checkpoint
	rollbackStack []Checkpoint
}

// New builds an orchestrator over the given stage sequence. monitor and
// archive may be nil.
func New(stages []stage.Stage, cfg *config.Config, monitor *ResourceMonitor, archive Archiver) *Orchestrator {
	return &Orchestrator{
		stages:    stages,
		cfg:       cfg,
		resources: monitor,
		archive:   archive,
		state:     StateIdle,
		logger:    slog.Default().With("component", "orchestrator"),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ProcessQuery runs the full pipeline for a query and returns the finalized
// session. A second call while one is in flight fails immediately.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, operationalParams map[string]any) (*session.Session, error) {
	sess := session.New(query, operationalParams)

	o.mu.Lock()
	if o.busySession != "" {
		busy := o.busySession
		o.mu.Unlock()
		return nil, apperrors.Newf(apperrors.KindInvalidInput, "already processing session %s", busy)
	}
	o.busySession = sess.ID
	o.state = StateRunning
	o.checkpoints = nil
	o.rollbackStack = nil
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busySession = ""
		o.mu.Unlock()
	}()

	start := time.Now()
	o.logger.Info("processing started", "session_id", sess.ID, "stages", len(o.stages))

	endState := o.walkStages(ctx, sess)

	o.finalize(sess, start)
	o.cleanupStages(ctx)

	o.mu.Lock()
	o.state = endState
	o.mu.Unlock()

	o.archiveSession(sess)
	o.logger.Info("processing finished",
		"session_id", sess.ID,
		"state", string(endState),
		"duration_ms", time.Since(start).Milliseconds())
	return sess, nil
}

// walkStages runs the per-stage protocol and reports the terminal state.
func (o *Orchestrator) walkStages(ctx context.Context, sess *session.Session) State {
	for i := 0; i < len(o.stages); {
		select {
		case <-ctx.Done():
			sess.FinalAnswer = "Processing aborted by cancellation."
			sess.FinalConfidenceVector = zeroVector
			o.logger.Warn("pipeline aborted", "session_id", sess.ID, "stage_index", i)
			return StateAborted
		default:
		}

		st := o.stages[i]

		if o.resources != nil && !o.resources.CheckResources(ctx) {
			sess.FinalAnswer = "Processing halted due to server resource limits"
			sess.FinalConfidenceVector = zeroVector
			o.logger.Warn("pipeline halted on resource limits", "session_id", sess.ID, "stage", st.Name())
			return StateFinalized
		}

		if err := o.saveCheckpoint(sess, i); err != nil {
			o.logger.Error("checkpoint failed", "stage", st.Name(), "error", err)
		}

		if err := validateIntegrity(sess); err != nil {
			o.logger.Warn("session integrity violation", "session_id", sess.ID, "error", err)
			if o.rollback(sess) {
				// Re-enter the same stage index with the restored state.
				continue
			}
			sess.FinalAnswer = "Processing failed: session state is corrupted and no rollback is available."
			sess.FinalConfidenceVector = zeroVector
			return StateAborted
		}

		stageStart := time.Now()
		output, recoveryAction, execErr := o.executeWithRecovery(ctx, st, sess, i)

		if output.ContextUpdate != nil {
			sess.MergeContext(output.ContextUpdate)
		}

		errMsg := output.ErrorMessage
		if execErr != nil {
			errMsg = execErr.Error()
		}
		sess.AppendTrace(session.TraceRecord{
			StageNumber:    i + 1,
			StageName:      st.Name(),
			DurationMS:     time.Since(stageStart).Milliseconds(),
			Summary:        output.Summary,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			Error:          errMsg,
			Metrics:        output.Metrics,
			RecoveryAction: recoveryAction,
		})

		if errMsg != "" && apperrors.IsCriticalMessage(errMsg) {
			sess.FinalAnswer = "Processing halted on a critical error: " + errMsg
			sess.FinalConfidenceVector = zeroVector
			o.logger.Error("critical error pattern matched", "stage", st.Name(), "error", errMsg)
			return StateFinalized
		}

		if execErr != nil {
			sess.FinalAnswer = fmt.Sprintf("Processing failed at stage %s: %s", st.Name(), errMsg)
			sess.FinalConfidenceVector = zeroVector
			return StateAborted
		}

		if !output.Success && st.Name() == o.stages[0].Name() {
			// A rejected query cannot seed the graph; nothing downstream can run.
			sess.FinalAnswer = "Processing failed: " + errMsg
			sess.FinalConfidenceVector = zeroVector
			return StateFinalized
		}

		i++
	}
	return StateFinalized
}

// executeWithRecovery runs one stage with up to three attempts, sleeping
// progressively between attempts and restoring the previous stage's
// checkpoint before each retry.
func (o *Orchestrator) executeWithRecovery(ctx context.Context, st stage.Stage, sess *session.Session, stageIndex int) (stage.Output, string, error) {
	var lastErr error
	recoveryAction := ""

	for attempt := 1; attempt <= maxStageAttempts; attempt++ {
		output, err := st.Execute(ctx, sess)
		if err == nil {
			return output, recoveryAction, nil
		}
		lastErr = err
		o.logger.Warn("stage attempt failed",
			"stage", st.Name(), "attempt", attempt, "error", err)

		if attempt == maxStageAttempts {
			break
		}
		if cp := o.checkpointForStage(stageIndex - 1); cp != nil {
			if restoreErr := sess.RestoreFrom(cp.Snapshot); restoreErr != nil {
				o.logger.Error("checkpoint restore failed", "stage", st.Name(), "error", restoreErr)
			} else {
				recoveryAction = fmt.Sprintf("restored checkpoint of stage %d before retry", stageIndex)
			}
		}
		backoff := time.Duration(1000*attempt) * time.Millisecond
		select {
		case <-ctx.Done():
			return stage.Output{}, recoveryAction, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return stage.Output{}, recoveryAction,
		fmt.Errorf("stage %s failed after %d attempts: %w", st.Name(), maxStageAttempts, lastErr)
}

// saveCheckpoint snapshots the session into the ring and rollback stack.
func (o *Orchestrator) saveCheckpoint(sess *session.Session, stageIndex int) error {
	snapshot, err := sess.DeepCopy()
	if err != nil {
		return err
	}
	cp := Checkpoint{Snapshot: snapshot, StageIndex: stageIndex, Timestamp: time.Now().UTC()}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.checkpoints = append(o.checkpoints, cp)
	if len(o.checkpoints) > maxCheckpoints {
		o.checkpoints = o.checkpoints[len(o.checkpoints)-maxCheckpoints:]
	}
	o.rollbackStack = append(o.rollbackStack, cp)
	if len(o.rollbackStack) > maxRollbackDepth {
		o.rollbackStack = o.rollbackStack[len(o.rollbackStack)-maxRollbackDepth:]
	}
	return nil
}

// checkpointForStage finds the most recent checkpoint saved at the given
// stage index.
func (o *Orchestrator) checkpointForStage(stageIndex int) *Checkpoint {
	if stageIndex < 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.checkpoints) - 1; i >= 0; i-- {
		if o.checkpoints[i].StageIndex == stageIndex {
			return &o.checkpoints[i]
		}
	}
	return nil
}

// rollback pops the most recent snapshot off the rollback stack and restores
// the session from it. Returns false when the stack is empty.
func (o *Orchestrator) rollback(sess *session.Session) bool {
	o.mu.Lock()
	if len(o.rollbackStack) == 0 {
		o.mu.Unlock()
		return false
	}
	cp := o.rollbackStack[len(o.rollbackStack)-1]
	o.rollbackStack = o.rollbackStack[:len(o.rollbackStack)-1]
	o.mu.Unlock()

	if err := sess.RestoreFrom(cp.Snapshot); err != nil {
		o.logger.Error("rollback restore failed", "session_id", sess.ID, "error", err)
		return false
	}
	o.logger.Info("session rolled back", "session_id", sess.ID, "stage_index", cp.StageIndex)
	return true
}

// validateIntegrity checks the structural invariants of the session state.
func validateIntegrity(sess *session.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session has no id")
	}
	if strings.TrimSpace(sess.Query) == "" {
		return fmt.Errorf("session has no query")
	}
	if sess.AccumulatedContext == nil {
		return fmt.Errorf("accumulated context is missing")
	}
	if sess.Trace == nil {
		return fmt.Errorf("stage trace is missing")
	}
	if sess.FinalConfidenceVector != "" {
		if _, err := models.ParseConfidenceVector(sess.FinalConfidenceVector); err != nil {
			return fmt.Errorf("final confidence vector is malformed: %w", err)
		}
	}
	return nil
}

// finalize guarantees a well-formed final answer, confidence vector, and
// processing metadata on the session.
func (o *Orchestrator) finalize(sess *session.Session, start time.Time) {
	if strings.TrimSpace(sess.FinalAnswer) == "" {
		sess.FinalAnswer = defaultFinalAnswer
	}
	if _, err := models.ParseConfidenceVector(sess.FinalConfidenceVector); err != nil {
		sess.FinalConfidenceVector = fallbackVector
	}

	lowered := strings.ToLower(sess.FinalAnswer)
	success := !strings.Contains(lowered, "error") && !strings.Contains(lowered, "failed")

	sess.MergeContext(map[string]any{
		"processing_metadata": map[string]any{
			"total_duration_ms": time.Since(start).Milliseconds(),
			"stages_executed":   len(sess.Trace),
			"completion_time":   time.Now().UTC().Format(time.RFC3339),
			"success":           success,
		},
	})
}

// cleanupStages releases every stage's resources, logging failures.
func (o *Orchestrator) cleanupStages(ctx context.Context) {
	for _, st := range o.stages {
		if err := st.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed", "stage", st.Name(), "error", err)
		}
	}
}

// archiveSession writes the finished session to the archive, best effort.
func (o *Orchestrator) archiveSession(sess *session.Session) {
	if o.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.archive.SaveSession(ctx, sess); err != nil {
		o.logger.Warn("session archive failed", "session_id", sess.ID, "error", err)
	}
}

// Shutdown releases stage resources and clears checkpoint state. Calling it
// while a query is in flight logs a warning and proceeds.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.busySession != "" {
		o.logger.Warn("shutdown requested while busy", "session_id", o.busySession)
	}
	o.checkpoints = nil
	o.rollbackStack = nil
	o.state = StateIdle
	o.mu.Unlock()

	o.cleanupStages(ctx)
}
