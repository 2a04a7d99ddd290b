package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reasongraph/reasongraph/internal/config"
	"github.com/reasongraph/reasongraph/internal/session"
	"github.com/reasongraph/reasongraph/internal/stage"
)

// stubStage is a scriptable pipeline stage for orchestration tests.
type stubStage struct {
	name     string
	execute  func(ctx context.Context, sess *session.Session) (stage.Output, error)
	cleanups atomic.Int32
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, sess *session.Session) (stage.Output, error) {
	if s.execute != nil {
		return s.execute(ctx, sess)
	}
	return stage.Succeed(s.name, s.name+" done", map[string]any{"ok": true}, nil), nil
}

func (s *stubStage) Cleanup(context.Context) error {
	s.cleanups.Add(1)
	return nil
}

func newTestOrchestrator(stages ...stage.Stage) *Orchestrator {
	return New(stages, config.Default(), nil, nil)
}

func TestProcessQueryHappyPath(t *testing.T) {
	first := &stubStage{name: "InitializationStage"}
	second := &stubStage{name: "DecompositionStage"}
	o := newTestOrchestrator(first, second)

	sess, err := o.ProcessQuery(context.Background(), "what drives reef recovery", nil)
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, o.State())
	require.Len(t, sess.Trace, 2)
	assert.Equal(t, "InitializationStage", sess.Trace[0].StageName)
	assert.Equal(t, 1, sess.Trace[0].StageNumber)

	// No stage set a final answer, so the defaults apply.
	assert.Equal(t, "Processing completed, but no final answer was generated.", sess.FinalAnswer)
	assert.Equal(t, "0.5,0.5,0.5,0.5", sess.FinalConfidenceVector)

	meta, ok := sess.AccumulatedContext["processing_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, meta["stages_executed"])
	assert.Equal(t, true, meta["success"])

	assert.Equal(t, int32(1), first.cleanups.Load())
	assert.Equal(t, int32(1), second.cleanups.Load())
}

func TestProcessQueryRejectsConcurrentCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var startedOnce sync.Once
	blocking := &stubStage{
		name: "InitializationStage",
		execute: func(ctx context.Context, sess *session.Session) (stage.Output, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			return stage.Succeed("InitializationStage", "done", nil, nil), nil
		},
	}
	o := newTestOrchestrator(blocking)

	done := make(chan error, 1)
	go func() {
		_, err := o.ProcessQuery(context.Background(), "first query", nil)
		done <- err
	}()

	<-started
	_, err := o.ProcessQuery(context.Background(), "second query", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already processing session")

	close(release)
	require.NoError(t, <-done)

	// Once the first query finishes the orchestrator accepts work again.
	_, err = o.ProcessQuery(context.Background(), "third query", nil)
	assert.NoError(t, err)
}

func TestProcessQueryHaltsOnCriticalPattern(t *testing.T) {
	critical := &stubStage{
		name: "InitializationStage",
		execute: func(ctx context.Context, sess *session.Session) (stage.Output, error) {
			return stage.Fail("InitializationStage", "store unreachable",
				"database connection failed during bootstrap"), nil
		},
	}
	never := &stubStage{name: "DecompositionStage"}
	o := newTestOrchestrator(critical, never)

	sess, err := o.ProcessQuery(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, o.State())
	assert.Contains(t, sess.FinalAnswer, "critical error")
	assert.Equal(t, "0.0,0.0,0.0,0.0", sess.FinalConfidenceVector)
	// The second stage never ran.
	require.Len(t, sess.Trace, 1)

	meta := sess.AccumulatedContext["processing_metadata"].(map[string]any)
	assert.Equal(t, false, meta["success"])
}

func TestProcessQueryInitializationRejectionStopsPipeline(t *testing.T) {
	rejecting := &stubStage{
		name: "InitializationStage",
		execute: func(ctx context.Context, sess *session.Session) (stage.Output, error) {
			return stage.Fail("InitializationStage", "rejected", "query too vague to process"), nil
		},
	}
	downstream := &stubStage{name: "DecompositionStage"}
	o := newTestOrchestrator(rejecting, downstream)

	sess, err := o.ProcessQuery(context.Background(), "?", nil)
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, o.State())
	assert.Contains(t, sess.FinalAnswer, "Processing failed: query too vague to process")
	assert.Equal(t, "0.0,0.0,0.0,0.0", sess.FinalConfidenceVector)
	require.Len(t, sess.Trace, 1)
}

func TestProcessQueryRetriesThenSucceeds(t *testing.T) {
	first := &stubStage{name: "InitializationStage"}
	var attempts atomic.Int32
	flaky := &stubStage{
		name: "DecompositionStage",
		execute: func(ctx context.Context, sess *session.Session) (stage.Output, error) {
			if attempts.Add(1) == 1 {
				return stage.Output{}, fmt.Errorf("transient store timeout")
			}
			return stage.Succeed("DecompositionStage", "recovered", nil, nil), nil
		},
	}
	o := newTestOrchestrator(first, flaky)

	sess, err := o.ProcessQuery(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, StateFinalized, o.State())
	assert.Equal(t, int32(2), attempts.Load())
	require.Len(t, sess.Trace, 2)
	assert.Empty(t, sess.Trace[1].Error)
	assert.Contains(t, sess.Trace[1].RecoveryAction, "restored checkpoint")
}

func TestProcessQueryAbortsAfterExhaustedRetries(t *testing.T) {
	failing := &stubStage{
		name: "InitializationStage",
		execute: func(ctx context.Context, sess *session.Session) (stage.Output, error) {
			return stage.Output{}, fmt.Errorf("persistent failure")
		},
	}
	o := newTestOrchestrator(failing)

	sess, err := o.ProcessQuery(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, o.State())
	assert.Contains(t, sess.FinalAnswer, "Processing failed at stage InitializationStage")
	assert.Contains(t, sess.FinalAnswer, "after 3 attempts")
	assert.Equal(t, "0.0,0.0,0.0,0.0", sess.FinalConfidenceVector)
}

func TestProcessQueryAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&stubStage{name: "InitializationStage"})
	sess, err := o.ProcessQuery(ctx, "q", nil)
	require.NoError(t, err)

	assert.Equal(t, StateAborted, o.State())
	assert.Equal(t, "Processing aborted by cancellation.", sess.FinalAnswer)
	assert.Equal(t, "0.0,0.0,0.0,0.0", sess.FinalConfidenceVector)
	assert.Empty(t, sess.Trace)
}

func TestCheckpointBoundsHold(t *testing.T) {
	stages := make([]stage.Stage, 0, 14)
	for i := 0; i < 14; i++ {
		stages = append(stages, &stubStage{name: fmt.Sprintf("Stage%02d", i)})
	}
	o := newTestOrchestrator(stages...)

	_, err := o.ProcessQuery(context.Background(), "q", nil)
	require.NoError(t, err)

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.LessOrEqual(t, len(o.checkpoints), maxCheckpoints)
	assert.LessOrEqual(t, len(o.rollbackStack), maxRollbackDepth)
	// The ring keeps the most recent checkpoints.
	assert.Equal(t, 13, o.checkpoints[len(o.checkpoints)-1].StageIndex)
}

func TestValidateIntegrity(t *testing.T) {
	valid := session.New("a query", nil)
	assert.NoError(t, validateIntegrity(valid))

	noQuery := session.New("  ", nil)
	assert.Error(t, validateIntegrity(noQuery))

	noContext := session.New("q", nil)
	noContext.AccumulatedContext = nil
	assert.Error(t, validateIntegrity(noContext))

	badVector := session.New("q", nil)
	badVector.FinalConfidenceVector = "0.5,0.5"
	assert.Error(t, validateIntegrity(badVector))

	goodVector := session.New("q", nil)
	goodVector.FinalConfidenceVector = "0.5,0.5,0.5,0.5"
	assert.NoError(t, validateIntegrity(goodVector))
}

func TestFinalizeMarksFailuresUnsuccessful(t *testing.T) {
	o := newTestOrchestrator()
	sess := session.New("q", nil)
	sess.FinalAnswer = "Processing failed at stage EvidenceStage: adapter down"
	sess.FinalConfidenceVector = "not a vector"

	o.finalize(sess, time.Now())

	assert.Equal(t, "0.5,0.5,0.5,0.5", sess.FinalConfidenceVector)
	meta := sess.AccumulatedContext["processing_metadata"].(map[string]any)
	assert.Equal(t, false, meta["success"])
}

func TestShutdownResetsState(t *testing.T) {
	st := &stubStage{name: "InitializationStage"}
	o := newTestOrchestrator(st)

	_, err := o.ProcessQuery(context.Background(), "q", nil)
	require.NoError(t, err)

	o.Shutdown(context.Background())
	assert.Equal(t, StateIdle, o.State())
	// Cleanup ran once for the query and once for shutdown.
	assert.Equal(t, int32(2), st.cleanups.Load())

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Empty(t, o.checkpoints)
	assert.Empty(t, o.rollbackStack)
}
