package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCriticalMessage(t *testing.T) {
	tests := []struct {
		msg      string
		critical bool
	}{
		{"database connection failed after 3 retries", true},
		{"Database TCP connection to replica failed", true},
		{"process killed: out of memory", true},
		{"goroutine stack overflow detected", true},
		{"critical system error in scheduler", true},
		{"authentication failed for user neo4j", true},
		{"permission denied on /var/data", true},
		{"node not found", false},
		{"adapter timeout, retrying", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.critical, IsCriticalMessage(tt.msg), tt.msg)
	}
}

func TestErrorKindMatchingWithIs(t *testing.T) {
	err := TransientStore(fmt.Errorf("socket closed"), "query execution failed")

	assert.True(t, stderrors.Is(err, New(KindTransientStore, "")))
	assert.False(t, stderrors.Is(err, New(KindInvalidInput, "")))

	// Wrapping through fmt keeps kind matching intact.
	wrapped := fmt.Errorf("stage failed: %w", err)
	assert.True(t, stderrors.Is(wrapped, New(KindTransientStore, "")))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(cause, KindAdapter, "pubmed search failed")

	assert.Equal(t, "pubmed search failed: dial tcp: refused", err.Error())
	assert.Same(t, cause, stderrors.Unwrap(err))

	assert.Nil(t, Wrap(nil, KindAdapter, "ignored"))

	bare := InvalidInput("empty query")
	assert.Equal(t, "empty query", bare.Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, TransientStore(fmt.Errorf("x"), "m").Retryable())
	assert.True(t, Adapter(fmt.Errorf("x"), "m").Retryable())
	assert.False(t, InvalidInput("m").Retryable())
	assert.False(t, Configuration("m").Retryable())
	assert.False(t, IntegrityCorruption("m").Retryable())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "TRANSIENT_STORE", KindTransientStore.String())
	assert.Equal(t, "CRITICAL_SYSTEM", KindCriticalSystem.String())
	assert.Equal(t, "UNKNOWN", Kind(99).String())
}

func TestWithContext(t *testing.T) {
	err := New(KindStageExecution, "stage blew up").
		WithContext("stage", "EvidenceStage").
		WithContext("attempt", 2)

	require.NotNil(t, err.Context)
	assert.Equal(t, "EvidenceStage", err.Context["stage"])
	assert.Equal(t, 2, err.Context["attempt"])
}

func TestStageError(t *testing.T) {
	cause := New(KindTransientStore, "store gone")
	err := NewStageError("HypothesisStage", 2, cause)

	assert.Contains(t, err.Error(), "HypothesisStage")
	assert.True(t, stderrors.Is(err, New(KindTransientStore, "")))
	assert.Equal(t, 2, err.CheckpointIdx)
}
