// Package errors defines the pipeline's error taxonomy. Local recovery applies
// to adapter and transient store errors; invariant breaches surface after one
// rollback; configuration and critical-system errors are fatal.
package errors

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind categorizes a pipeline error.
type Kind int

const (
	// KindInvalidInput - malformed caller input, never retried.
	KindInvalidInput Kind = iota
	// KindIntegrityCorruption - session invariants broken mid-run.
	KindIntegrityCorruption
	// KindTransientStore - graph store network/timeout failure, retryable.
	KindTransientStore
	// KindAdapter - external retrieval service failure, retryable.
	KindAdapter
	// KindStageExecution - wraps any stage failure with its origin.
	KindStageExecution
	// KindCriticalSystem - matches the critical pattern set, halts the pipeline.
	KindCriticalSystem
	// KindConfiguration - missing or invalid settings, fatal at startup.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindIntegrityCorruption:
		return "INTEGRITY_CORRUPTION"
	case KindTransientStore:
		return "TRANSIENT_STORE"
	case KindAdapter:
		return "ADAPTER"
	case KindStageExecution:
		return "STAGE_EXECUTION"
	case KindCriticalSystem:
		return "CRITICAL_SYSTEM"
	case KindConfiguration:
		return "CONFIGURATION"
	default:
		return "UNKNOWN"
	}
}

// Error is a structured pipeline error carrying its kind and context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on kind so callers can branch with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair for diagnostics.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Retryable reports whether the orchestrator may retry the failed operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransientStore || e.Kind == KindAdapter
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a cause with a kind and message. Returns nil for a nil cause.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// InvalidInput creates a caller-input error.
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}

// IntegrityCorruption creates a session-invariant error.
func IntegrityCorruption(message string) *Error {
	return New(KindIntegrityCorruption, message)
}

// TransientStore wraps a retryable store failure.
func TransientStore(err error, message string) *Error {
	return Wrap(err, KindTransientStore, message)
}

// Adapter wraps a retrieval adapter failure.
func Adapter(err error, message string) *Error {
	return Wrap(err, KindAdapter, message)
}

// Configuration creates a fatal settings error.
func Configuration(message string) *Error {
	return New(KindConfiguration, message)
}

// StageError wraps any stage failure with the originating stage name and the
// index of the last checkpoint taken before the stage ran.
type StageError struct {
	StageName     string
	CheckpointIdx int
	Cause         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.StageName, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// NewStageError wraps err with its stage of origin.
func NewStageError(stageName string, checkpointIdx int, err error) *StageError {
	return &StageError{StageName: stageName, CheckpointIdx: checkpointIdx, Cause: err}
}

// criticalPatterns are the failure signatures that halt the whole pipeline
// with a cautionary final answer.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)database.*connection.*failed`),
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)stack overflow`),
	regexp.MustCompile(`(?i)critical.*system.*error`),
	regexp.MustCompile(`(?i)authentication.*failed`),
	regexp.MustCompile(`(?i)permission.*denied`),
}

// IsCriticalMessage reports whether an error message matches the critical
// pattern set.
func IsCriticalMessage(msg string) bool {
	if strings.TrimSpace(msg) == "" {
		return false
	}
	for _, re := range criticalPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
