// Package stage defines the execution contract every reasoning stage
// implements and the output shape the orchestrator consumes.
package stage

import (
	"context"

	"github.com/reasongraph/reasongraph/internal/session"
)

// Output is the result of one stage execution. ContextUpdate is merged into
// the session's accumulated context keyed by stage name.
type Output struct {
	Success       bool           `json:"success"`
	Summary       string         `json:"summary"`
	ContextUpdate map[string]any `json:"context_update,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Metrics       map[string]any `json:"metrics,omitempty"`
}

// Stage is the polymorphic contract of a pipeline stage. Cleanup is always
// invoked by the orchestrator after execution, whether Execute succeeded or
// returned an error.
type Stage interface {
	Name() string
	Execute(ctx context.Context, sess *session.Session) (Output, error)
	Cleanup(ctx context.Context) error
}

// Succeed builds a successful output with the stage's context payload.
func Succeed(stageName, summary string, payload map[string]any, metrics map[string]any) Output {
	return Output{
		Success:       true,
		Summary:       summary,
		ContextUpdate: map[string]any{stageName: payload},
		Metrics:       metrics,
	}
}

// Fail builds a failed output carrying the error message.
func Fail(stageName, summary, errorMessage string) Output {
	return Output{
		Success:       false,
		Summary:       summary,
		ErrorMessage:  errorMessage,
		ContextUpdate: map[string]any{stageName: map[string]any{"error": errorMessage}},
	}
}
