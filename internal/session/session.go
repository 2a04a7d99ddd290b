// Package session holds the per-query mutable state threaded through the
// pipeline stages, plus the checkpoint snapshots the orchestrator rolls back
// to.
package session

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Reserved accumulated-context keys.
const (
	KeyOperationalParams = "operational_params"
	KeyInitialContext    = "initial_context"
)

// TraceRecord is one entry of the per-stage execution trace.
type TraceRecord struct {
	StageNumber    int            `json:"stage_number"`
	StageName      string         `json:"stage_name"`
	DurationMS     int64          `json:"duration_ms"`
	Summary        string         `json:"summary"`
	Timestamp      string         `json:"timestamp"`
	Error          string         `json:"error,omitempty"`
	Metrics        map[string]any `json:"metrics,omitempty"`
	RecoveryAction string         `json:"recovery_action,omitempty"`
}

// Session is the per-query state carried end-to-end. The final confidence
// vector keeps its wire form ("e,t,m,c") so consumers see exactly what was
// persisted.
type Session struct {
	ID                    string         `json:"session_id"`
	Query                 string         `json:"query"`
	FinalAnswer           string         `json:"final_answer"`
	FinalConfidenceVector string         `json:"final_confidence_vector"`
	AccumulatedContext    map[string]any `json:"accumulated_context"`
	Trace                 []TraceRecord  `json:"stage_outputs_trace"`

	// rng is excluded from snapshots; restoring a checkpoint keeps the
	// current generator so replayed stages draw fresh values.
	rng *rand.Rand
}

// New creates a session for a query with optional operational parameters.
// When operationalParams carries an integer "random_seed" the session's
// generator is seeded from it for reproducible runs.
func New(query string, operationalParams map[string]any) *Session {
	if operationalParams == nil {
		operationalParams = map[string]any{}
	}
	s := &Session{
		ID:                    uuid.NewString(),
		Query:                 query,
		FinalConfidenceVector: "",
		AccumulatedContext: map[string]any{
			KeyOperationalParams: operationalParams,
			KeyInitialContext:    map[string]any{},
		},
		Trace: []TraceRecord{},
	}
	s.rng = rand.New(rand.NewSource(resolveSeed(operationalParams)))
	return s
}

func resolveSeed(params map[string]any) int64 {
	if raw, ok := params["random_seed"]; ok {
		switch v := raw.(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return time.Now().UnixNano()
}

// Rand returns the session's random generator.
func (s *Session) Rand() *rand.Rand {
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rng
}

// OperationalParams returns the reserved parameter map, creating it on demand.
func (s *Session) OperationalParams() map[string]any {
	if s.AccumulatedContext == nil {
		s.AccumulatedContext = map[string]any{}
	}
	raw, ok := s.AccumulatedContext[KeyOperationalParams]
	if ok {
		if m, ok := raw.(map[string]any); ok {
			return m
		}
	}
	m := map[string]any{}
	s.AccumulatedContext[KeyOperationalParams] = m
	return m
}

// StageContext returns the context slot a stage wrote, or nil.
func (s *Session) StageContext(stageName string) map[string]any {
	raw, ok := s.AccumulatedContext[stageName]
	if !ok {
		return nil
	}
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return nil
}

// MergeContext merges a stage's context update into the accumulated context.
// Conflict policy: arrays concatenate, objects shallow-merge, and scalars keep
// the previous value under "<key>_previous" before overwriting.
func (s *Session) MergeContext(update map[string]any) {
	if s.AccumulatedContext == nil {
		s.AccumulatedContext = map[string]any{}
	}
	for key, incoming := range update {
		existing, present := s.AccumulatedContext[key]
		if !present {
			s.AccumulatedContext[key] = incoming
			continue
		}
		switch oldVal := existing.(type) {
		case []any:
			if newVal, ok := incoming.([]any); ok {
				s.AccumulatedContext[key] = append(append([]any{}, oldVal...), newVal...)
				continue
			}
		case map[string]any:
			if newVal, ok := incoming.(map[string]any); ok {
				merged := make(map[string]any, len(oldVal)+len(newVal))
				for k, v := range oldVal {
					merged[k] = v
				}
				for k, v := range newVal {
					merged[k] = v
				}
				s.AccumulatedContext[key] = merged
				continue
			}
		}
		s.AccumulatedContext[key+"_previous"] = existing
		s.AccumulatedContext[key] = incoming
	}
}

// AppendTrace records a stage's trace entry.
func (s *Session) AppendTrace(record TraceRecord) {
	s.Trace = append(s.Trace, record)
}

// DeepCopy snapshots every top-level field by JSON round-trip. The session's
// shape is small and fixed, so the copy cost is acceptable.
func (s *Session) DeepCopy() (*Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}
	var copied Session
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("failed to restore session snapshot: %w", err)
	}
	copied.rng = s.rng
	return &copied, nil
}

// RestoreFrom overwrites this session's fields from a snapshot, keeping the
// current random generator. The fields are deep-copied so later mutations of
// the session never reach back into the stored snapshot.
func (s *Session) RestoreFrom(snapshot *Session) error {
	copied, err := snapshot.DeepCopy()
	if err != nil {
		return fmt.Errorf("failed to restore from snapshot: %w", err)
	}
	s.ID = copied.ID
	s.Query = copied.Query
	s.FinalAnswer = copied.FinalAnswer
	s.FinalConfidenceVector = copied.FinalConfidenceVector
	s.AccumulatedContext = copied.AccumulatedContext
	s.Trace = copied.Trace
	return nil
}
