package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "github.com/reasongraph/reasongraph/internal/errors"
)

// AccessMode selects read vs write routing for a query.
type AccessMode string

const (
	ModeRead  AccessMode = "read"
	ModeWrite AccessMode = "write"
)

// Repository is the contract the stages consume against the store.
type Repository struct {
	client *Client
	logger *slog.Logger
}

// NewRepository wraps a connected client.
func NewRepository(client *Client) *Repository {
	return &Repository{
		client: client,
		logger: slog.Default().With("component", "graph_repository"),
	}
}

// Client exposes the underlying client (health checks, shutdown).
func (r *Repository) Client() *Client { return r.client }

// queryOptions collects per-call policy flags.
type queryOptions struct {
	allowDestructive bool
}

// QueryOption adjusts the guard policy for one call.
type QueryOption func(*queryOptions)

// AllowDestructive permits DELETE/REMOVE writes; reserved for the pruning and
// merging stage.
func AllowDestructive() QueryOption {
	return func(o *queryOptions) { o.allowDestructive = true }
}

// Statements that operate on the database surface itself are always rejected;
// destructive graph verbs pass only under the pruning policy.
var (
	adminPattern       = regexp.MustCompile(`(?i)\b(DROP|CREATE\s+DATABASE|ALTER\s+DATABASE|GRANT|REVOKE|DENY)\b`)
	adminProcPattern   = regexp.MustCompile(`(?i)\bCALL\s+(dbms\.|apoc\.systemdb|apoc\.trigger|apoc\.cypher\.runFile)`)
	destructivePattern = regexp.MustCompile(`(?i)\b(DETACH\s+DELETE|DELETE|REMOVE)\b`)
)

// guardQuery rejects administrative statements and, absent the pruning policy,
// destructive ones.
func guardQuery(query string, opts queryOptions) error {
	if adminPattern.MatchString(query) || adminProcPattern.MatchString(query) {
		return apperrors.New(apperrors.KindInvalidInput, "query rejected: administrative statements are not permitted")
	}
	if !opts.allowDestructive && destructivePattern.MatchString(query) {
		return apperrors.New(apperrors.KindInvalidInput, "query rejected: destructive statements require the pruning policy")
	}
	return nil
}

// ExecuteQuery runs one parameterised statement against the configured
// database and returns the records as maps.
func (r *Repository) ExecuteQuery(ctx context.Context, query string, params map[string]any, mode AccessMode, opts ...QueryOption) ([]map[string]any, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := guardQuery(query, o); err != nil {
		return nil, err
	}

	configurers := []neo4j.ExecuteQueryConfigurationOption{
		neo4j.ExecuteQueryWithDatabase(r.client.Database()),
	}
	if mode == ModeRead {
		configurers = append(configurers, neo4j.ExecuteQueryWithReadersRouting())
	} else {
		configurers = append(configurers, neo4j.ExecuteQueryWithWritersRouting())
	}

	result, err := neo4j.ExecuteQuery(ctx, r.client.Driver(), query, params,
		neo4j.EagerResultTransformer, configurers...)
	if err != nil {
		return nil, apperrors.TransientStore(sanitizeError(err), "query execution failed")
	}

	records := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, record.AsMap())
	}
	r.logger.Debug("query executed", "statement", describeQuery(query), "records", len(records))
	return records, nil
}

// TxWork is a closure of one-or-more statements run atomically.
type TxWork func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error)

// ExecuteInTransaction runs work atomically inside a managed transaction with
// the driver's retry window.
func (r *Repository) ExecuteInTransaction(ctx context.Context, work TxWork, mode AccessMode) (any, error) {
	sessMode := neo4j.AccessModeWrite
	if mode == ModeRead {
		sessMode = neo4j.AccessModeRead
	}
	session := r.client.Driver().NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.client.Database(),
		AccessMode:   sessMode,
	})
	defer session.Close(ctx)

	run := func(tx neo4j.ManagedTransaction) (any, error) {
		return work(ctx, tx)
	}

	var out any
	var err error
	if mode == ModeRead {
		out, err = session.ExecuteRead(ctx, run)
	} else {
		out, err = session.ExecuteWrite(ctx, run)
	}
	if err != nil {
		return nil, apperrors.TransientStore(sanitizeError(err), "transaction failed")
	}
	return out, nil
}

// BatchQuery is one statement of a write set.
type BatchQuery struct {
	Query  string
	Params map[string]any
}

// ExecuteBatch runs a write set atomically in one transaction.
func (r *Repository) ExecuteBatch(ctx context.Context, queries []BatchQuery, opts ...QueryOption) error {
	if len(queries) == 0 {
		return nil
	}
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, q := range queries {
		if err := guardQuery(q.Query, o); err != nil {
			return err
		}
	}

	_, err := r.ExecuteInTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) (any, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch statement %d failed: %w", i, err)
			}
		}
		return nil, nil
	}, ModeWrite)
	return err
}

// HealthCheck probes store connectivity.
func (r *Repository) HealthCheck(ctx context.Context) bool {
	return r.client.HealthCheck(ctx) == nil
}

// scalarFromRecord extracts a typed scalar out of a record map.
func scalarFromRecord[T any](record map[string]any, key string) (T, bool) {
	var zero T
	raw, ok := record[key]
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// stringList coerces a record value into a string slice.
func stringList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
