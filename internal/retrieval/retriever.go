// Package retrieval holds the pluggable evidence adapters: biomedical article
// search, scholarly search, and neural web search. Adapters are constructed
// once per evidence stage and closed on stage exit.
package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/reasongraph/reasongraph/internal/config"
)

// ArticleRecord is one retrieved evidence item in the common shape all
// adapters produce.
type ArticleRecord struct {
	Title           string   `json:"title"`
	Snippet         string   `json:"snippet"`
	URL             string   `json:"url"`
	DOI             string   `json:"doi,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Score           float64  `json:"score,omitempty"`
	CitedByCount    int      `json:"cited_by_count,omitempty"`
	Source          string   `json:"source"`
}

// Retriever is the adapter contract the evidence stage consumes.
type Retriever interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error)
	Close() error
}

// NewRetrievers constructs the three adapters from configuration. A single
// construction failure is non-fatal; all three failing is fatal to the
// evidence stage.
func NewRetrievers(cfg config.RetrievalConfig) ([]Retriever, []error) {
	timeout := time.Duration(cfg.RequestTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 3
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	var retrievers []Retriever
	var failures []error

	if r, err := NewPubMedRetriever(cfg, timeout, limiter); err != nil {
		failures = append(failures, fmt.Errorf("pubmed adapter: %w", err))
	} else {
		retrievers = append(retrievers, r)
	}
	if r, err := NewOpenAlexRetriever(cfg, timeout, limiter); err != nil {
		failures = append(failures, fmt.Errorf("openalex adapter: %w", err))
	} else {
		retrievers = append(retrievers, r)
	}
	if r, err := NewWebSearchRetriever(cfg, timeout, limiter); err != nil {
		failures = append(failures, fmt.Errorf("web search adapter: %w", err))
	} else {
		retrievers = append(retrievers, r)
	}
	return retrievers, failures
}

// newHTTPClient builds a client with the adapter's request deadline.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// waitForSlot blocks on the shared rate limiter, honouring cancellation.
func waitForSlot(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}
	return nil
}
