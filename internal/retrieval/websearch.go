package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/reasongraph/reasongraph/internal/config"
)

// WebSearchRetriever queries a neural web-search service (Exa-compatible
// POST /search API) for general-web evidence.
type WebSearchRetriever struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWebSearchRetriever builds the neural web-search adapter. It requires both
// a base URL and an API key.
func NewWebSearchRetriever(cfg config.RetrievalConfig, timeout time.Duration, limiter *rate.Limiter) (*WebSearchRetriever, error) {
	if cfg.WebSearchBaseURL == "" {
		return nil, fmt.Errorf("web search base URL not configured")
	}
	if cfg.WebSearchAPIKey == "" {
		return nil, fmt.Errorf("web search API key not configured")
	}
	return &WebSearchRetriever{
		baseURL: strings.TrimRight(cfg.WebSearchBaseURL, "/"),
		apiKey:  cfg.WebSearchAPIKey,
		client:  newHTTPClient(timeout),
		limiter: limiter,
		logger:  slog.Default().With("component", "retrieval_websearch"),
	}, nil
}

func (r *WebSearchRetriever) Name() string { return "websearch" }

type webSearchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Contents   struct {
		Highlights bool `json:"highlights"`
	} `json:"contents"`
}

type webSearchResponse struct {
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		PublishedDate string   `json:"publishedDate"`
		Author        string   `json:"author"`
		Score         float64  `json:"score"`
		Highlights    []string `json:"highlights"`
	} `json:"results"`
}

// Search posts the query to the search endpoint.
func (r *WebSearchRetriever) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if err := waitForSlot(ctx, r.limiter); err != nil {
		return nil, err
	}

	payload := webSearchRequest{Query: query, NumResults: limit}
	payload.Contents.Highlights = true
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("web search request encode failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("web search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("web search response decode failed: %w", err)
	}

	records := make([]ArticleRecord, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		snippet := item.Title
		if len(item.Highlights) > 0 {
			snippet = strings.Join(item.Highlights, " ")
		}
		var authors []string
		if item.Author != "" {
			authors = []string{item.Author}
		}
		records = append(records, ArticleRecord{
			Title:           item.Title,
			Snippet:         snippet,
			URL:             item.URL,
			Authors:         authors,
			PublicationDate: item.PublishedDate,
			Score:           item.Score,
			Source:          r.Name(),
		})
		if len(records) >= limit {
			break
		}
	}
	r.logger.Debug("web search completed", "query_len", len(query), "results", len(records))
	return records, nil
}

// Close releases adapter resources.
func (r *WebSearchRetriever) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
