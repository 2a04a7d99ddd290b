package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/reasongraph/reasongraph/internal/config"
)

// PubMedRetriever searches biomedical articles through the NCBI E-utilities
// JSON endpoints (esearch to resolve PMIDs, esummary for metadata).
type PubMedRetriever struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPubMedRetriever builds the biomedical adapter.
func NewPubMedRetriever(cfg config.RetrievalConfig, timeout time.Duration, limiter *rate.Limiter) (*PubMedRetriever, error) {
	if cfg.PubMedBaseURL == "" {
		return nil, fmt.Errorf("pubmed base URL not configured")
	}
	return &PubMedRetriever{
		baseURL: strings.TrimRight(cfg.PubMedBaseURL, "/"),
		apiKey:  cfg.PubMedAPIKey,
		client:  newHTTPClient(timeout),
		limiter: limiter,
		logger:  slog.Default().With("component", "retrieval_pubmed"),
	}, nil
}

func (r *PubMedRetriever) Name() string { return "pubmed" }

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryDoc struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ELocationID string `json:"elocationid"`
	ArticleIDs  []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

// Search resolves PMIDs for the query and fetches their summaries.
func (r *PubMedRetriever) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if err := waitForSlot(ctx, r.limiter); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmode=json&retmax=%d&term=%s",
		r.baseURL, limit, url.QueryEscape(query))
	if r.apiKey != "" {
		searchURL += "&api_key=" + url.QueryEscape(r.apiKey)
	}

	var search esearchResponse
	if err := r.getJSON(ctx, searchURL, &search); err != nil {
		return nil, fmt.Errorf("pubmed search failed: %w", err)
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	if err := waitForSlot(ctx, r.limiter); err != nil {
		return nil, err
	}
	summaryURL := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s",
		r.baseURL, strings.Join(ids, ","))
	if r.apiKey != "" {
		summaryURL += "&api_key=" + url.QueryEscape(r.apiKey)
	}

	var summary esummaryResponse
	if err := r.getJSON(ctx, summaryURL, &summary); err != nil {
		return nil, fmt.Errorf("pubmed summary failed: %w", err)
	}

	records := make([]ArticleRecord, 0, len(ids))
	for _, id := range ids {
		raw, ok := summary.Result[id]
		if !ok {
			continue
		}
		var doc esummaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			r.logger.Debug("skipping malformed summary entry", "pmid", id)
			continue
		}
		authors := make([]string, 0, len(doc.Authors))
		for _, a := range doc.Authors {
			authors = append(authors, a.Name)
		}
		doi := ""
		for _, aid := range doc.ArticleIDs {
			if aid.IDType == "doi" {
				doi = aid.Value
				break
			}
		}
		records = append(records, ArticleRecord{
			Title:           doc.Title,
			Snippet:         doc.Title,
			URL:             "https://pubmed.ncbi.nlm.nih.gov/" + id + "/",
			DOI:             doi,
			Authors:         authors,
			PublicationDate: doc.PubDate,
			Source:          r.Name(),
		})
		if len(records) >= limit {
			break
		}
	}
	r.logger.Debug("pubmed search completed", "query_len", len(query), "results", len(records))
	return records, nil
}

func (r *PubMedRetriever) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases adapter resources.
func (r *PubMedRetriever) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
