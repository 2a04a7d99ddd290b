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
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/reasongraph/reasongraph/internal/config"
)

// OpenAlexRetriever searches scholarly works through the OpenAlex API.
type OpenAlexRetriever struct {
	baseURL string
	mailto  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAlexRetriever builds the scholarly adapter.
func NewOpenAlexRetriever(cfg config.RetrievalConfig, timeout time.Duration, limiter *rate.Limiter) (*OpenAlexRetriever, error) {
	if cfg.OpenAlexBaseURL == "" {
		return nil, fmt.Errorf("openalex base URL not configured")
	}
	return &OpenAlexRetriever{
		baseURL: strings.TrimRight(cfg.OpenAlexBaseURL, "/"),
		mailto:  cfg.OpenAlexMailto,
		client:  newHTTPClient(timeout),
		limiter: limiter,
		logger:  slog.Default().With("component", "retrieval_openalex"),
	}, nil
}

func (r *OpenAlexRetriever) Name() string { return "openalex" }

type openAlexWork struct {
	Title           string  `json:"title"`
	DOI             string  `json:"doi"`
	PublicationDate string  `json:"publication_date"`
	CitedByCount    int     `json:"cited_by_count"`
	RelevanceScore  float64 `json:"relevance_score"`
	PrimaryLocation struct {
		LandingPageURL string `json:"landing_page_url"`
	} `json:"primary_location"`
	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

// Search queries the works endpoint by relevance.
func (r *OpenAlexRetriever) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if err := waitForSlot(ctx, r.limiter); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/works?search=%s&per-page=%d&sort=relevance_score:desc",
		r.baseURL, url.QueryEscape(query), limit)
	if r.mailto != "" {
		searchURL += "&mailto=" + url.QueryEscape(r.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("openalex returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openalex response decode failed: %w", err)
	}

	records := make([]ArticleRecord, 0, len(parsed.Results))
	for _, work := range parsed.Results {
		authors := make([]string, 0, len(work.Authorships))
		for _, a := range work.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}
		records = append(records, ArticleRecord{
			Title:           work.Title,
			Snippet:         reconstructAbstract(work.AbstractInvertedIndex, work.Title),
			URL:             work.PrimaryLocation.LandingPageURL,
			DOI:             strings.TrimPrefix(work.DOI, "https://doi.org/"),
			Authors:         authors,
			PublicationDate: work.PublicationDate,
			Score:           work.RelevanceScore,
			CitedByCount:    work.CitedByCount,
			Source:          r.Name(),
		})
		if len(records) >= limit {
			break
		}
	}
	r.logger.Debug("openalex search completed", "query_len", len(query), "results", len(records))
	return records, nil
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted index,
// falling back to the title when no abstract is available.
func reconstructAbstract(index map[string][]int, fallback string) string {
	if len(index) == 0 {
		return fallback
	}
	maxPos := 0
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p <= maxPos {
				words[p] = word
			}
		}
	}
	nonEmpty := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			nonEmpty = append(nonEmpty, w)
		}
	}
	text := strings.Join(nonEmpty, " ")
	if len(text) > 1200 {
		// Cut on a rune boundary so the snippet stays valid UTF-8.
		cut := 1200
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// Close releases adapter resources.
func (r *OpenAlexRetriever) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
