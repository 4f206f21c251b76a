// Package arxiv fetches paper titles and abstracts from the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/paper-rag/internal/backend"
	"github.com/bull/paper-rag/internal/source"
)

const (
	// DefaultBaseURL is the public arXiv query endpoint.
	DefaultBaseURL = "http://export.arxiv.org/api/query"

	// DefaultPageSize is how many entries one API request asks for.
	DefaultPageSize = 100

	// pageDelay spaces out paginated requests; arXiv asks clients to wait
	// three seconds between calls.
	pageDelay = 3 * time.Second
)

// feed mirrors the subset of the Atom response the pipeline needs.
type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
}

// Client queries the arXiv API. It implements source.Source for one
// configured search query.
type Client struct {
	baseURL    string
	httpClient *http.Client
	query      string
	maxResults int
	pageSize   int
}

// NewClient creates a client for the given search query. baseURL falls back
// to DefaultBaseURL; maxResults <= 0 fetches a single default page.
func NewClient(baseURL, query string, maxResults int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if maxResults <= 0 {
		maxResults = DefaultPageSize
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		query:      query,
		maxResults: maxResults,
		pageSize:   DefaultPageSize,
	}
}

// Fetch retrieves up to maxResults papers, paginating politely. Implements
// source.Source.
func (c *Client) Fetch(ctx context.Context) ([]source.Document, error) {
	var docs []source.Document

	for start := 0; start < c.maxResults; start += c.pageSize {
		count := min(c.pageSize, c.maxResults-start)

		entries, err := c.fetchPage(ctx, start, count)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			title := strings.TrimSpace(e.Title)
			summary := strings.TrimSpace(e.Summary)
			docs = append(docs, source.Document{
				ID:      uuid.New().String(),
				Title:   title,
				Summary: summary,
				Text:    summary,
			})
		}

		// A short page means the result set is exhausted.
		if len(entries) < count {
			break
		}
		if start+c.pageSize < c.maxResults {
			select {
			case <-time.After(pageDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return docs, nil
}

// fetchPage requests one page of results and parses the Atom feed.
func (c *Client) fetchPage(ctx context.Context, start, count int) ([]entry, error) {
	params := url.Values{}
	params.Set("search_query", c.query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build arxiv request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch arxiv page: %w", backend.ClassifyTimeout("arxiv request", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read arxiv response: %w", err)
	}

	return parseFeed(body)
}

// parseFeed extracts entry titles and summaries from an Atom document.
func parseFeed(data []byte) ([]entry, error) {
	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	return f.Entries, nil
}
