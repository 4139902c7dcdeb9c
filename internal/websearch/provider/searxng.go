package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/types"
)

// SearXNGProvider implements the SearXNG search API
type SearXNGProvider struct {
	*BaseProvider
}

// NewSearXNGProvider creates a new SearXNG provider
func NewSearXNGProvider(config *types.ProviderConfig) (Provider, error) {
	return &SearXNGProvider{BaseProvider: NewBaseProvider(config)}, nil
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search executes a search query using the SearXNG JSON API
func (p *SearXNGProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	start := time.Now()
	limit := maxResults(req)

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("format", "json")
	params.Set("pageno", "1")
	params.Set("number_of_results", strconv.Itoa(limit))
	apiURL := p.config.APIHost + "/search?" + params.Encode()

	body, err := p.Do(ctx, func(ctx context.Context, _ string) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		if p.config.BasicAuthUsername != "" {
			httpReq.SetBasicAuth(p.config.BasicAuthUsername, p.config.BasicAuthPassword)
		}
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	var resp searxngResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// SearXNG 不保证遵守 number_of_results
	results := make([]types.SearchResult, 0, min(len(resp.Results), limit))
	for _, r := range resp.Results {
		if len(results) == limit {
			break
		}
		results = append(results, types.SearchResult{Title: r.Title, Snippet: r.Content, Link: r.URL})
	}
	return &types.SearchResponse{
		Results:  results,
		Provider: p.GetID(),
		Took:     time.Since(start).Milliseconds(),
	}, nil
}
