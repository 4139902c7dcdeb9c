package types

// SearchRequest represents a search request
type SearchRequest struct {
	Query      string
	MaxResults int
}

// SearchResult 对外返回的单条结果
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// SearchResponse represents a search response
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Provider ProviderID     `json:"-"`
	Took     int64          `json:"-"` // milliseconds
}
