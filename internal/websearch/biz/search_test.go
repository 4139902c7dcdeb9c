package biz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/conf"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/types"
)

type fakeProvider struct {
	resp  *types.SearchResponse
	err   error
	query *types.SearchRequest
}

func (f *fakeProvider) Search(_ context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	f.query = req
	return f.resp, f.err
}

func (f *fakeProvider) GetID() types.ProviderID { return "fake" }

func TestSearchValidatesQuery(t *testing.T) {
	uc := NewSearchUseCaseWithProvider(&fakeProvider{}, 5, logger.NewNop())
	_, err := uc.Search(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation, apperrors.ExtractCode(err))
	assert.Equal(t, "Search query is required", apperrors.PublicMessage(err))
}

func TestSearchPassesTrimmedQueryAndLimit(t *testing.T) {
	fp := &fakeProvider{resp: &types.SearchResponse{}}
	uc := NewSearchUseCaseWithProvider(fp, 4, logger.NewNop())

	resp, err := uc.Search(context.Background(), "  vite config ")
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, "vite config", fp.query.Query)
	assert.Equal(t, 4, fp.query.MaxResults)
}

func TestSearchWrapsProviderFailure(t *testing.T) {
	uc := NewSearchUseCaseWithProvider(&fakeProvider{err: errors.New("boom")}, 5, logger.NewNop())
	_, err := uc.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrWebSearch, apperrors.ExtractCode(err))
	assert.Equal(t, "Failed to perform web search", apperrors.PublicMessage(err))
}

func TestNewSearchUseCaseFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"title":"x","url":"https://x","content":"X"}]}`))
	}))
	defer srv.Close()

	uc := NewSearchUseCase(conf.WebSearchConfig{Provider: "SearXNG", BaseURL: srv.URL + "/", MaxResults: 5}, logger.NewNop())
	require.True(t, uc.Available())
	resp, err := uc.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []types.SearchResult{{Title: "x", Snippet: "X", Link: "https://x"}}, resp.Results)

	// tavily 没有 key，搜索被禁用
	disabled := NewSearchUseCase(conf.WebSearchConfig{Provider: "tavily"}, logger.NewNop())
	assert.False(t, disabled.Available())
	_, err = disabled.Search(context.Background(), "x")
	assert.Equal(t, apperrors.ErrWebSearch, apperrors.ExtractCode(err))
}
