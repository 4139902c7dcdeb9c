package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/types"
)

func TestNewFactory(t *testing.T) {
	factory := NewFactory()
	assert.Equal(t, []types.ProviderID{types.ProviderExa, types.ProviderSearXNG, types.ProviderTavily}, factory.ListProviders())
}

func TestFactory_Create(t *testing.T) {
	factory := NewFactory()

	tests := []struct {
		name     string
		config   *types.ProviderConfig
		wantHost string
		wantErr  error
	}{
		{
			name:     "tavily with default host",
			config:   &types.ProviderConfig{ID: types.ProviderTavily, APIKeys: []string{"k"}},
			wantHost: "https://api.tavily.com",
		},
		{
			name:     "searxng without key",
			config:   &types.ProviderConfig{ID: types.ProviderSearXNG, APIHost: "https://search.example.com"},
			wantHost: "https://search.example.com",
		},
		{
			name:    "searxng needs a host",
			config:  &types.ProviderConfig{ID: types.ProviderSearXNG},
			wantErr: types.ErrInvalidAPIHost,
		},
		{
			name:    "tavily needs a key",
			config:  &types.ProviderConfig{ID: types.ProviderTavily},
			wantErr: types.ErrMissingAPIKey,
		},
		{
			name:    "unknown provider",
			config:  &types.ProviderConfig{ID: "bing", APIHost: "https://x", APIKeys: []string{"k"}},
			wantErr: types.ErrProviderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.Create(tt.config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.ID, p.GetID())
			assert.Equal(t, tt.wantHost, tt.config.APIHost)
		})
	}
}

type staticProvider struct {
	*BaseProvider
}

func (s *staticProvider) Search(context.Context, *types.SearchRequest) (*types.SearchResponse, error) {
	return &types.SearchResponse{Results: []types.SearchResult{}}, nil
}

func TestFactory_Register(t *testing.T) {
	factory := NewFactory()
	customID := types.ProviderID("custom")
	factory.Register(customID, func(config *types.ProviderConfig) (Provider, error) {
		return &staticProvider{BaseProvider: NewBaseProvider(config)}, nil
	})

	assert.Contains(t, factory.ListProviders(), customID)
	p, err := factory.Create(&types.ProviderConfig{ID: customID, APIHost: "https://x", APIKeys: []string{"k"}})
	require.NoError(t, err)
	assert.Equal(t, customID, p.GetID())
}
