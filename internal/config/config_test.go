package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicebridge/internal/config"
	"github.com/MrWong99/voicebridge/pkg/provider/llm"
	"github.com/MrWong99/voicebridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (s *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "stub:" + s.name}, nil
}

func (s *stubProvider) CountTokens(messages []types.Message) (int, error) { return len(messages), nil }

func (s *stubProvider) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func TestAgentRegistry_RegisterAndCreate(t *testing.T) {
	r := config.NewAgentRegistry()
	r.Register("stub", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &stubProvider{name: entry.Model}, nil
	})

	p, err := r.Create(config.ProviderEntry{Name: "stub", Model: "x"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "stub:x", resp.Content)
}

func TestAgentRegistry_CreateUnregisteredReturnsErrProviderNotRegistered(t *testing.T) {
	r := config.NewAgentRegistry()
	_, err := r.Create(config.ProviderEntry{Name: "missing"})
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered)
}

func TestAgentRegistry_LastRegistrationWins(t *testing.T) {
	r := config.NewAgentRegistry()
	r.Register("stub", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &stubProvider{name: "first"}, nil
	})
	r.Register("stub", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &stubProvider{name: "second"}, nil
	})

	p, err := r.Create(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	resp, _ := p.Complete(context.Background(), llm.CompletionRequest{})
	assert.Equal(t, "stub:second", resp.Content)
}

func TestLogLevel_IsValid(t *testing.T) {
	assert.True(t, config.LogDebug.IsValid())
	assert.True(t, config.LogInfo.IsValid())
	assert.True(t, config.LogWarn.IsValid())
	assert.True(t, config.LogError.IsValid())
	assert.False(t, config.LogLevel("bananas").IsValid())
}
