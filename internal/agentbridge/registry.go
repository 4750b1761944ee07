package agentbridge

import (
	"github.com/MrWong99/voicebridge/internal/config"
	"github.com/MrWong99/voicebridge/pkg/provider/llm"
	"github.com/MrWong99/voicebridge/pkg/provider/llm/openai"
)

// RegisterDefaultBackends registers the "openai" agent back-end factory into
// r, so a [config.ProviderEntry] named "openai" resolves to a real client.
func RegisterDefaultBackends(r *config.AgentRegistry) {
	r.Register("openai", newOpenAIBackend)
}

func newOpenAIBackend(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	return openai.New(entry.APIKey, entry.Model, opts...)
}
