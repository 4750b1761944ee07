package agentbridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/voicebridge/internal/monitor"
	"github.com/MrWong99/voicebridge/internal/session"
	"github.com/MrWong99/voicebridge/pkg/action"
	"github.com/MrWong99/voicebridge/pkg/provider/llm"
	"github.com/MrWong99/voicebridge/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	chunks []llm.Chunk
	err    error
}

func (p *fakeProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan llm.Chunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}

func (p *fakeProvider) CountTokens([]types.Message) (int, error) { return 0, nil }

func (p *fakeProvider) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func oneChunk(text string) []llm.Chunk {
	return []llm.Chunk{{Text: text, FinishReason: "stop"}}
}

func TestAdapter_Handle_StructuredActions(t *testing.T) {
	reply := "```json\n{\"actions\":[{\"type\":\"speak\",\"message_id\":\"m1\",\"text\":\"Hello!\",\"barge_in\":true}]}\n```"
	provider := &fakeProvider{chunks: oneChunk(reply)}
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	speak, ok := actions[0].(action.Speak)
	require.True(t, ok)
	require.Equal(t, "Hello!", speak.Text)
}

func TestAdapter_Handle_ProseChunking(t *testing.T) {
	longText := strings.Repeat("word ", 300)
	provider := &fakeProvider{chunks: oneChunk(longText)}
	a := New(Config{Channel: "fortivoice", BackendName: "test", ChunkLimit: 100}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.NoError(t, err)
	require.Greater(t, len(actions), 1)
	for _, act := range actions {
		speak, ok := act.(action.Speak)
		require.True(t, ok)
		require.LessOrEqual(t, len([]rune(speak.Text)), 100)
	}
}

func TestAdapter_Handle_CollectHeuristic(t *testing.T) {
	reply := "Sure, which city are you asking about?"
	provider := &fakeProvider{chunks: oneChunk(reply)}
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{
		SessionID: "s1", TurnID: "t1", Text: "What's the weather like today?",
	})
	require.NoError(t, err)
	require.Len(t, actions, 2)

	speak, ok := actions[0].(action.Speak)
	require.True(t, ok)
	require.Equal(t, reply, speak.Text)

	collect, ok := actions[1].(action.Collect)
	require.True(t, ok)
	require.Len(t, collect.Schema.Fields, 1)
	require.Equal(t, "city", collect.Schema.Fields[0].Key)
}

func TestAdapter_Handle_MarkdownTableInlinedThenChunked(t *testing.T) {
	reply := "| Name | Age |\n| --- | --- |\n| Alice | 30 |"
	provider := &fakeProvider{chunks: oneChunk(reply)}
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	speak, ok := actions[0].(action.Speak)
	require.True(t, ok)
	require.Contains(t, speak.Text, "Alice, 30")
	require.NotContains(t, speak.Text, "|")
}

func TestAdapter_Handle_MediaURLReplacedWithNotice(t *testing.T) {
	reply := "Here is the photo: https://cdn.example.com/photo.png enjoy."
	provider := &fakeProvider{chunks: oneChunk(reply)}
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	speak, ok := actions[0].(action.Speak)
	require.True(t, ok)
	require.Contains(t, speak.Text, "[media omitted:")
	require.NotContains(t, speak.Text, "https://cdn.example.com/photo.png ")
}

func TestAdapter_Handle_StreamStartFailurePropagates(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, session.New(), provider)

	actions, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.Error(t, err)
	require.Nil(t, actions)
}

func TestAdapter_Handle_TracksSession(t *testing.T) {
	provider := &fakeProvider{chunks: oneChunk("ok")}
	store := session.New()
	a := New(Config{Channel: "fortivoice", BackendName: "test"}, store, provider)

	_, err := a.Handle(context.Background(), monitor.AgentRequest{SessionID: "s1", TurnID: "t1", Text: "hi"})
	require.NoError(t, err)

	_, ok := store.Get("s1")
	require.True(t, ok)
}
