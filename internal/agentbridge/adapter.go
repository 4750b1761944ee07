// Package agentbridge implements the agent bridge adapter: the component
// that turns one realtime conversation turn into the list of voice actions
// the connection monitor hands back to the telephony peer.
//
// It formats the turn into an envelope the external agent understands,
// appends a fixed instruction block asking for structured JSON actions,
// dispatches the turn to an [llm.Provider] behind a circuit breaker, and
// runs the streamed reply through a block-by-block sanitiser and fallback
// parsing chain (structured actions; otherwise plain speech chunking, with a
// collect action from the collect heuristic appended after the speech).
package agentbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voicebridge/internal/monitor"
	"github.com/MrWong99/voicebridge/internal/resilience"
	"github.com/MrWong99/voicebridge/internal/session"
	"github.com/MrWong99/voicebridge/pkg/action"
	"github.com/MrWong99/voicebridge/pkg/provider/llm"
	"github.com/MrWong99/voicebridge/pkg/types"
)

// instructionBlock is appended to every turn sent to the agent, asking it to
// reply with a structured action envelope instead of free prose.
const instructionBlock = `You are speaking through a telephony voice bridge. Prefer replying with a
single JSON object of the shape {"actions": [...]}, where each entry in
actions is one of:
  {"type": "speak", "message_id": "<id>", "text": "<line>", "barge_in": true|false}
  {"type": "collect", "schema": {"fields": [{"key": "<name>", "type": "string|number|integer|boolean|date|datetime", "required": true|false}]}}
  {"type": "end", "reason": "<reason>", "transfer": {"to": "<target>", "mode": "warm|cold"}}
The JSON object may be wrapped in a fenced code block. If you do not reply
with this structure, your reply is treated as plain prose to be spoken.`

// metricsSink is the narrow slice of [observe.Metrics] the adapter needs.
// Defined locally so this package does not require an observe import for
// its core logic; callers pass their own [*observe.Metrics] which already
// satisfies it.
type metricsSink interface {
	RecordAgentRequest(ctx context.Context, backend, status string, durationSeconds float64)
	RecordActionEmitted(ctx context.Context, kind string)
}

// Config holds the per-channel settings the adapter needs beyond its
// collaborators.
type Config struct {
	// Channel names the channel this adapter serves, used in the formatted
	// envelope's "channel" field.
	Channel string

	// BackendName labels this adapter's agent backend in metrics and logs
	// (e.g. "openai").
	BackendName string

	// MarkdownMode selects the markdown-table sanitiser behaviour: "strip",
	// "inline", or "passthrough". Empty defaults to "inline".
	MarkdownMode string

	// ChunkLimit bounds a single chunked speak action's length. Zero means
	// [action.DefaultChunkLimit].
	ChunkLimit int

	// ChunkMode selects the prose chunking strategy.
	ChunkMode action.ChunkMode
}

// Option configures an [Adapter] at construction time.
type Option func(*Adapter)

// WithLogger overrides the default [slog.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics injects a metrics sink. Without one, metrics are skipped.
func WithMetrics(m metricsSink) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithCircuitBreaker overrides the default breaker. Used by tests, and by
// callers that want to share one breaker configuration across adapters.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Adapter) { a.breaker = cb }
}

// Adapter implements [monitor.AgentBridge] against a pluggable [llm.Provider]
// back-end (typically a [resilience.LLMFallback] wrapping several).
type Adapter struct {
	cfg      Config
	store    *session.Store
	provider llm.Provider
	breaker  *resilience.CircuitBreaker
	metrics  metricsSink
	log      *slog.Logger
}

var _ monitor.AgentBridge = (*Adapter)(nil)

// New builds an [Adapter]. store and provider are capability bundles
// injected by the caller — the adapter never reaches for a package-level
// singleton to reach storage or the agent back-end.
func New(cfg Config, store *session.Store, provider llm.Provider, opts ...Option) *Adapter {
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = action.DefaultChunkLimit
	}
	a := &Adapter{
		cfg:      cfg,
		store:    store,
		provider: provider,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.breaker == nil {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "agentbridge:" + cfg.Channel,
		})
	}
	return a
}

// Handle implements [monitor.AgentBridge]. It formats req into an agent
// turn, dispatches it, and returns the accumulated action list.
func (a *Adapter) Handle(ctx context.Context, req monitor.AgentRequest) ([]action.Action, error) {
	start := time.Now()
	a.store.Track(req.SessionID, nil)

	messages := []types.Message{
		{Role: "system", Content: instructionBlock},
		{Role: "user", Content: a.formatEnvelope(req)},
	}

	var chunks <-chan llm.Chunk
	err := a.breaker.Execute(func() error {
		var cerr error
		chunks, cerr = a.provider.StreamCompletion(ctx, llm.CompletionRequest{Messages: messages})
		return cerr
	})
	if err != nil {
		a.recordAgentRequest(ctx, "error", time.Since(start))
		return nil, fmt.Errorf("agentbridge: stream completion: %w", err)
	}

	var actions []action.Action
	streamErr := accumulateBlocks(chunks, func(block string) {
		actions = append(actions, a.processBlock(req, block)...)
	})
	status := "ok"
	if streamErr != "" {
		status = "partial"
		a.log.Warn("agentbridge: stream ended with error", "session_id", req.SessionID, "error", streamErr)
	}

	a.recordAgentRequest(ctx, status, time.Since(start))
	if a.metrics != nil {
		for _, act := range actions {
			a.metrics.RecordActionEmitted(ctx, act.Kind())
		}
	}
	return actions, nil
}

func (a *Adapter) recordAgentRequest(ctx context.Context, status string, elapsed time.Duration) {
	if a.metrics != nil {
		a.metrics.RecordAgentRequest(ctx, a.cfg.BackendName, status, elapsed.Seconds())
	}
}

// formatEnvelope builds the agent-facing turn envelope: channel, peer
// descriptor, turn metadata, and the prior-session timestamp, followed by
// the turn's text.
func (a *Adapter) formatEnvelope(req monitor.AgentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "channel: %s\n", a.cfg.Channel)
	fmt.Fprintf(&b, "peer: {kind: direct, id: \"session:%s\"}\n", req.SessionID)
	fmt.Fprintf(&b, "turn_id: %s\n", req.TurnID)
	fmt.Fprintf(&b, "turn_type: %s\n", req.InputType)
	fmt.Fprintf(&b, "ts: %s\n", time.Now().UTC().Format(time.RFC3339))
	if !req.PriorSeenAt.IsZero() {
		fmt.Fprintf(&b, "prior_session_at: %s\n", req.PriorSeenAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("---\n")
	b.WriteString(req.Text)
	return b.String()
}

// processBlock runs one streamed block through the sanitiser, then returns
// its structured actions if it parses as such; otherwise it chunks the block
// into speak actions and appends a collect action when the collect
// heuristic matches.
func (a *Adapter) processBlock(req monitor.AgentRequest, block string) []action.Action {
	block = sanitizeMarkdownTables(block, a.cfg.MarkdownMode)
	block = appendMediaNotices(block)
	block = strings.TrimSpace(block)
	if block == "" {
		return nil
	}

	if acts, ok := action.ParseStructured(block); ok {
		return acts
	}

	speaks := action.Chunk(block, a.cfg.ChunkLimit, a.cfg.ChunkMode)
	out := make([]action.Action, 0, len(speaks)+1)
	for _, s := range speaks {
		out = append(out, s)
	}

	if collect, ok := action.InferCollect(req.Text, block); ok {
		out = append(out, collect)
	}
	return out
}
