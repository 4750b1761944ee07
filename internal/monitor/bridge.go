package monitor

import (
	"context"
	"time"

	"github.com/MrWong99/voicebridge/pkg/action"
)

// AgentRequest carries everything the agent bridge adapter needs to turn one
// realtime turn into a list of actions.
type AgentRequest struct {
	AccountID string
	Channel   string
	SessionID string
	TurnID    string
	InputType string
	Text      string

	// PriorSeenAt is the session's LastSeenAt value from before this turn was
	// tracked, zero if this is the session's first turn. The adapter includes
	// it in the envelope it formats for the agent.
	PriorSeenAt time.Time
}

// AgentBridge is the capability the monitor invokes for every eligible
// session.update. It is injected at construction — the monitor never reaches
// for a package-level singleton to reach the agent back-end.
type AgentBridge interface {
	Handle(ctx context.Context, req AgentRequest) ([]action.Action, error)
}
