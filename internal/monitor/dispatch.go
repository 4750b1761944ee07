package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voicebridge/internal/session"
	"github.com/MrWong99/voicebridge/pkg/action"
	"github.com/MrWong99/voicebridge/pkg/wire"
	"github.com/google/uuid"
)

// dispatchLoop reads frames off conn until the connection ends, parsing and
// dispatching each one before reading the next — handler completion of
// message n precedes handler start of message n+1 simply because this is a
// single goroutine doing a blocking read between dispatches.
func (m *Monitor) dispatchLoop(ctx context.Context, conn wsConn, connID string, seq *seqCounter) (*DisconnectInfo, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(closeStatusAborted, "aborted")
				return &DisconnectInfo{At: time.Now().UTC(), Status: "aborted"}, nil
			}
			return &DisconnectInfo{At: time.Now().UTC(), Status: "transport_error", Error: err.Error()}, err
		}

		env, err := wire.Parse(data)
		if err != nil {
			m.log.Debug("monitor: dropping unparseable frame", "account_id", m.accountID, "error", err)
			continue
		}

		m.handleEnvelope(ctx, conn, env, connID, seq)
	}
}

// handleEnvelope dispatches env to its op handler and, if a reply was
// produced, sends it. A panicking handler is caught, logged, and reported
// through the status sink — the connection stays up per the handler
// error-handling policy.
func (m *Monitor) handleEnvelope(ctx context.Context, conn wsConn, env *wire.Envelope, connID string, seq *seqCounter) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor: handler panic", "account_id", m.accountID, "op", env.Op, "panic", r)
			m.sink.Update(ConnectionStatus{
				AccountID: m.accountID,
				Connected: true,
				ConnID:    connID,
				LastError: fmt.Sprintf("handler panic in %s: %v", env.Op, r),
			})
		}
	}()

	reply := m.dispatch(ctx, env, connID, seq)
	if reply == nil {
		return
	}
	if err := writeEnvelope(ctx, conn, reply); err != nil {
		m.log.Warn("monitor: send reply failed", "account_id", m.accountID, "op", env.Op, "error", err)
	}
}

// dispatch implements the handler-per-op table. It returns nil when no reply
// is due (events).
func (m *Monitor) dispatch(ctx context.Context, env *wire.Envelope, connID string, seq *seqCounter) *wire.Envelope {
	switch wire.Operation(env.Op) {
	case wire.OpSystemHello:
		return env.Reply(seq.next(), wire.OKPayload(map[string]any{
			"conn_id":        connID,
			"server":         map[string]any{"name": m.clientName, "version": m.clientVersion},
			"heartbeat_sec":  heartbeatSec,
			"dedupe_ttl_sec": dedupeTTLSec,
		}))

	case wire.OpSystemPing:
		result := map[string]any{}
		if nonce, ok := env.Payload["nonce"]; ok {
			result["nonce"] = nonce
		}
		return env.Reply(seq.next(), wire.OKPayload(result))

	case wire.OpSessionStart:
		return m.handleSessionStart(env, seq)

	case wire.OpSessionUpdate:
		return m.handleSessionUpdate(ctx, env, seq)

	case wire.OpSessionEnd:
		if env.Type == wire.TypeEvent {
			if env.SessionID != nil {
				m.store.End(*env.SessionID)
			}
			return nil
		}
		return env.Reply(seq.next(), wire.ErrPayload("unsupported_op", "session.end must be sent as an event", nil))

	default:
		return env.Reply(seq.next(), wire.ErrPayload("unsupported_op", fmt.Sprintf("unsupported operation %q", env.Op), nil))
	}
}

func (m *Monitor) handleSessionStart(env *wire.Envelope, seq *seqCounter) *wire.Envelope {
	if env.SessionID == nil || *env.SessionID == "" {
		return env.Reply(seq.next(), wire.ErrPayload("invalid_session", "session_id is required", nil))
	}
	sessionID := *env.SessionID

	var call *session.Call
	if rawCall, ok := env.Payload["call"].(map[string]any); ok {
		call = &session.Call{
			CallID:    stringField(rawCall, "call_id"),
			From:      stringField(rawCall, "from"),
			To:        stringField(rawCall, "to"),
			Direction: stringField(rawCall, "direction"),
		}
	}
	m.store.Track(sessionID, call)

	actions := m.drainQueueActions(sessionID)
	if m.account.HelloWorldOnStart {
		greeting := action.Speak{
			MessageID: "greet-" + uuid.NewString(),
			Text:      fmt.Sprintf("Hello from %s, how can I help?", m.clientName),
			BargeIn:   true,
		}
		actions = append([]action.Action{greeting}, actions...)
	}

	return env.Reply(seq.next(), wire.OKPayload(map[string]any{"actions": actions}))
}

func (m *Monitor) handleSessionUpdate(ctx context.Context, env *wire.Envelope, seq *seqCounter) *wire.Envelope {
	if env.SessionID == nil || *env.SessionID == "" {
		return env.Reply(seq.next(), wire.ErrPayload("invalid_session", "session_id is required", nil))
	}
	sessionID := *env.SessionID
	var priorSeenAt time.Time
	if prev, ok := m.store.Get(sessionID); ok {
		priorSeenAt = prev.LastSeenAt
	}
	m.store.Track(sessionID, nil)

	actions := m.drainQueueActions(sessionID)

	if turnID, text, inputType, ok := extractRealtimeInput(env.Payload); ok && isEligibleRealtimeInput(inputType) {
		if m.bridge != nil {
			agentActions, err := m.bridge.Handle(ctx, AgentRequest{
				AccountID:   m.accountID,
				Channel:     m.channel,
				SessionID:   sessionID,
				TurnID:      turnID,
				InputType:   inputType,
				Text:        text,
				PriorSeenAt: priorSeenAt,
			})
			if err != nil {
				m.log.Warn("monitor: agent bridge failed", "account_id", m.accountID, "session_id", sessionID, "error", err)
			} else {
				actions = append(actions, agentActions...)
			}
		}
	}

	return env.Reply(seq.next(), wire.OKPayload(map[string]any{"actions": actions}))
}

// drainQueueActions converts a session's queued out-of-band messages into
// leading speak actions.
func (m *Monitor) drainQueueActions(sessionID string) []action.Action {
	queued := m.store.ConsumeQueue(sessionID)
	out := make([]action.Action, 0, len(queued))
	for _, q := range queued {
		out = append(out, action.Speak{MessageID: q.MessageID, Text: q.Text, BargeIn: true})
	}
	return out
}

// extractRealtimeInput pulls the realtime.turn_id / realtime.input.{type,text}
// fields out of a session.update payload. ok is false if either turn_id or
// text is missing.
func extractRealtimeInput(payload map[string]any) (turnID, text, inputType string, ok bool) {
	realtime, isMap := payload["realtime"].(map[string]any)
	if !isMap {
		return "", "", "", false
	}
	turnID, _ = realtime["turn_id"].(string)

	input, isMap := realtime["input"].(map[string]any)
	if !isMap {
		return "", "", "", false
	}
	text, _ = input["text"].(string)
	inputType, _ = input["type"].(string)

	if turnID == "" || text == "" {
		return "", "", "", false
	}
	return turnID, text, inputType, true
}

// isEligibleRealtimeInput reports whether inputType is one of the three
// realtime input types that trigger the agent bridge. transcript_partial is
// deliberately excluded.
func isEligibleRealtimeInput(inputType string) bool {
	switch inputType {
	case "user_utterance", "transcript_final", "tool_result":
		return true
	default:
		return false
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
