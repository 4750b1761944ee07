// Package monitor implements the connection monitor: the per-account
// WebSocket client that dials the telephony peer, performs the system.hello
// handshake, and runs the serialised inbound dispatch loop for session and
// system operations. It is the component every other piece of the bridge
// ultimately serves.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicebridge/internal/account"
	"github.com/MrWong99/voicebridge/internal/session"
	"github.com/MrWong99/voicebridge/pkg/wire"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	minReconnectDelay       = 250 * time.Millisecond
	heartbeatSec            = 30
	dedupeTTLSec            = 300

	closeStatusAborted         = websocket.StatusCode(1000)
	closeStatusHandshakeFailed = websocket.StatusCode(1011)
)

// supportedOps lists the operations this bridge advertises in its hello
// handshake.
func supportedOps() []string {
	ops := make([]string, 0, len(wire.Operations))
	for _, op := range wire.Operations {
		ops = append(ops, string(op))
	}
	return ops
}

// Option configures a [Monitor] at construction time.
type Option func(*Monitor)

// WithHandshakeTimeout overrides the default 10s handshake timer.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.handshakeTimeout = d
		}
	}
}

// WithDialer overrides the default real-socket [Dialer]. Used by tests to
// substitute an in-memory fake.
func WithDialer(d Dialer) Option {
	return func(m *Monitor) { m.dialer = d }
}

// WithClientInfo sets the name/version this monitor announces in its hello
// handshake and in replies to server-initiated hello requests.
func WithClientInfo(name, version string) Option {
	return func(m *Monitor) { m.clientName, m.clientVersion = name, version }
}

// WithLogger overrides the default [slog.Logger].
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// Monitor drives one account's connection lifecycle: connect, handshake,
// dispatch, reconnect-on-failure, until cancelled. One Monitor exists per
// enabled account.
type Monitor struct {
	accountID string
	channel   string
	account   account.Resolved
	store     *session.Store
	bridge    AgentBridge
	sink      StatusSink

	clientName       string
	clientVersion    string
	handshakeTimeout time.Duration
	dialer           Dialer
	log              *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a [Monitor] for accountID on channel, ready to dial acct.URL.
// bridge and sink are capability bundles injected by the caller — never
// package-level singletons.
func New(accountID, channel string, acct account.Resolved, store *session.Store, bridge AgentBridge, sink StatusSink, opts ...Option) *Monitor {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Monitor{
		accountID:        accountID,
		channel:          channel,
		account:          acct,
		store:            store,
		bridge:           bridge,
		sink:             sink,
		clientName:       "voicebridge",
		clientVersion:    "1",
		handshakeTimeout: defaultHandshakeTimeout,
		dialer:           defaultDialer{},
		log:              slog.Default(),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Stop triggers the cancellation handle: the current connection is closed
// with code 1000 "aborted", the reconnect delay (if any) is short-circuited,
// and [Monitor.Run] returns after emitting its final status. Safe to call
// more than once or before Run starts.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Run drives the connect/handshake/dispatch/reconnect loop until ctx is
// cancelled or [Monitor.Stop] is called. It always returns nil: failures are
// reported through the status sink and the logger, never propagated to the
// caller, per the bridge's error-handling policy.
func (m *Monitor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	defer func() {
		m.sink.Update(ConnectionStatus{
			AccountID:  m.accountID,
			Running:    false,
			Connected:  false,
			LastStopAt: time.Now().UTC(),
		})
		close(m.doneCh)
	}()

	delay := time.Duration(m.account.ReconnectDelayMs) * time.Millisecond
	if delay < minReconnectDelay {
		delay = minReconnectDelay
	}

	for {
		if runCtx.Err() != nil {
			return nil
		}

		if err := m.runOnce(runCtx); err != nil {
			m.log.Warn("monitor: connection ended", "account_id", m.accountID, "channel", m.channel, "error", err)
		}

		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Done returns a channel closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} { return m.doneCh }

// runOnce dials, performs the handshake, and runs the dispatch loop to
// completion. It always returns once the connection ends, successfully or
// not.
func (m *Monitor) runOnce(ctx context.Context) error {
	conn, err := m.dialer.Dial(ctx, m.account.URL, m.account.Phone)
	if err != nil {
		m.sink.Update(ConnectionStatus{AccountID: m.accountID, Connected: false, LastError: err.Error()})
		return err
	}

	seq := &seqCounter{}
	connID, err := m.handshake(ctx, conn, seq)
	if err != nil {
		_ = conn.Close(closeStatusHandshakeFailed, "handshake_failed")
		m.sink.Update(ConnectionStatus{AccountID: m.accountID, Connected: false, LastError: err.Error()})
		return fmt.Errorf("monitor: handshake: %w", err)
	}

	m.sink.Update(ConnectionStatus{
		AccountID:     m.accountID,
		Connected:     true,
		ConnID:        connID,
		LastConnectAt: time.Now().UTC(),
	})

	status, disconnectErr := m.dispatchLoop(ctx, conn, connID, seq)
	m.sink.Update(ConnectionStatus{
		AccountID:      m.accountID,
		Connected:      false,
		ConnID:         connID,
		LastDisconnect: status,
	})
	return disconnectErr
}

// handshake sends the outbound system.hello request and blocks until a
// matching successful response arrives or the handshake timer expires.
func (m *Monitor) handshake(ctx context.Context, conn wsConn, seq *seqCounter) (connID string, err error) {
	reqID := uuid.NewString()
	env := wire.NewRequest(wire.OpSystemHello, reqID, nil, seq.next(), map[string]any{
		"client": map[string]any{
			"name":    m.clientName,
			"version": m.clientVersion,
			"phone":   m.account.Phone,
		},
		"supports": map[string]any{"ops": supportedOps()},
	})
	if err := writeEnvelope(ctx, conn, env); err != nil {
		return "", fmt.Errorf("send hello: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()

	for {
		_, data, err := conn.Read(hctx)
		if err != nil {
			return "", fmt.Errorf("waiting for hello response: %w", err)
		}

		resp, err := wire.Parse(data)
		if err != nil {
			m.log.Debug("monitor: malformed frame during handshake", "account_id", m.accountID, "error", err)
			continue
		}
		if resp.Type != wire.TypeResponse || resp.ReqID != reqID {
			continue
		}

		ok, _ := resp.Payload["ok"].(bool)
		if !ok {
			return "", errors.New("hello rejected by peer")
		}
		result, _ := resp.Payload["result"].(map[string]any)
		connID, _ = result["conn_id"].(string)
		if connID == "" {
			return "", errors.New("hello response missing conn_id")
		}
		return connID, nil
	}
}

// writeEnvelope marshals env and writes it as a text frame, incrementing no
// counters itself — callers must have already called seq.next() for env.Seq.
func writeEnvelope(ctx context.Context, conn wsConn, env *wire.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
