// Package app wires every bridge subsystem into a running application.
//
// The App struct owns the full lifecycle: New creates one connection
// monitor, agent bridge adapter, and session store per enabled account,
// Run drives every monitor to completion concurrently, and Shutdown stops
// every monitor and tears down the HTTP health/metrics server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicebridge/internal/account"
	"github.com/MrWong99/voicebridge/internal/agentbridge"
	"github.com/MrWong99/voicebridge/internal/config"
	"github.com/MrWong99/voicebridge/internal/health"
	"github.com/MrWong99/voicebridge/internal/monitor"
	"github.com/MrWong99/voicebridge/internal/observe"
	"github.com/MrWong99/voicebridge/internal/resilience"
	"github.com/MrWong99/voicebridge/internal/session"
	"github.com/MrWong99/voicebridge/pkg/action"
	"github.com/MrWong99/voicebridge/pkg/provider/llm"
	"go.opentelemetry.io/otel/metric"
)

// accountUnit bundles everything App owns for a single enabled account.
type accountUnit struct {
	channel string
	account account.Resolved
	mon     *monitor.Monitor
}

// App owns every account's monitor lifetime and the HTTP health/metrics
// surface.
type App struct {
	cfg      *config.Config
	metrics  *observe.Metrics
	registry *config.AgentRegistry

	// sessions partitions session state by account id, per the bridge's
	// concurrency model.
	sessions *session.Registry

	units []accountUnit

	httpSrv *http.Server

	stopOnce sync.Once
}

// Option configures an [App] at construction time.
type Option func(*App)

// WithAgentRegistry overrides the default registry (which has the built-in
// openai back-end already registered). Used by tests to inject fake agent
// back-ends.
func WithAgentRegistry(r *config.AgentRegistry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics overrides the default package-level [observe.Metrics] instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New builds an App by resolving every configured account on every channel,
// wiring a connection monitor and agent bridge adapter for each enabled one.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewAgentRegistry()
		agentbridge.RegisterDefaultBackends(a.registry)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.sessions = session.NewRegistry()

	provider, backendName, err := a.buildAgentProvider()
	if err != nil {
		return nil, fmt.Errorf("app: build agent provider: %w", err)
	}

	channelNames := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		channelNames = append(channelNames, name)
	}
	sort.Strings(channelNames)

	for _, channelName := range channelNames {
		ch := cfg.Channels[channelName]
		for _, acctID := range account.AccountIDs(ch) {
			resolved := account.Resolve(channelName, ch, acctID)
			if !resolved.Enabled {
				slog.Info("app: skipping disabled account", "channel", channelName, "account_id", acctID)
				continue
			}
			if !resolved.Configured {
				slog.Warn("app: skipping unconfigured account", "channel", channelName, "account_id", acctID)
				continue
			}

			store := a.sessions.For(acctID)
			sink := &metricsStatusSink{metrics: a.metrics, log: slog.Default()}

			bridge := agentbridge.New(agentbridge.Config{
				Channel:      channelName,
				BackendName:  backendName,
				MarkdownMode: resolved.Markdown.Mode,
				ChunkLimit:   cfg.Agent.TextChunkLimit,
				ChunkMode:    action.ChunkMode(cfg.Agent.ChunkMode),
			}, store, provider, agentbridge.WithMetrics(a.metrics))

			mon := monitor.New(acctID, channelName, resolved, store, bridge, sink,
				monitor.WithClientInfo("voicebridge", "1"),
			)

			a.units = append(a.units, accountUnit{
				channel: channelName,
				account: resolved,
				mon:     mon,
			})
		}
	}

	if len(a.units) == 0 {
		slog.Warn("app: no enabled, configured accounts found")
	}

	a.httpSrv = a.buildHTTPServer()

	return a, nil
}

// buildAgentProvider resolves cfg.Agent.DefaultAgentID and every other
// declared back-end into a single [llm.Provider], wrapping multiple
// back-ends in a [resilience.LLMFallback] so a failing primary fails over
// to the next configured one.
func (a *App) buildAgentProvider() (llm.Provider, string, error) {
	names := make([]string, 0, len(a.cfg.Agent.Backends))
	for name := range a.cfg.Agent.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, "", fmt.Errorf("no agent backends configured")
	}

	primaryName := a.cfg.Agent.DefaultAgentID
	if primaryName == "" || a.cfg.Agent.Backends[primaryName].Name == "" {
		primaryName = names[0]
	}

	primaryEntry := a.cfg.Agent.Backends[primaryName]
	primary, err := a.registry.Create(primaryEntry)
	if err != nil {
		return nil, "", fmt.Errorf("create agent backend %q: %w", primaryName, err)
	}

	if len(names) == 1 {
		return primary, primaryName, nil
	}

	fallback := resilience.NewLLMFallback(primary, primaryName, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{},
	})
	for _, name := range names {
		if name == primaryName {
			continue
		}
		p, err := a.registry.Create(a.cfg.Agent.Backends[name])
		if err != nil {
			return nil, "", fmt.Errorf("create agent backend %q: %w", name, err)
		}
		fallback.AddFallback(name, p)
	}
	return fallback, primaryName, nil
}

// buildHTTPServer wires /healthz, /readyz, and /metrics onto the configured
// listen address.
func (a *App) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	h := health.New(health.Checker{
		Name: "accounts",
		Check: func(ctx context.Context) error {
			if len(a.units) == 0 {
				return fmt.Errorf("no enabled accounts")
			}
			return nil
		},
	})
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// Run starts every account's monitor and the HTTP server concurrently. It
// blocks until ctx is cancelled, then waits for every monitor's Run to
// return before returning itself.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("app: http server listening", "addr", a.httpSrv.Addr)
		err := a.httpSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	for _, u := range a.units {
		u := u
		g.Go(func() error {
			slog.Info("app: starting monitor", "channel", u.channel, "account_id", u.account.AccountID)
			return u.mon.Run(gctx)
		})
	}

	<-gctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("app: http server shutdown error", "err", err)
	}

	return g.Wait()
}

// Shutdown stops every monitor and closes the HTTP server, respecting ctx's
// deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for _, u := range a.units {
			u.mon.Stop()
		}
		for _, u := range a.units {
			select {
			case <-u.mon.Done():
			case <-ctx.Done():
				shutdownErr = ctx.Err()
				return
			}
		}
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
	})
	return shutdownErr
}

// metricsStatusSink records connection status updates as OTel metrics and
// logs them, never reading state back from the monitor it serves.
type metricsStatusSink struct {
	metrics *observe.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	wasUp map[string]bool
}

func (s *metricsStatusSink) Update(status monitor.ConnectionStatus) {
	s.mu.Lock()
	if s.wasUp == nil {
		s.wasUp = make(map[string]bool)
	}
	was := s.wasUp[status.AccountID]
	s.wasUp[status.AccountID] = status.Connected
	s.mu.Unlock()

	ctx := context.Background()
	attrs := metric.WithAttributes(observe.Attr("account_id", status.AccountID))
	if status.Connected && !was {
		s.metrics.ConnectionsActive.Add(ctx, 1, attrs)
	} else if !status.Connected && was {
		s.metrics.ConnectionsActive.Add(ctx, -1, attrs)
	}

	if status.LastError != "" {
		s.log.Warn("monitor status", "account_id", status.AccountID, "connected", status.Connected, "error", status.LastError)
	} else {
		s.log.Info("monitor status", "account_id", status.AccountID, "connected", status.Connected, "running", status.Running, "ts", time.Now().UTC())
	}
}
