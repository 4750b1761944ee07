// Command bridge is the main entry point for the voice-telephony agent
// bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/MrWong99/voicebridge/internal/account"
	"github.com/MrWong99/voicebridge/internal/app"
	"github.com/MrWong99/voicebridge/internal/config"
	"github.com/MrWong99/voicebridge/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bridge: config file %q not found — pass --config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("bridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.DiffConfigs(old, new)
		restart := false
		for channel, cd := range diff.ChannelChanges {
			if cd.RestartRequired {
				restart = true
			}
			slog.Info("config channel changed",
				"channel", channel, "hot_fields_changed", cd.HotFieldsChanged,
				"restart_required", cd.RestartRequired,
				"accounts_added", cd.AccountsAdded, "accounts_removed", cd.AccountsRemoved)
		}
		if diff.LogLevelChanged {
			slog.Info("config log level changed", "new_level", diff.NewLogLevel)
		}
		if restart {
			slog.Warn("config change requires a process restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config file watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: firstNonEmpty(cfg.Observability.ServiceName, "voicebridge"),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg)

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("bridge ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	channelNames := make([]string, 0, len(cfg.Channels))
	for name := range cfg.Channels {
		channelNames = append(channelNames, name)
	}
	sort.Strings(channelNames)

	backendNames := make([]string, 0, len(cfg.Agent.Backends))
	for name := range cfg.Agent.Backends {
		backendNames = append(backendNames, name)
	}
	sort.Strings(backendNames)

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║     voicebridge — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Agent backends  : %-19s ║\n", truncate(joinOrNone(backendNames), 19))
	fmt.Printf("║  Default agent   : %-19s ║\n", truncate(firstNonEmpty(cfg.Agent.DefaultAgentID, "(first configured)"), 19))

	accounts := 0
	for _, name := range channelNames {
		ch := cfg.Channels[name]
		ids := account.AccountIDs(ch)
		accounts += len(ids)
		fmt.Printf("║  Channel %-9s: %-19d ║\n", name, len(ids))
	}
	fmt.Printf("║  Total accounts  : %-19d ║\n", accounts)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "," + n
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
