// Package config provides the configuration schema, loader, and hot-reload
// watcher for the voice-telephony bridge.
package config


// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// Config is the root configuration structure for the bridge.
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Observability ObservabilityConfig      `yaml:"observability"`
	Agent         AgentConfig              `yaml:"agent"`
	Channels      map[string]ChannelConfig `yaml:"channels"`
}

// ServerConfig holds network and logging settings for the bridge's HTTP
// surface (health checks, metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the health/metrics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// ObservabilityConfig configures the OpenTelemetry metrics/trace provider.
type ObservabilityConfig struct {
	// ServiceName is reported in emitted telemetry's resource attributes.
	ServiceName string `yaml:"service_name"`

	// TraceEndpoint is the OTLP collector endpoint for traces. It is decoded
	// but not read: the bridge installs no trace exporter, so spans are not
	// exported whatever this holds.
	TraceEndpoint string `yaml:"trace_endpoint"`
}

// AgentConfig configures the agent bridge adapter, shared across every
// channel and account.
type AgentConfig struct {
	// DefaultAgentID names the primary agent back-end, used for every
	// channel and account; channels cannot name a back-end of their own.
	DefaultAgentID string `yaml:"default_agent_id"`

	// TextChunkLimit bounds the character length of a single chunked speak
	// action. Zero means [DefaultTextChunkLimit].
	TextChunkLimit int `yaml:"text_chunk_limit"`

	// ChunkMode selects the prose chunking strategy: "chars" or "sentence".
	ChunkMode string `yaml:"chunk_mode"`

	// Backends declares the named agent back-ends the bridge can route to,
	// keyed by agent id.
	Backends map[string]ProviderEntry `yaml:"backends"`
}

// ProviderEntry configures a single named agent back-end. Name selects the
// registered constructor in an [AgentRegistry] (e.g. "openai"); callers may
// register additional names of their own.
type ProviderEntry struct {
	Name    string         `yaml:"name"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Model   string         `yaml:"model"`
	Options map[string]any `yaml:"options"`
}

// DefaultTextChunkLimit is used when AgentConfig.TextChunkLimit is unset.
const DefaultTextChunkLimit = 700

// MarkdownConfig configures the markdown-table sanitiser applied to agent
// reply blocks before they are parsed into actions.
type MarkdownConfig struct {
	// Mode selects how markdown tables are rendered for a voice peer: "strip"
	// (drop entirely), "inline" (collapse to comma-separated prose), or
	// "passthrough" (leave as-is). Empty defaults to "inline".
	Mode string `yaml:"mode"`
}

// ChannelConfig holds the fields shared by every account on a channel,
// plus the account overrides and default-account selection.
type ChannelConfig struct {
	Enabled           *bool          `yaml:"enabled"`
	Name              string         `yaml:"name"`
	Phone             string         `yaml:"phone"`
	URL               string         `yaml:"url"`
	ReconnectDelayMs  int            `yaml:"reconnectDelayMs"`
	HelloWorldOnStart *bool          `yaml:"helloWorldOnStart"`
	Markdown          MarkdownConfig `yaml:"markdown"`

	Accounts       map[string]AccountConfig `yaml:"accounts"`
	DefaultAccount string                   `yaml:"defaultAccount"`
}

// AccountConfig holds a single account's overrides of its channel's shared
// fields. A nil/empty field means "inherit from the channel".
type AccountConfig struct {
	Enabled           *bool          `yaml:"enabled"`
	Name              string         `yaml:"name"`
	Phone             string         `yaml:"phone"`
	URL               string         `yaml:"url"`
	ReconnectDelayMs  int            `yaml:"reconnectDelayMs"`
	HelloWorldOnStart *bool          `yaml:"helloWorldOnStart"`
	Markdown          MarkdownConfig `yaml:"markdown"`
}
