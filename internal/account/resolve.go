// Package account resolves a channel's shared configuration and a single
// account's overrides into one fully-merged, validated account view.
package account

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/MrWong99/voicebridge/internal/config"
)

// phonePattern is the E.164-ish pattern the configuration schema commits to.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

const defaultReconnectDelayMs = 2000

// Resolved is a fully-merged, per-account view ready for the connection
// monitor to dial with.
type Resolved struct {
	AccountID         string
	Enabled           bool
	Configured        bool
	Name              string
	Phone             string
	URL               string
	ReconnectDelayMs  int
	HelloWorldOnStart bool
	Markdown          config.MarkdownConfig
}

// Resolve merges channel ch's shared fields with the requested account's
// overrides (falling back through defaultAccount / a literal "default" id /
// the lexicographically first configured id) and returns the merged,
// validated view.
func Resolve(channelName string, ch config.ChannelConfig, accountID string) Resolved {
	id := normaliseAccountID(ch, accountID)

	acct := ch.Accounts[id]

	merged := Resolved{
		AccountID:         id,
		Name:              firstNonEmpty(acct.Name, ch.Name),
		Phone:             firstNonEmpty(acct.Phone, ch.Phone),
		URL:               firstNonEmpty(acct.URL, ch.URL),
		ReconnectDelayMs:  firstNonZero(acct.ReconnectDelayMs, ch.ReconnectDelayMs, defaultReconnectDelayMs),
		HelloWorldOnStart: boolOr(acct.HelloWorldOnStart, boolOr(ch.HelloWorldOnStart, true)),
		Markdown:          firstNonEmptyMarkdown(acct.Markdown, ch.Markdown),
	}
	if merged.ReconnectDelayMs < 250 {
		merged.ReconnectDelayMs = 250
	}

	merged.Enabled = boolOr(ch.Enabled, true) && boolOr(acct.Enabled, true)

	if id == defaultAccountID(ch) {
		applyEnvOverride(channelName, &merged)
	}

	merged.Configured = merged.URL != "" && merged.Phone != "" &&
		validURL(merged.URL) && phonePattern.MatchString(merged.Phone)

	return merged
}

// normaliseAccountID resolves which account id to use per the configured
// fallback chain: requested id, else defaultAccount, else a literal
// "default" account if configured, else the lexicographically first
// configured account id.
func normaliseAccountID(ch config.ChannelConfig, requested string) string {
	if requested != "" {
		return requested
	}
	return defaultAccountID(ch)
}

func defaultAccountID(ch config.ChannelConfig) string {
	if ch.DefaultAccount != "" {
		return ch.DefaultAccount
	}
	if _, ok := ch.Accounts["default"]; ok {
		return "default"
	}
	ids := AccountIDs(ch)
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// AccountIDs lists every configured account id for ch, plus a synthetic
// "default" id if the channel has shared fields set directly or declares no
// accounts at all, sorted lexicographically.
func AccountIDs(ch config.ChannelConfig) []string {
	seen := make(map[string]struct{}, len(ch.Accounts)+1)
	for id := range ch.Accounts {
		seen[id] = struct{}{}
	}
	if hasSharedFields(ch) || len(ch.Accounts) == 0 {
		seen["default"] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func hasSharedFields(ch config.ChannelConfig) bool {
	return ch.Name != "" || ch.Phone != "" || ch.URL != "" ||
		ch.ReconnectDelayMs != 0 || ch.HelloWorldOnStart != nil || ch.Markdown.Mode != ""
}

func applyEnvOverride(channelName string, r *Resolved) {
	envPrefix := strings.ToUpper(channelName)
	if v := os.Getenv(envPrefix + "_WS_URL"); v != "" {
		r.URL = v
	}
	if v := os.Getenv(envPrefix + "_PHONE"); v != "" {
		r.Phone = v
	}
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmptyMarkdown(vals ...config.MarkdownConfig) config.MarkdownConfig {
	for _, v := range vals {
		if v.Mode != "" {
			return v
		}
	}
	return config.MarkdownConfig{}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// ConfigurationError describes why an account is not ready to connect. A
// missing url or phone is fatal for that account per the configuration
// error taxonomy: the monitor must not attempt to dial.
type ConfigurationError struct {
	AccountID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("account %s: %s", e.AccountID, e.Reason)
}

// Validate returns a [ConfigurationError] if r is enabled but not
// configured, naming the first missing or invalid field.
func Validate(r Resolved) error {
	if !r.Enabled {
		return nil
	}
	switch {
	case r.URL == "":
		return &ConfigurationError{AccountID: r.AccountID, Reason: "missing url"}
	case !validURL(r.URL):
		return &ConfigurationError{AccountID: r.AccountID, Reason: "url must use ws:// or wss://"}
	case r.Phone == "":
		return &ConfigurationError{AccountID: r.AccountID, Reason: "missing phone"}
	case !phonePattern.MatchString(r.Phone):
		return &ConfigurationError{AccountID: r.AccountID, Reason: "phone must match E.164-ish pattern"}
	}
	return nil
}
