package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for channel, ch := range cfg.Channels {
		prefix := fmt.Sprintf("channels.%s", channel)

		if ch.ReconnectDelayMs != 0 && (ch.ReconnectDelayMs < 250 || ch.ReconnectDelayMs > 60000) {
			errs = append(errs, fmt.Errorf("%s.reconnectDelayMs %d is out of range [250, 60000]", prefix, ch.ReconnectDelayMs))
		}
		if ch.DefaultAccount != "" {
			if _, ok := ch.Accounts[ch.DefaultAccount]; !ok {
				errs = append(errs, fmt.Errorf("%s.defaultAccount %q does not name a configured account", prefix, ch.DefaultAccount))
			}
		}

		for id, acct := range ch.Accounts {
			aprefix := fmt.Sprintf("%s.accounts.%s", prefix, id)
			if acct.ReconnectDelayMs != 0 && (acct.ReconnectDelayMs < 250 || acct.ReconnectDelayMs > 60000) {
				errs = append(errs, fmt.Errorf("%s.reconnectDelayMs %d is out of range [250, 60000]", aprefix, acct.ReconnectDelayMs))
			}
		}
	}

	return errors.Join(errs...)
}
