package config

// Diff describes what changed between two configs.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChannelChanges holds one entry per channel with any detected change,
	// keyed the same way the channel appeared in the config.
	ChannelChanges map[string]ChannelDiff
}

// ChannelDiff describes what changed for a single channel between two
// configs, split into fields safe to hot-apply and fields that require the
// account's connection to be re-established.
type ChannelDiff struct {
	// HotFieldsChanged covers reconnectDelayMs, helloWorldOnStart, markdown
	// mode, and enabled — the fields classed as safe to apply without
	// tearing down an in-progress connection. DiffConfigs only reports the
	// change; it applies nothing.
	HotFieldsChanged bool

	// RestartRequired covers url/phone changes, which cannot be applied to
	// an established connection. DiffConfigs only reports the change; it
	// restarts nothing.
	RestartRequired bool

	AccountsAdded   []string
	AccountsRemoved []string
}

// DiffConfigs compares old and new configs and reports what changed.
func DiffConfigs(old, new *Config) Diff {
	d := Diff{ChannelChanges: make(map[string]ChannelDiff)}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for name, oldCh := range old.Channels {
		newCh, ok := new.Channels[name]
		if !ok {
			continue
		}
		if cd := diffChannel(oldCh, newCh); cd.HotFieldsChanged || cd.RestartRequired || len(cd.AccountsAdded) > 0 || len(cd.AccountsRemoved) > 0 {
			d.ChannelChanges[name] = cd
		}
	}
	for name := range new.Channels {
		if _, ok := old.Channels[name]; !ok {
			d.ChannelChanges[name] = ChannelDiff{RestartRequired: true}
		}
	}

	return d
}

func diffChannel(old, new ChannelConfig) ChannelDiff {
	var cd ChannelDiff

	if old.ReconnectDelayMs != new.ReconnectDelayMs ||
		boolPtrValue(old.HelloWorldOnStart, true) != boolPtrValue(new.HelloWorldOnStart, true) ||
		old.Markdown.Mode != new.Markdown.Mode ||
		boolPtrValue(old.Enabled, true) != boolPtrValue(new.Enabled, true) {
		cd.HotFieldsChanged = true
	}
	if old.URL != new.URL || old.Phone != new.Phone {
		cd.RestartRequired = true
	}

	for id := range old.Accounts {
		if _, ok := new.Accounts[id]; !ok {
			cd.AccountsRemoved = append(cd.AccountsRemoved, id)
		}
	}
	for id, newAcct := range new.Accounts {
		oldAcct, ok := old.Accounts[id]
		if !ok {
			cd.AccountsAdded = append(cd.AccountsAdded, id)
			continue
		}
		if oldAcct.URL != newAcct.URL || oldAcct.Phone != newAcct.Phone {
			cd.RestartRequired = true
		}
		if oldAcct.ReconnectDelayMs != newAcct.ReconnectDelayMs ||
			boolPtrValue(oldAcct.HelloWorldOnStart, true) != boolPtrValue(newAcct.HelloWorldOnStart, true) ||
			oldAcct.Markdown.Mode != newAcct.Markdown.Mode ||
			boolPtrValue(oldAcct.Enabled, true) != boolPtrValue(newAcct.Enabled, true) {
			cd.HotFieldsChanged = true
		}
	}

	return cd
}

func boolPtrValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
