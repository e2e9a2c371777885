package config

// ConfigDiff describes what changed between two configs. Only the log level
// and the UI settings apply to a running client; every other change is
// reported in RestartRequired and takes effect with the next process start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MeterChanged bool
	MeterEnabled bool

	// RestartRequired lists the top-level sections that changed but cannot
	// be applied to a live session.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.UI.MeterEnabled() != new.UI.MeterEnabled() {
		d.MeterChanged = true
		d.MeterEnabled = new.UI.MeterEnabled()
	}

	if old.Endpoint != new.Endpoint {
		d.RestartRequired = append(d.RestartRequired, "endpoint")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Admin != new.Admin {
		d.RestartRequired = append(d.RestartRequired, "admin")
	}
	if old.Redial != new.Redial {
		d.RestartRequired = append(d.RestartRequired, "redial")
	}
	return d
}

// IsEmpty reports whether d records no change at all.
func (d ConfigDiff) IsEmpty() bool {
	return !d.LogLevelChanged && !d.MeterChanged && len(d.RestartRequired) == 0
}
