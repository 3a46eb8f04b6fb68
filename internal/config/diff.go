package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RiskChanged bool
	NewRisk     RiskConfig

	LiteratureChanged bool
	NewLiterature     LiteratureConfig

	// RestartRequired lists top-level sections that changed but cannot be
	// applied at runtime.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RiskChanged || d.LiteratureChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Risk != new.Risk {
		d.RiskChanged = true
		d.NewRisk = new.Risk
	}
	if old.Literature != new.Literature {
		d.LiteratureChanged = true
		d.NewLiterature = new.Literature
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Session.Timeout != new.Session.Timeout ||
		old.Session.PauseThreshold != new.Session.PauseThreshold ||
		old.Session.SweepInterval != new.Session.SweepInterval ||
		old.Session.MaxChunkBytes != new.Session.MaxChunkBytes ||
		!slices.Equal(old.Session.Speakers, new.Session.Speakers) {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.STT, b.STT) &&
		sameEntry(a.Redactor, b.Redactor) &&
		sameEntry(a.LLM, b.LLM) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, sameEntry) &&
		slices.EqualFunc(a.RedactorFallbacks, b.RedactorFallbacks, sameEntry) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, sameEntry) &&
		slices.EqualFunc(a.Literature, b.Literature, sameEntry) &&
		sameEntry(a.Trials, b.Trials)
}

// sameEntry ignores Options; provider options are compared by the fields
// that select an implementation.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
