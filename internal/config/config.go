// Package config provides the configuration schema, loader, file watcher and
// provider registry for the medsift server.
package config

import "time"

// LogLevel controls log verbosity for the medsift server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader]; both apply [Config.ApplyDefaults] and [Validate].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Session    SessionConfig    `yaml:"session"`
	Risk       RiskConfig       `yaml:"risk"`
	Literature LiteratureConfig `yaml:"literature"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the external collaborators. Every entry's Name is
// looked up in the [Registry].
type ProvidersConfig struct {
	// STT is the primary transcriber.
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary fails.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Redactor scrubs PHI. Defaults to the built-in "regex" redactor.
	Redactor ProviderEntry `yaml:"redactor"`

	// RedactorFallbacks are tried in order when the primary redactor fails.
	RedactorFallbacks []ProviderEntry `yaml:"redactor_fallbacks"`

	// LLM drives structured extraction. Optional; /api/analyze is disabled
	// without it.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary model fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Literature backends. Their order is the source priority used to break
	// ranking ties.
	Literature []ProviderEntry `yaml:"literature"`

	// Trials is the clinical-trial registry. Optional; /api/trials is
	// disabled without it.
	Trials ProviderEntry `yaml:"trials"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "presidio").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API if it needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "nova-3-medical").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// SessionConfig tunes the live transcription pipeline.
type SessionConfig struct {
	// Timeout evicts sessions idle for longer. Default 30m.
	Timeout time.Duration `yaml:"timeout"`

	// PauseThreshold in seconds hands the turn to the next speaker. Default 1.5.
	PauseThreshold float64 `yaml:"pause_threshold"`

	// SweepInterval runs a background eviction sweep when > 0.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxChunkBytes rejects larger audio chunks. Default 10 MiB.
	MaxChunkBytes int `yaml:"max_chunk_bytes"`

	// Speakers are the diarization labels. Default Doctor, Patient.
	Speakers []string `yaml:"speakers"`
}

// RiskConfig holds the risk level cut points. Hot-reloadable.
type RiskConfig struct {
	// LowMax is the highest score still rated low. Default 30.
	LowMax int `yaml:"low_max"`

	// MediumMax is the highest score still rated medium. Default 60.
	MediumMax int `yaml:"medium_max"`
}

// LiteratureConfig tunes the relevance ranker. Hot-reloadable.
type LiteratureConfig struct {
	MaxTerms      int           `yaml:"max_terms"`
	TopN          int           `yaml:"top_n"`
	MinBoost      float64       `yaml:"min_boost"`
	FetchMinBoost float64       `yaml:"fetch_min_boost"`
	Qualifier     string        `yaml:"qualifier"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ExtractionConfig tunes the LLM extractor.
type ExtractionConfig struct {
	// MaxRetries is the number of corrective retries after the first
	// attempt. Default 2.
	MaxRetries *int `yaml:"max_retries"`

	// Temperature for extraction completions. Default 0.1.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps each completion. Default 4096.
	MaxTokens int `yaml:"max_tokens"`
}

// ResilienceConfig configures the circuit breakers placed in front of every
// provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// StorageConfig selects where boosts, feedback and visits are persisted.
type StorageConfig struct {
	// PostgresDSN enables the PostgreSQL store. Without it everything is held
	// in memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// FeedbackFile, when set and no PostgresDSN is given, appends feedback
	// records to a JSON-lines file.
	FeedbackFile string `yaml:"feedback_file"`
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultRedactor       = "regex"
	DefaultSessionTimeout = 30 * time.Minute
	DefaultPauseThreshold = 1.5
	DefaultMaxChunkBytes  = 10 << 20
	DefaultRiskLowMax     = 30
	DefaultRiskMediumMax  = 60
	DefaultMaxRetries     = 2
	DefaultTemperature    = 0.1
	DefaultMaxTokens      = 4096
)

// ApplyDefaults fills every zero field that has a default. Literature tuning
// defaults match the ranker's.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Providers.Redactor.Name == "" {
		c.Providers.Redactor.Name = DefaultRedactor
	}

	s := &c.Session
	if s.Timeout == 0 {
		s.Timeout = DefaultSessionTimeout
	}
	if s.PauseThreshold == 0 {
		s.PauseThreshold = DefaultPauseThreshold
	}
	if s.MaxChunkBytes == 0 {
		s.MaxChunkBytes = DefaultMaxChunkBytes
	}

	if c.Risk.LowMax == 0 && c.Risk.MediumMax == 0 {
		c.Risk.LowMax, c.Risk.MediumMax = DefaultRiskLowMax, DefaultRiskMediumMax
	}

	l := &c.Literature
	if l.MaxTerms == 0 {
		l.MaxTerms = 8
	}
	if l.TopN == 0 {
		l.TopN = 15
	}
	if l.MinBoost == 0 {
		l.MinBoost = 0.6
	}
	if l.FetchMinBoost == 0 {
		l.FetchMinBoost = 0.5
	}
	if l.Qualifier == "" {
		l.Qualifier = "treatment"
	}
	if l.Timeout == 0 {
		l.Timeout = 20 * time.Second
	}

	e := &c.Extraction
	if e.MaxRetries == nil {
		n := DefaultMaxRetries
		e.MaxRetries = &n
	}
	if e.Temperature == nil {
		t := DefaultTemperature
		e.Temperature = &t
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = DefaultMaxTokens
	}
}
