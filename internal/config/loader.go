package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "deepgram"},
	"redactor":   {"regex", "presidio"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"literature": {"pubmed", "semantic_scholar"},
	"trials":     {"clinicaltrials"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	if p.STT.Name == "" {
		slog.Warn("providers.stt is not configured; live sessions will not accept audio")
	}
	validateProviderName("stt", p.STT.Name)
	for i, e := range p.STTFallbacks {
		errs = append(errs, requireName(fmt.Sprintf("providers.stt_fallbacks[%d]", i), e)...)
		validateProviderName("stt", e.Name)
	}
	validateProviderName("redactor", p.Redactor.Name)
	for i, e := range p.RedactorFallbacks {
		errs = append(errs, requireName(fmt.Sprintf("providers.redactor_fallbacks[%d]", i), e)...)
		validateProviderName("redactor", e.Name)
	}
	validateProviderName("llm", p.LLM.Name)
	if p.LLM.Name == "" && len(p.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	for i, e := range p.LLMFallbacks {
		errs = append(errs, requireName(fmt.Sprintf("providers.llm_fallbacks[%d]", i), e)...)
		validateProviderName("llm", e.Name)
	}
	seen := make(map[string]int, len(p.Literature))
	for i, e := range p.Literature {
		prefix := fmt.Sprintf("providers.literature[%d]", i)
		errs = append(errs, requireName(prefix, e)...)
		if prev, ok := seen[e.Name]; ok && e.Name != "" {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.literature[%d]", prefix, e.Name, prev))
		}
		seen[e.Name] = i
		validateProviderName("literature", e.Name)
	}
	validateProviderName("trials", p.Trials.Name)

	// Session
	s := cfg.Session
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("session.timeout %s must not be negative", s.Timeout))
	}
	if s.PauseThreshold < 0 {
		errs = append(errs, fmt.Errorf("session.pause_threshold %.2f must not be negative", s.PauseThreshold))
	}
	if s.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("session.sweep_interval %s must not be negative", s.SweepInterval))
	}
	if s.MaxChunkBytes < 0 {
		errs = append(errs, fmt.Errorf("session.max_chunk_bytes %d must not be negative", s.MaxChunkBytes))
	}
	if len(s.Speakers) == 1 {
		errs = append(errs, errors.New("session.speakers needs at least two labels"))
	}

	// Risk
	if r := cfg.Risk; r.LowMax < 0 || r.LowMax >= r.MediumMax || r.MediumMax > 100 {
		errs = append(errs, fmt.Errorf("risk thresholds low_max=%d medium_max=%d must satisfy 0 <= low_max < medium_max <= 100", r.LowMax, r.MediumMax))
	}

	// Literature
	l := cfg.Literature
	if l.MaxTerms < 0 {
		errs = append(errs, fmt.Errorf("literature.max_terms %d must be positive", l.MaxTerms))
	}
	if l.TopN < 0 {
		errs = append(errs, fmt.Errorf("literature.top_n %d must be positive", l.TopN))
	}
	if l.MinBoost < 0 || l.MinBoost > 1 {
		errs = append(errs, fmt.Errorf("literature.min_boost %.2f is out of range [0, 1]", l.MinBoost))
	}
	if l.FetchMinBoost < 0 || l.FetchMinBoost > 1 {
		errs = append(errs, fmt.Errorf("literature.fetch_min_boost %.2f is out of range [0, 1]", l.FetchMinBoost))
	}
	if l.Timeout < 0 {
		errs = append(errs, fmt.Errorf("literature.timeout %s must not be negative", l.Timeout))
	}

	// Extraction
	e := cfg.Extraction
	if e.MaxRetries != nil && *e.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("extraction.max_retries %d must not be negative", *e.MaxRetries))
	}
	if e.Temperature != nil && (*e.Temperature < 0 || *e.Temperature > 2) {
		errs = append(errs, fmt.Errorf("extraction.temperature %.2f is out of range [0, 2]", *e.Temperature))
	}
	if e.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("extraction.max_tokens %d must not be negative", e.MaxTokens))
	}

	// Resilience
	rs := cfg.Resilience
	if rs.MaxFailures < 0 || rs.HalfOpenMax < 0 || rs.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Storage
	if cfg.Storage.PostgresDSN != "" && cfg.Storage.FeedbackFile != "" {
		slog.Warn("storage.feedback_file is ignored when storage.postgres_dsn is set")
	}

	return errors.Join(errs...)
}

func requireName(prefix string, e ProviderEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", prefix)}
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
