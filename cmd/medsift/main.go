// Command medsift is the main entry point for the medsift clinical transcript
// analytics server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/medsift/internal/app"
	"github.com/MrWong99/medsift/internal/config"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/pkg/provider/literature"
	"github.com/MrWong99/medsift/pkg/provider/literature/pubmed"
	"github.com/MrWong99/medsift/pkg/provider/literature/semanticscholar"
	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/provider/trials/clinicaltrials"
	"github.com/MrWong99/medsift/pkg/provider/llm"
	"github.com/MrWong99/medsift/pkg/provider/llm/anyllm"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/provider/phi/presidio"
	"github.com/MrWong99/medsift/pkg/provider/phi/regex"
	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/provider/stt/deepgram"
	"github.com/MrWong99/medsift/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medsift: config file %q not found; an empty file runs with defaults\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medsift: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("medsift starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.MetricsHandler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			application.ApplyConfig(d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider kinds to the implementations that ship with
// medsift. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "whisper-native", "deepgram"},
	"redactor":   {"regex", "presidio"},
	"literature": {"pubmed", "semantic_scholar"},
	"trials":     {"clinicaltrials"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if f, ok := optFormat(entry.Options); ok {
			opts = append(opts, deepgram.WithFormat(f))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if f, ok := optFormat(entry.Options); ok {
			opts = append(opts, whisper.WithFormat(f))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if f, ok := optFormat(entry.Options); ok {
			opts = append(opts, whisper.WithNativeFormat(f))
		}
		if n := optInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Redactor ──────────────────────────────────────────────────────────────

	reg.RegisterRedactor("regex", func(entry config.ProviderEntry) (phi.Redactor, error) {
		var opts []regex.Option
		if ents := optStrings(entry.Options, "entities"); len(ents) > 0 {
			opts = append(opts, regex.WithEntities(ents...))
		}
		return regex.New(opts...), nil
	})

	reg.RegisterRedactor("presidio", func(entry config.ProviderEntry) (phi.Redactor, error) {
		var opts []presidio.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, presidio.WithLanguage(lang))
		}
		if ents := optStrings(entry.Options, "entities"); len(ents) > 0 {
			opts = append(opts, presidio.WithEntities(ents...))
		}
		if th, ok := optFloat(entry.Options, "score_threshold"); ok {
			opts = append(opts, presidio.WithScoreThreshold(th))
		}
		return presidio.New(entry.BaseURL, opts...)
	})

	// ── Literature ────────────────────────────────────────────────────────────

	reg.RegisterLiterature("pubmed", func(entry config.ProviderEntry) (literature.Backend, error) {
		var opts []pubmed.Option
		if entry.APIKey != "" {
			opts = append(opts, pubmed.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, pubmed.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "max_results"); n > 0 {
			opts = append(opts, pubmed.WithMaxResults(n))
		}
		return pubmed.New(opts...), nil
	})

	reg.RegisterLiterature("semantic_scholar", func(entry config.ProviderEntry) (literature.Backend, error) {
		var opts []semanticscholar.Option
		if entry.APIKey != "" {
			opts = append(opts, semanticscholar.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, semanticscholar.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "limit"); n > 0 {
			opts = append(opts, semanticscholar.WithLimit(n))
		}
		return semanticscholar.New(opts...), nil
	})

	// ── Trials ────────────────────────────────────────────────────────────────

	reg.RegisterTrials("clinicaltrials", func(entry config.ProviderEntry) (trials.Finder, error) {
		var opts []clinicaltrials.Option
		if entry.BaseURL != "" {
			opts = append(opts, clinicaltrials.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "page_size"); n > 0 {
			opts = append(opts, clinicaltrials.WithPageSize(n))
		}
		return clinicaltrials.New(opts...), nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	p := cfg.Providers
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         medsift · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", p.STT.Name, p.STT.Model, len(p.STTFallbacks))
	printProvider("Redactor", p.Redactor.Name, "", len(p.RedactorFallbacks))
	printProvider("LLM", p.LLM.Name, p.LLM.Model, len(p.LLMFallbacks))
	fmt.Printf("║  Literature      : %-19d ║\n", len(p.Literature))
	printProvider("Trials", p.Trials.Name, "", 0)
	storage := "memory"
	if cfg.Storage.PostgresDSN != "" {
		storage = "postgres"
	} else if cfg.Storage.FeedbackFile != "" {
		storage = "memory + file"
	}
	fmt.Printf("║  Storage         : %-19s ║\n", storage)
	fmt.Printf("║  Risk low/medium : %-19s ║\n", fmt.Sprintf("%d / %d", cfg.Risk.LowMax, cfg.Risk.MediumMax))
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string, fallbacks int) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if fallbacks > 0 {
		value += fmt.Sprintf(" +%d", fallbacks)
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a list of strings. YAML sequences decode as []any.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// optInt returns 0 when the key is absent or not a number.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optFormat reads the "sample_rate" and "channels" options.
func optFormat(opts map[string]any) (stt.Format, bool) {
	rate, ch := optInt(opts, "sample_rate"), optInt(opts, "channels")
	if rate <= 0 && ch <= 0 {
		return stt.Format{}, false
	}
	f := stt.DefaultFormat
	if rate > 0 {
		f.SampleRate = rate
	}
	if ch > 0 {
		f.Channels = ch
	}
	return f, true
}
