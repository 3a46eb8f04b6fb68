package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/medsift/internal/config"
	"github.com/MrWong99/medsift/internal/literature"
	"github.com/MrWong99/medsift/internal/resilience"
	"github.com/MrWong99/medsift/pkg/provider/llm"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	"github.com/MrWong99/medsift/pkg/provider/stt"
	"github.com/MrWong99/medsift/pkg/provider/trials"
	"github.com/MrWong99/medsift/pkg/types"
)

// ErrNoTranscriber is returned for live audio when no STT provider is
// configured.
var ErrNoTranscriber = errors.New("app: no transcriber configured")

// Providers holds one interface value per provider slot. A nil Transcriber
// or LLM means the slot is not configured. Populated by [BuildProviders].
type Providers struct {
	Transcriber stt.Transcriber
	Redactor    phi.Redactor
	LLM         llm.Provider

	// Literature backends in source priority order.
	Literature []literature.Backend

	// Trials is the clinical-trial registry. Nil disables trial search.
	Trials trials.Finder
}

// BuildProviders instantiates every configured provider through reg.
// Primaries with fallbacks are composed into the resilience fallback
// wrappers and every literature backend gets its own circuit breaker.
// Entries whose name is not registered are skipped with a warning.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	p := &Providers{}
	pc := cfg.Providers
	fb := resilience.FallbackConfig{CircuitBreaker: breakerConfig(cfg.Resilience)}

	// ── STT ──────────────────────────────────────────────────────────────
	if pc.STT.Name != "" {
		primary, err := reg.CreateSTT(pc.STT)
		if err := skipUnregistered("stt", pc.STT.Name, err); err != nil {
			return nil, err
		}
		if primary != nil {
			if len(pc.STTFallbacks) == 0 {
				p.Transcriber = primary
			} else {
				f := resilience.NewTranscriberFallback(primary, pc.STT.Name, fb)
				for _, e := range pc.STTFallbacks {
					t, err := reg.CreateSTT(e)
					if err := skipUnregistered("stt fallback", e.Name, err); err != nil {
						return nil, err
					}
					if t != nil {
						f.AddFallback(e.Name, t)
					}
				}
				p.Transcriber = f
			}
		}
	}

	// ── Redactor ─────────────────────────────────────────────────────────
	red, err := reg.CreateRedactor(pc.Redactor)
	if err != nil {
		return nil, fmt.Errorf("app: create redactor %q: %w", pc.Redactor.Name, err)
	}
	if len(pc.RedactorFallbacks) == 0 {
		p.Redactor = red
	} else {
		f := resilience.NewRedactorFallback(red, pc.Redactor.Name, fb)
		for _, e := range pc.RedactorFallbacks {
			r, err := reg.CreateRedactor(e)
			if err := skipUnregistered("redactor fallback", e.Name, err); err != nil {
				return nil, err
			}
			if r != nil {
				f.AddFallback(e.Name, r)
			}
		}
		p.Redactor = f
	}

	// ── LLM ──────────────────────────────────────────────────────────────
	if pc.LLM.Name != "" {
		primary, err := reg.CreateLLM(pc.LLM)
		if err := skipUnregistered("llm", pc.LLM.Name, err); err != nil {
			return nil, err
		}
		if primary != nil {
			if len(pc.LLMFallbacks) == 0 {
				p.LLM = primary
			} else {
				f := resilience.NewLLMFallback(primary, pc.LLM.Name, fb)
				for _, e := range pc.LLMFallbacks {
					l, err := reg.CreateLLM(e)
					if err := skipUnregistered("llm fallback", e.Name, err); err != nil {
						return nil, err
					}
					if l != nil {
						f.AddFallback(e.Name, l)
					}
				}
				p.LLM = f
			}
		}
	}

	// ── Literature ───────────────────────────────────────────────────────
	for _, e := range pc.Literature {
		b, err := reg.CreateLiterature(e)
		if err := skipUnregistered("literature", e.Name, err); err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		bc := breakerConfig(cfg.Resilience)
		bc.Name = "literature/" + e.Name
		p.Literature = append(p.Literature, resilience.NewBackend(b, bc))
	}

	// ── Trials ───────────────────────────────────────────────────────────
	if pc.Trials.Name != "" {
		f, err := reg.CreateTrials(pc.Trials)
		if err := skipUnregistered("trials", pc.Trials.Name, err); err != nil {
			return nil, err
		}
		if f != nil {
			bc := breakerConfig(cfg.Resilience)
			bc.Name = "trials/" + pc.Trials.Name
			p.Trials = resilience.NewTrialFinder(f, bc)
		}
	}

	return p, nil
}

// skipUnregistered returns nil for ErrProviderNotRegistered so that optional
// providers whose factory was not compiled in are skipped.
func skipUnregistered(kind, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", name)
		return nil
	}
	return fmt.Errorf("app: create %s %q: %w", kind, name, err)
}

func breakerConfig(rc config.ResilienceConfig) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		MaxFailures:  rc.MaxFailures,
		ResetTimeout: rc.ResetTimeout,
		HalfOpenMax:  rc.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	}
}

// noTranscriber rejects every chunk so live sessions stay usable for the
// rest of the API when STT is not configured.
type noTranscriber struct{}

func (noTranscriber) Transcribe(context.Context, []byte) (types.Transcription, error) {
	return types.Transcription{}, ErrNoTranscriber
}
