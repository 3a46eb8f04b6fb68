package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/medsift/internal/app"
	"github.com/MrWong99/medsift/internal/config"
	"github.com/MrWong99/medsift/internal/literature"
	"github.com/MrWong99/medsift/internal/resilience"
	litmock "github.com/MrWong99/medsift/pkg/provider/literature/mock"
	"github.com/MrWong99/medsift/pkg/provider/llm"
	llmmock "github.com/MrWong99/medsift/pkg/provider/llm/mock"
	"github.com/MrWong99/medsift/pkg/provider/phi"
	phimock "github.com/MrWong99/medsift/pkg/provider/phi/mock"
	"github.com/MrWong99/medsift/pkg/provider/stt"
	sttmock "github.com/MrWong99/medsift/pkg/provider/stt/mock"
	"github.com/MrWong99/medsift/pkg/provider/trials"
	trialmock "github.com/MrWong99/medsift/pkg/provider/trials/mock"
	"github.com/MrWong99/medsift/pkg/types"
)

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Err: errors.New("whisper down")}, nil
	})
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Result: types.Transcription{
			Segments: []types.Segment{{Start: 0, End: 1, Text: "from deepgram"}},
		}}, nil
	})
	reg.RegisterRedactor("regex", func(config.ProviderEntry) (phi.Redactor, error) {
		return &phimock.Redactor{}, nil
	})
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterLiterature("pubmed", func(e config.ProviderEntry) (literature.Backend, error) {
		return &litmock.Backend{ID: e.Name}, nil
	})
	reg.RegisterTrials("clinicaltrials", func(config.ProviderEntry) (trials.Finder, error) {
		return &trialmock.Finder{ID: "clinicaltrials"}, nil
	})
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.STT = config.ProviderEntry{Name: "whisper"}
	cfg.Providers.STTFallbacks = []config.ProviderEntry{{Name: "deepgram"}, {Name: "not-compiled-in"}}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai"}
	cfg.Providers.Literature = []config.ProviderEntry{{Name: "pubmed"}, {Name: "semantic_scholar"}}
	cfg.Providers.Trials = config.ProviderEntry{Name: "clinicaltrials"}

	p, err := app.BuildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders() error: %v", err)
	}

	tf, ok := p.Transcriber.(*resilience.TranscriberFallback)
	if !ok {
		t.Fatalf("Transcriber = %T, want *resilience.TranscriberFallback", p.Transcriber)
	}
	got, err := tf.Transcribe(context.Background(), []byte("pcm"))
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if got.Text() != "from deepgram" {
		t.Errorf("Transcribe() text = %q, want %q", got.Text(), "from deepgram")
	}

	if _, ok := p.Redactor.(*phimock.Redactor); !ok {
		t.Errorf("Redactor = %T, want the bare primary without fallbacks", p.Redactor)
	}
	if _, ok := p.LLM.(*llmmock.Provider); !ok {
		t.Errorf("LLM = %T, want the bare primary without fallbacks", p.LLM)
	}

	// semantic_scholar is not registered and is skipped.
	if len(p.Literature) != 1 {
		t.Fatalf("len(Literature) = %d, want 1", len(p.Literature))
	}
	b, ok := p.Literature[0].(*resilience.Backend)
	if !ok {
		t.Fatalf("Literature[0] = %T, want *resilience.Backend", p.Literature[0])
	}
	if b.Name() != "pubmed" {
		t.Errorf("Literature[0].Name() = %q, want %q", b.Name(), "pubmed")
	}

	finder, ok := p.Trials.(*resilience.TrialFinder)
	if !ok {
		t.Fatalf("Trials = %T, want *resilience.TrialFinder", p.Trials)
	}
	if finder.Name() != "clinicaltrials" {
		t.Errorf("Trials.Name() = %q, want clinicaltrials", finder.Name())
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.RedactorFallbacks = []config.ProviderEntry{{Name: "regex"}}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai"}
	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "openai"}}

	p, err := app.BuildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders() error: %v", err)
	}
	if p.Transcriber != nil {
		t.Errorf("Transcriber = %T, want nil when stt is not configured", p.Transcriber)
	}
	if _, ok := p.Redactor.(*resilience.RedactorFallback); !ok {
		t.Errorf("Redactor = %T, want *resilience.RedactorFallback", p.Redactor)
	}
	if _, ok := p.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", p.LLM)
	}
	if p.Trials != nil {
		t.Errorf("Trials = %T, want nil when trials is not configured", p.Trials)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("bad api key")
	reg := mockRegistry()
	reg.RegisterLLM("anthropic", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errBoom
	})

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{
			name:   "factory error",
			mutate: func(c *config.Config) { c.Providers.LLM = config.ProviderEntry{Name: "anthropic"} },
			want:   errBoom,
		},
		{
			name:   "unregistered redactor",
			mutate: func(c *config.Config) { c.Providers.Redactor = config.ProviderEntry{Name: "presidio"} },
			want:   config.ErrProviderNotRegistered,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := app.BuildProviders(cfg, reg)
			if !errors.Is(err, tt.want) {
				t.Errorf("BuildProviders() error = %v, want %v", err, tt.want)
			}
		})
	}
}
