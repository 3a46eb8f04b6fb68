// Package app wires all medsift subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/medsift/internal/config"
	"github.com/MrWong99/medsift/internal/extract"
	"github.com/MrWong99/medsift/internal/feedback"
	"github.com/MrWong99/medsift/internal/health"
	"github.com/MrWong99/medsift/internal/literature"
	"github.com/MrWong99/medsift/internal/observe"
	"github.com/MrWong99/medsift/internal/resilience"
	"github.com/MrWong99/medsift/internal/risk"
	"github.com/MrWong99/medsift/internal/server"
	"github.com/MrWong99/medsift/internal/session"
	"github.com/MrWong99/medsift/pkg/store"
	"github.com/MrWong99/medsift/pkg/store/postgres"
)

// serverShutdownTimeout bounds draining in-flight requests once Run's
// context is cancelled.
const serverShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the medsift API.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler

	// Persistence. All three may be the same value.
	boosts  store.BoostStore
	records store.FeedbackStore
	visits  store.VisitStore

	// Subsystems, initialised in New.
	sessions  *session.Manager
	sweeper   *session.Sweeper
	archive   *session.VisitGuard
	risk      *risk.Engine
	ranker    *literature.Ranker
	extractor *extract.Extractor
	feedback  *feedback.Service
	checkers  []health.Checker
	server    *server.Server

	// listener, when set, is served instead of listening on
	// cfg.Server.ListenAddr.
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store for boosts, feedback and visits instead of
// creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.boosts, a.records, a.visits = s, s, s
	}
}

// WithMetrics injects the metric instruments. Without it
// [observe.DefaultMetrics] is used.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes Run serve on l instead of cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]. A Redactor is required; every other provider
// slot is optional.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Redactor == nil {
		return nil, errors.New("app: a redactor is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Live sessions ─────────────────────────────────────────────────
	a.initSessions()

	// ── 3. Engines ───────────────────────────────────────────────────────
	a.risk = risk.New(risk.WithThresholds(cfg.Risk.LowMax, cfg.Risk.MediumMax))
	a.ranker = literature.New(providers.Literature,
		literature.WithTuning(tuningFrom(cfg.Literature)),
		literature.WithBoostStore(a.boosts),
		literature.WithMetrics(a.metrics),
	)
	if providers.LLM != nil {
		a.extractor = extract.New(providers.LLM,
			extract.WithMaxRetries(derefOr(cfg.Extraction.MaxRetries, config.DefaultMaxRetries)),
			extract.WithTemperature(derefOr(cfg.Extraction.Temperature, config.DefaultTemperature)),
			extract.WithMaxTokens(cfg.Extraction.MaxTokens),
			extract.WithMetrics(a.metrics, cfg.Providers.LLM.Name),
		)
	}
	a.feedback = feedback.NewService(a.records, a.boosts, feedback.WithMetrics(a.metrics))

	// ── 4. Readiness ─────────────────────────────────────────────────────
	a.initHealth()

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	deps := server.Deps{
		Sessions:       a.sessions,
		Archive:        a.archive,
		Visits:         a.visits,
		Redactor:       providers.Redactor,
		Risk:           a.risk,
		Ranker:         a.ranker,
		Feedback:       a.feedback,
		Trials:         providers.Trials,
		Health:         health.New(a.checkers...),
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
	}
	// A typed nil pointer must not reach the interface field.
	if a.extractor != nil {
		deps.Extractor = a.extractor
	}
	a.server = server.New(deps)

	slog.Info("app initialised",
		"transcriber", providers.Transcriber != nil,
		"llm", providers.LLM != nil,
		"literature_backends", len(providers.Literature),
		"trials", providers.Trials != nil,
		"postgres", cfg.Storage.PostgresDSN != "",
	)
	return a, nil
}

// initStorage opens PostgreSQL when a DSN is configured and falls back to
// memory otherwise. A feedback file replaces the in-memory feedback log.
func (a *App) initStorage(ctx context.Context) error {
	if a.boosts != nil {
		return nil
	}
	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.boosts, a.records, a.visits = pg, pg, pg
		a.checkers = append(a.checkers, health.Ping("database", pg))
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		slog.Info("storage: postgres")
		return nil
	}

	mem := store.NewMemStore()
	a.boosts, a.records, a.visits = mem, mem, mem
	if path := a.cfg.Storage.FeedbackFile; path != "" {
		a.records = feedback.NewFileStore(path)
		slog.Info("storage: memory, feedback file", "path", path)
	} else {
		slog.Warn("storage: memory only; boosts, feedback and visits are lost on restart")
	}
	return nil
}

func (a *App) initSessions() {
	sc := a.cfg.Session
	transcriber := a.providers.Transcriber
	if transcriber == nil {
		transcriber = noTranscriber{}
	}
	a.sessions = session.NewManager(session.Config{
		Transcriber:    transcriber,
		Redactor:       a.providers.Redactor,
		Timeout:        sc.Timeout,
		PauseThreshold: sc.PauseThreshold,
		Speakers:       sc.Speakers,
		MaxChunkBytes:  sc.MaxChunkBytes,
		Metrics:        a.metrics,
	})
	a.archive = session.NewVisitGuard(a.visits)
	if sc.SweepInterval > 0 {
		a.sweeper = session.NewSweeper(a.sessions, sc.SweepInterval)
		a.closers = append(a.closers, func() error {
			a.sweeper.Stop()
			return nil
		})
	}
}

func (a *App) initHealth() {
	a.checkers = append(a.checkers,
		health.Flag("transcriber", func() bool { return a.providers.Transcriber == nil }, "no transcriber configured"),
		health.Flag("visit_archive", a.archive.IsDegraded, "last visit save failed"),
	)
	if len(a.providers.Literature) > 0 {
		a.checkers = append(a.checkers,
			health.Flag("literature", a.allBackendsOpen, "every literature backend circuit is open"))
	}
}

// allBackendsOpen reports whether no literature backend is accepting calls.
// Backends without a breaker always count as available.
func (a *App) allBackendsOpen() bool {
	for _, b := range a.providers.Literature {
		sb, ok := b.(interface{ State() resilience.State })
		if !ok || sb.State() != resilience.StateOpen {
			return false
		}
	}
	return true
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Sessions returns the live session registry.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Risk returns the risk engine.
func (a *App) Risk() *risk.Engine { return a.risk }

// Ranker returns the literature ranker.
func (a *App) Ranker() *literature.Ranker { return a.ranker }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of d. Log level changes are
// left to the caller, which owns the handler's level.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.RiskChanged {
		a.risk.SetThresholds(d.NewRisk.LowMax, d.NewRisk.MediumMax)
		slog.Info("risk thresholds updated", "low_max", d.NewRisk.LowMax, "medium_max", d.NewRisk.MediumMax)
	}
	if d.LiteratureChanged {
		a.ranker.SetTuning(tuningFrom(d.NewLiterature))
		slog.Info("literature tuning updated",
			"max_terms", d.NewLiterature.MaxTerms,
			"top_n", d.NewLiterature.TopN,
			"min_boost", d.NewLiterature.MinBoost,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails. On
// cancellation it drains in-flight requests and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	if a.sweeper != nil {
		a.sweeper.Start(ctx)
	}

	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	<-errCh
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers), "live_sessions", a.sessions.Len())

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func tuningFrom(lc config.LiteratureConfig) literature.Tuning {
	return literature.Tuning{
		MaxTerms:      lc.MaxTerms,
		TopN:          lc.TopN,
		FetchMinBoost: lc.FetchMinBoost,
		MinBoost:      lc.MinBoost,
		Qualifier:     lc.Qualifier,
		Timeout:       lc.Timeout,
	}
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
