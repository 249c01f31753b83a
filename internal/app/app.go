// Package app wires all FluentSpeak subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the widget API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithProgressStore, WithNotifier, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Johnwalk12/fluentspeak/internal/artifact"
	"github.com/Johnwalk12/fluentspeak/internal/assess"
	"github.com/Johnwalk12/fluentspeak/internal/config"
	"github.com/Johnwalk12/fluentspeak/internal/health"
	"github.com/Johnwalk12/fluentspeak/internal/notify"
	"github.com/Johnwalk12/fluentspeak/internal/observe"
	"github.com/Johnwalk12/fluentspeak/internal/progress"
	"github.com/Johnwalk12/fluentspeak/internal/quiz"
	"github.com/Johnwalk12/fluentspeak/internal/recorder"
	"github.com/Johnwalk12/fluentspeak/internal/transcribe"
	"github.com/Johnwalk12/fluentspeak/pkg/capture"
	"github.com/Johnwalk12/fluentspeak/pkg/recognize"
)

// defaultLearnerID keys progress records until per-learner authentication
// exists. The widget API is single-learner per deployment.
const defaultLearnerID = "local"

// Providers holds the capture and recognition backends. Populated by main.go
// from the config.
type Providers struct {
	Source  capture.Source
	Factory capture.RecorderFactory
	Engine  recognize.Engine

	// Broker, when set, is the shared input broker the Engine was built
	// over. Nil means the App builds its own broker from Source.
	Broker *capture.Broker
}

// App owns all subsystem lifetimes and serves the voice-exercise widget API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	hub       *notify.Hub
	notifier  notify.Notifier
	metrics   *observe.Metrics
	broker    *capture.Broker
	coord     *transcribe.Coordinator
	artifacts *artifact.Store
	scorer    *assess.Scorer
	registry  *recorder.Registry
	progress  progress.Store
	health    *health.Handler

	widgets map[string]config.WidgetConfig
	quizzes map[string]*quizEntry

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// meteredNotifier counts presented messages before passing them on.
type meteredNotifier struct {
	next    notify.Notifier
	metrics *observe.Metrics
}

var _ notify.Notifier = (*meteredNotifier)(nil)

func (n *meteredNotifier) Message(msg notify.Message) {
	n.metrics.RecordNotification(context.Background(), string(msg.Level))
	n.next.Message(msg)
}

func (n *meteredNotifier) Status(sessionID, text string) {
	n.next.Status(sessionID, text)
}

func (n *meteredNotifier) RecordingChanged(sessionID string, recording bool) {
	n.next.RecordingChanged(sessionID, recording)
}

// WithProgressStore injects a progress store instead of creating one from
// config.
func WithProgressStore(s progress.Store) Option {
	return func(a *App) { a.progress = s }
}

// WithNotifier injects a notifier instead of creating the WebSocket hub.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithArtifactStore injects an artifact store.
func WithArtifactStore(s *artifact.Store) Option {
	return func(a *App) { a.artifacts = s }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles for any
// subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		widgets:   make(map[string]config.WidgetConfig, len(cfg.Widgets)),
	}
	for _, o := range opts {
		o(a)
	}
	for _, w := range cfg.Widgets {
		a.widgets[w.ID] = w
	}

	if a.notifier == nil {
		a.hub = notify.NewHub()
		a.notifier = a.hub
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.artifacts == nil {
		a.artifacts = artifact.NewStore()
	}
	a.notifier = &meteredNotifier{next: a.notifier, metrics: a.metrics}

	if err := a.initProgress(ctx); err != nil {
		return nil, fmt.Errorf("app: init progress: %w", err)
	}

	a.initScorer()
	if err := a.initQuizzes(); err != nil {
		return nil, fmt.Errorf("app: init quizzes: %w", err)
	}
	a.initSessions(ctx)
	a.initHealth()

	return a, nil
}

// initProgress connects the configured progress store, defaulting to the
// in-memory store when no DSN is configured.
func (a *App) initProgress(ctx context.Context) error {
	if a.progress != nil {
		return nil
	}

	dsn := a.cfg.Progress.PostgresDSN
	if dsn == "" {
		slog.Info("using in-memory progress store")
		a.progress = progress.NewMemStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	store := progress.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	a.progress = store
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("connected progress store", "backend", "postgres")
	return nil
}

// initScorer builds the response scorer from the configured thresholds.
func (a *App) initScorer() {
	var opts []assess.Option
	if t := a.cfg.Assess.PassThreshold; t > 0 {
		opts = append(opts, assess.WithPassThreshold(t))
	}
	if t := a.cfg.Assess.WordThreshold; t > 0 {
		opts = append(opts, assess.WithWordThreshold(t))
	}
	a.scorer = assess.New(opts...)
}

// quizEntry pairs a quiz with the course section it completes when passed.
type quizEntry struct {
	quiz    *quiz.Quiz
	section string
}

// initQuizzes builds the configured course quizzes.
func (a *App) initQuizzes() error {
	a.quizzes = make(map[string]*quizEntry, len(a.cfg.Quizzes))
	var opts []quiz.Option
	if t := a.cfg.Quiz.MinPassScore; t > 0 {
		opts = append(opts, quiz.WithMinPassScore(t))
	}
	for _, def := range a.cfg.Quizzes {
		questions := make([]quiz.Question, len(def.Questions))
		for i, qq := range def.Questions {
			choices := make([]quiz.Choice, len(qq.Choices))
			for j, c := range qq.Choices {
				choices[j] = quiz.Choice{Text: c.Text, Correct: c.Correct, Explanation: c.Explanation}
			}
			questions[i] = quiz.Question{Text: qq.Text, Choices: choices, Explanation: qq.Explanation}
		}
		q, err := quiz.New(questions, opts...)
		if err != nil {
			return fmt.Errorf("quiz %q: %w", def.ID, err)
		}
		a.quizzes[def.ID] = &quizEntry{quiz: q, section: def.Section}
	}
	return nil
}

// initSessions builds the shared capture broker, the transcription
// coordinator, and one recording session per configured widget.
func (a *App) initSessions(ctx context.Context) {
	a.broker = a.providers.Broker
	if a.broker == nil {
		a.broker = capture.NewBroker(a.providers.Source)
	}
	a.coord = transcribe.New(a.providers.Engine, a.notifier, a.metrics)

	a.registry = recorder.NewRegistry(recorder.Deps{
		Broker:      a.broker,
		Factory:     a.providers.Factory,
		Coordinator: a.coord,
		Artifacts:   a.artifacts,
		Notifier:    a.notifier,
		Metrics:     a.metrics,
		MaxDuration: a.cfg.Recording.MaxDuration,
		MIMETypes:   a.cfg.Recording.MIMETypes,
		OnSaved: func(s *recorder.Session, art *artifact.Artifact) {
			a.handleSaved(ctx, s, art)
		},
	})
	for _, w := range a.cfg.Widgets {
		a.registry.Register(w.ID)
	}
	slog.Info("registered exercise widgets", "count", a.registry.Len())
}

// initHealth sets up the liveness and readiness handlers.
func (a *App) initHealth() {
	a.health = health.New("fluentspeak",
		health.Checker{Name: "progress", Check: func(ctx context.Context) error {
			_, err := a.progress.Get(ctx, defaultLearnerID, a.courseID())
			return err
		}},
	)
}

func (a *App) courseID() string {
	if a.cfg.CourseID != "" {
		return a.cfg.CourseID
	}
	return "default"
}

// handleSaved runs after a recording finalizes: the response is scored
// against the widget's expected phrase and persisted, and the widget's
// section is completed when the assessment passes.
func (a *App) handleSaved(ctx context.Context, s *recorder.Session, art *artifact.Artifact) {
	w, ok := a.widgets[s.ID()]
	if !ok {
		return
	}

	resp := progress.Response{
		WidgetID:   s.ID(),
		Text:       s.ResponseText(),
		WordCount:  s.WordCount(),
		RecordedAt: time.Now(),
	}

	if w.ExpectedPhrase != "" {
		res := a.scorer.Assess(resp.Text, w.ExpectedPhrase)
		resp.Score = res.Score
		resp.Passed = res.Passed
		if res.Passed {
			a.notifier.Message(notify.NewMessage(notify.LevelSuccess, "Great pronunciation! Exercise complete."))
			if w.Section != "" {
				if err := a.progress.CompleteSection(ctx, defaultLearnerID, a.courseID(), w.Section); err != nil {
					slog.Warn("complete section", "section", w.Section, "err", err)
				}
			}
		} else if len(res.MissedWords) > 0 {
			a.notifier.Status(s.ID(), fmt.Sprintf("Almost there — try again with: %v", res.MissedWords))
		}
	} else {
		a.notifier.Message(notify.NewMessage(notify.LevelSuccess, "Your response has been saved."))
	}

	if err := a.progress.SaveResponse(ctx, defaultLearnerID, a.courseID(), resp); err != nil {
		slog.Warn("save response", "widget", s.ID(), "err", err)
	}
	slog.Info("response saved",
		"widget", s.ID(),
		"words", resp.WordCount,
		"bytes", len(art.Bytes),
		"passed", resp.Passed,
	)
}

// Registry exposes the session registry, mainly for tests.
func (a *App) Registry() *recorder.Registry { return a.registry }

// Run serves the widget API and blocks until ctx is cancelled or the server
// fails. The listen address comes from the config; empty means ":8080".
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Routes builds the HTTP handler for the widget API.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	if a.hub != nil {
		mux.Handle("GET /ws", a.hub)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)

	mux.HandleFunc("POST /sessions/{id}/toggle", a.handleToggle)
	mux.HandleFunc("POST /sessions/{id}/response", a.handleSetResponse)
	mux.HandleFunc("GET /sessions/{id}", a.handleSessionState)
	mux.HandleFunc("GET /sessions/{id}/recording", a.handleDownload)
	mux.HandleFunc("GET /progress", a.handleProgress)
	mux.HandleFunc("POST /progress/section", a.handleSetSection)
	mux.HandleFunc("GET /quizzes/{id}", a.handleQuizState)
	mux.HandleFunc("POST /quizzes/{id}/select", a.handleQuizSelect)
	mux.HandleFunc("POST /quizzes/{id}/submit", a.handleQuizSubmit)
	mux.HandleFunc("POST /quizzes/{id}/reset", a.handleQuizReset)
	return mux
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop any in-flight recording first so its artifact lands.
		for _, s := range a.registry.Sessions() {
			s.Stop()
		}

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
