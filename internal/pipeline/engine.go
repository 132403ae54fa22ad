// Package pipeline drives a text through claim detection, then evidence
// gathering and verdict writing for every surviving claim.
//
// A run is bounded by Config.Timeout, processes at most Config.Parallelism
// claims at once and reports everything it does on an events.Bus.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ppiankov/verifact/internal/events"
	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/retry"
	"github.com/ppiankov/verifact/internal/worker"
)

// Engine runs factcheck pipelines. One Engine may serve many concurrent
// runs; runs share only the bus.
type Engine struct {
	detector  ClaimDetector
	hunter    EvidenceHunter
	writer    VerdictWriter
	bus       *events.Bus
	logger    *slog.Logger
	limiter   *worker.Limiter
	retryable func(error) bool
}

// Option configures an Engine
type Option func(*Engine)

// WithBus publishes events on b instead of a bus owned by the engine
func WithBus(b *events.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLimiter paces stage calls, keyed by stage name
func WithLimiter(l *worker.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithRetryable sets the predicate deciding which stage errors are retried.
// The default is retry.DefaultRetryable.
func WithRetryable(fn func(error) bool) Option {
	return func(e *Engine) { e.retryable = fn }
}

// NewEngine creates an engine over the three stage services
func NewEngine(detector ClaimDetector, hunter EvidenceHunter, writer VerdictWriter, opts ...Option) *Engine {
	e := &Engine{
		detector: detector,
		hunter:   hunter,
		writer:   writer,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.New("pipeline")
	}
	if e.bus == nil {
		e.bus = events.NewBus(events.WithLogger(e.logger))
	}
	if e.retryable == nil {
		e.retryable = retry.DefaultRetryable
	}
	return e
}

// Bus returns the bus the engine publishes on
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Start validates the input and launches a run in the background.
// Validation failures are returned before any stage is called.
func (e *Engine) Start(ctx context.Context, text string, cfg Config) (*Run, error) {
	return e.start(ctx, text, cfg, false)
}

// Stream is Start with incremental delivery: Verdicts() yields each verdict
// as soon as its claim finishes, in completion order. The caller must drain
// Verdicts() until it is closed, or cancel the run.
func (e *Engine) Stream(ctx context.Context, text string, cfg Config) (*Run, error) {
	return e.start(ctx, text, cfg, true)
}

// Run executes a run to completion and returns its report. The report is
// also returned alongside a run failure when one was produced.
func (e *Engine) Run(ctx context.Context, text string, cfg Config) (*model.Report, error) {
	run, err := e.Start(ctx, text, cfg)
	if err != nil {
		return nil, err
	}
	return run.Wait()
}

// RunSync blocks until a run without a caller context completes
func (e *Engine) RunSync(text string, cfg Config) (*model.Report, error) {
	return e.Run(context.Background(), text, cfg)
}

func (e *Engine) start(ctx context.Context, text string, cfg Config, stream bool) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e.detector == nil || e.hunter == nil || e.writer == nil {
		return nil, invalidConfig("stages", "detector, hunter and writer are required")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidInput("text", "must not be empty")
	}
	if n := utf8.RuneCountInString(text); cfg.MaxTextLength > 0 && n > cfg.MaxTextLength {
		return nil, invalidInput("text", "has %d characters, limit is %d", n, cfg.MaxTextLength)
	}

	run := newRun(ctx, e, uuid.NewString(), text, cfg, stream)
	go run.execute()
	return run, nil
}
