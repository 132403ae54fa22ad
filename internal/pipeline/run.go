package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/verifact/internal/events"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/worker"
)

// State is the lifecycle state of a run
type State string

const (
	StateCreated          State = "created"
	StateDetecting        State = "detecting"
	StateProcessingClaims State = "processing_claims"
	StateAggregating      State = "aggregating"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Run is the handle of one pipeline execution.
//
// Thread Safety: all methods are safe for concurrent use.
type Run struct {
	id     string
	engine *Engine
	cfg    Config
	text   string
	stream bool
	logger *slog.Logger

	// callerCtx ends on parent cancellation or Cancel. ctx additionally
	// ends on the deadline and on abort after a raised claim failure.
	callerCtx context.Context
	ctx       context.Context
	cancel    context.CancelCauseFunc
	stopTimer context.CancelFunc
	abort     context.CancelCauseFunc

	verdicts chan model.Verdict
	done     chan struct{}

	mu     sync.RWMutex
	state  State
	report *model.Report
	err    error

	warnings atomic.Int32
	errs     atomic.Int32
	evidence atomic.Int32
}

func newRun(parent context.Context, e *Engine, id, text string, cfg Config, stream bool) *Run {
	callerCtx, cancel := context.WithCancelCause(parent)
	deadlineCtx, stopTimer := context.WithTimeoutCause(callerCtx, cfg.Timeout, ErrRunTimeout)
	ctx, abort := context.WithCancelCause(deadlineCtx)

	return &Run{
		id:        id,
		engine:    e,
		cfg:       cfg,
		text:      text,
		stream:    stream,
		logger:    e.logger.With("run_id", id),
		callerCtx: callerCtx,
		ctx:       ctx,
		cancel:    cancel,
		stopTimer: stopTimer,
		abort:     abort,
		verdicts:  make(chan model.Verdict),
		done:      make(chan struct{}),
		state:     StateCreated,
	}
}

// ID returns the run identifier carried by every event of the run
func (r *Run) ID() string {
	return r.id
}

// State returns the current lifecycle state
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Config returns the configuration the run was started with
func (r *Run) Config() Config {
	return r.cfg
}

// Cancel stops the run. In-flight stage calls are cancelled and Wait
// returns an error wrapping ErrRunCancelled.
func (r *Run) Cancel() {
	r.cancel(ErrRunCancelled)
}

// Done is closed once the run reached a terminal state
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Verdicts yields verdicts in completion order for runs started with
// Engine.Stream. It is closed before the run finishes; for other runs it
// is closed without yielding anything.
func (r *Run) Verdicts() <-chan model.Verdict {
	return r.verdicts
}

// Wait blocks until the run finishes. The report is returned even when the
// run failed after producing a partial result.
func (r *Run) Wait() (*model.Report, error) {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report, r.err
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.logger.Debug("run state changed", "state", s)
}

func (r *Run) publish(t events.Type, data any) {
	switch t {
	case events.TypeWarning:
		r.warnings.Add(1)
	case events.TypeError:
		r.errs.Add(1)
	}
	r.engine.bus.Publish(events.Event{RunID: r.id, Type: t, Data: data})
}

// timedOut reports whether the run deadline fired before anything else
// ended the run context
func (r *Run) timedOut() bool {
	return errors.Is(context.Cause(r.ctx), ErrRunTimeout)
}

func (r *Run) release() {
	r.abort(context.Canceled)
	r.stopTimer()
	r.cancel(context.Canceled)
}

func (r *Run) execute() {
	started := time.Now()
	report := &model.Report{
		RunID:     r.id,
		StartedAt: started.UTC(),
		TextChars: utf8.RuneCountInString(r.text),
		Claims:    []model.Claim{},
		Verdicts:  []model.Verdict{},
	}

	r.logger.Info("run started", "chars", report.TextChars, "parallelism", r.cfg.Parallelism)

	err := r.process(report)

	close(r.verdicts)
	r.release()

	report.FinishedAt = time.Now().UTC()
	report.Stats.TotalTime = time.Since(started)
	report.Stats.EvidenceGathered = int(r.evidence.Load())
	report.Stats.VerdictsGenerated = len(report.Verdicts)
	report.Stats.Warnings = int(r.warnings.Load())
	report.Stats.Errors = int(r.errs.Load())

	final := StateCompleted
	if err != nil {
		final = StateFailed
	}

	r.mu.Lock()
	r.state = final
	r.report = report
	r.err = err
	r.mu.Unlock()

	if err == nil {
		r.publish(events.TypeCompleted, events.CompletedData{
			Verdicts: len(report.Verdicts),
			Omitted:  len(report.Omissions),
			TimedOut: report.TimedOut,
			Duration: report.Stats.TotalTime,
		})
		r.logger.Info("run completed",
			"verdicts", len(report.Verdicts),
			"omitted", len(report.Omissions),
			"timed_out", report.TimedOut,
			"duration", report.Stats.TotalTime,
		)
	} else {
		r.logger.Error("run failed", "error", err, "verdicts", len(report.Verdicts))
	}

	close(r.done)
}

func (r *Run) process(report *model.Report) error {
	r.publish(events.TypeStarted, events.StartedData{
		TextChars:   report.TextChars,
		Parallelism: r.cfg.Parallelism,
		Timeout:     r.cfg.Timeout,
	})

	r.setState(StateDetecting)
	r.publish(events.TypeStageStarted, events.StageData{
		Stage:   events.StageDetection,
		Message: "detecting claims",
	})

	detectStart := time.Now()
	detected, err := attempt(r.ctx, r, events.StageDetection, events.NoClaim, "",
		func(ctx context.Context) ([]model.Claim, error) {
			return r.engine.detector.Detect(ctx, r.text)
		})
	report.Stats.DetectionTime = time.Since(detectStart)
	if err != nil {
		return r.detectionFailed(report, err)
	}

	claims := r.selectClaims(detected)
	report.Claims = claims
	report.Stats.ClaimsDetected = len(detected)
	report.Stats.ClaimsFiltered = len(detected) - len(claims)

	for i, c := range claims {
		r.publish(events.TypeClaimDetected, events.ClaimData{Index: i, Claim: c})
	}
	r.publish(events.TypeStageCompleted, events.StageData{
		Stage:    events.StageDetection,
		Progress: 1,
		Message:  fmt.Sprintf("%d of %d detected claim(s) selected", len(claims), len(detected)),
		Count:    len(claims),
	})

	if len(claims) == 0 {
		r.setState(StateAggregating)
		return nil
	}

	r.setState(StateProcessingClaims)
	report.Stats.ClaimsProcessed = len(claims)

	procStart := time.Now()
	cutShort, failure := r.processClaims(report, claims)
	report.Stats.ProcessingTime = time.Since(procStart)

	r.setState(StateAggregating)

	switch {
	case failure != nil:
		return r.runFailed(failure)
	case r.callerCtx.Err() != nil:
		return r.cancelled()
	case cutShort > 0 && r.timedOut():
		report.TimedOut = true
		return r.deadlineReached(report, fmt.Sprintf("%d claim(s) completed, %d cut short", len(report.Verdicts), cutShort))
	}
	return nil
}

func (r *Run) detectionFailed(report *model.Report, err error) error {
	switch {
	case r.callerCtx.Err() != nil:
		return r.cancelled()
	case r.timedOut():
		report.TimedOut = true
		return r.deadlineReached(report, "during claim detection")
	}

	r.publish(events.TypeError, issueFor(err))
	if r.cfg.RaiseOnError {
		return r.runFailed(err)
	}

	r.setState(StateAggregating)
	return nil
}

// deadlineReached reports the timeout. It only fails the run when the caller
// asked for strict failures and nothing was produced.
func (r *Run) deadlineReached(report *model.Report, detail string) error {
	issue := events.IssueData{
		Stage:      events.StageRun,
		ClaimIndex: events.NoClaim,
		Message:    fmt.Sprintf("run timed out after %v: %s", r.cfg.Timeout, detail),
		Err:        ErrRunTimeout,
	}

	if r.cfg.RaiseOnError && len(report.Verdicts) == 0 {
		r.publish(events.TypeError, issue)
		return fmt.Errorf("%w after %v with no verdicts", ErrRunTimeout, r.cfg.Timeout)
	}

	r.publish(events.TypeWarning, issue)
	return nil
}

// runFailed publishes the run-level error that ends a failed run. Every
// failed run publishes exactly one.
func (r *Run) runFailed(err error) error {
	r.publish(events.TypeError, events.IssueData{
		Stage:      events.StageRun,
		ClaimIndex: events.NoClaim,
		Message:    fmt.Sprintf("run failed: %v", err),
		Err:        err,
	})
	return err
}

func (r *Run) cancelled() error {
	cause := context.Cause(r.callerCtx)
	r.publish(events.TypeError, events.IssueData{
		Stage:      events.StageRun,
		ClaimIndex: events.NoClaim,
		Message:    fmt.Sprintf("run cancelled: %v", cause),
		Err:        cause,
	})
	return fmt.Errorf("run %s: %w", r.id, cause)
}

// selectClaims drops malformed claims, applies the worthiness threshold,
// collapses duplicates and applies the cap, keeping detector order
func (r *Run) selectClaims(detected []model.Claim) []model.Claim {
	claims := make([]model.Claim, 0, len(detected))
	seen := make(map[string]bool)

	for i, c := range detected {
		key := c.Key()
		if key == "" || !model.InUnitRange(c.CheckWorthiness) {
			r.publish(events.TypeWarning, events.IssueData{
				Stage:      events.StageDetection,
				ClaimIndex: events.NoClaim,
				Claim:      c.Text,
				Message:    fmt.Sprintf("dropped malformed claim %d from detector (worthiness %v)", i, c.CheckWorthiness),
			})
			continue
		}
		if c.CheckWorthiness < r.cfg.MinCheckWorthiness || seen[key] {
			continue
		}
		seen[key] = true
		claims = append(claims, c)
	}

	if r.cfg.MaxClaims > 0 && len(claims) > r.cfg.MaxClaims {
		claims = claims[:r.cfg.MaxClaims]
	}
	return claims
}

// processClaims fans the claims out over a bounded pool and aggregates the
// outcomes as they arrive. It returns the number of claims cut short by
// cancellation and the failure to raise, if any.
func (r *Run) processClaims(report *model.Report, claims []model.Claim) (int, error) {
	total := len(claims)
	r.publish(events.TypeStageStarted, events.StageData{
		Stage:   events.StageProcessing,
		Message: fmt.Sprintf("processing %d claim(s)", total),
		Count:   total,
	})

	pool := worker.NewPool(r.ctx, r.cfg.Parallelism, total)
	pool.Start()
	for i, c := range claims {
		if !pool.Submit(&claimJob{run: r, index: i, claim: c}) {
			break
		}
	}
	pool.Close()

	slots := make([]*model.Verdict, total)
	settled := make([]bool, total)
	var failure error
	cutShort, finished := 0, 0

	for res := range pool.Results() {
		out := outcomeOf(res)
		settled[out.index] = true

		switch out.kind {
		case outcomeVerdict:
			if failure != nil {
				report.Omissions = append(report.Omissions, model.Omission{
					ClaimIndex: out.index,
					Claim:      out.claim.Text,
					Reason:     "discarded after run failure",
				})
				continue
			}
			v := out.verdict
			slots[out.index] = &v
			finished++
			r.publish(events.TypeVerdictGenerated, events.VerdictData{Index: out.index, Claim: out.claim, Verdict: v})
			r.emit(v)

		case outcomeFailed:
			finished++
			report.Omissions = append(report.Omissions, omissionFor(out))
			r.publish(events.TypeError, issueFor(out.err))
			if r.cfg.RaiseOnError && failure == nil {
				failure = out.err
				r.abort(out.err)
			}

		case outcomeCancelled:
			cutShort++
			report.Omissions = append(report.Omissions, model.Omission{
				ClaimIndex: out.index,
				Claim:      out.claim.Text,
				Stage:      string(out.stage),
				Reason:     fmt.Sprintf("cut short: %v", context.Cause(r.ctx)),
			})
		}
	}

	for i, ok := range settled {
		if ok {
			continue
		}
		cutShort++
		report.Omissions = append(report.Omissions, model.Omission{
			ClaimIndex: i,
			Claim:      claims[i].Text,
			Reason:     fmt.Sprintf("not started: %v", context.Cause(r.ctx)),
		})
	}

	for _, v := range slots {
		if v != nil {
			report.Verdicts = append(report.Verdicts, *v)
		}
	}
	slices.SortFunc(report.Omissions, func(a, b model.Omission) int {
		return a.ClaimIndex - b.ClaimIndex
	})

	r.publish(events.TypeStageCompleted, events.StageData{
		Stage:    events.StageProcessing,
		Progress: float64(finished) / float64(total),
		Message:  fmt.Sprintf("%d of %d claim(s) produced a verdict", len(report.Verdicts), total),
		Count:    len(report.Verdicts),
	})

	if failure != nil {
		// Siblings stopped by the abort are not reported as timeouts
		cutShort = 0
	}
	return cutShort, failure
}

// emit hands a verdict to a streaming consumer. Delivery gives up only when
// the caller has gone away.
func (r *Run) emit(v model.Verdict) {
	if !r.stream {
		return
	}
	select {
	case r.verdicts <- v:
	case <-r.callerCtx.Done():
	}
}

func issueFor(err error) events.IssueData {
	issue := events.IssueData{
		ClaimIndex: events.NoClaim,
		Message:    err.Error(),
		Err:        err,
	}
	var se *StageError
	if errors.As(err, &se) {
		issue.Stage = se.Stage
		issue.ClaimIndex = se.ClaimIndex
		issue.Claim = se.Claim
		issue.Attempt = se.Attempts
	}
	return issue
}

func omissionFor(out *claimOutcome) model.Omission {
	o := model.Omission{
		ClaimIndex: out.index,
		Claim:      out.claim.Text,
		Stage:      string(out.stage),
		Reason:     out.err.Error(),
	}
	var se *StageError
	if errors.As(out.err, &se) {
		o.Stage = string(se.Stage)
		o.Reason = se.Err.Error()
		o.Attempts = se.Attempts
	}
	return o
}
