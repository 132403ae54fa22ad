package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ppiankov/verifact/internal/events"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/retry"
	"github.com/ppiankov/verifact/internal/worker"
)

type outcomeKind int

const (
	outcomeVerdict outcomeKind = iota
	outcomeFailed
	outcomeCancelled
)

// claimOutcome is the result of one claim sub-pipeline
type claimOutcome struct {
	index   int
	claim   model.Claim
	kind    outcomeKind
	stage   events.Stage
	verdict model.Verdict
	err     error
}

func (o *claimOutcome) GetError() error {
	if o.kind == outcomeVerdict {
		return nil
	}
	return o.err
}

func (o *claimOutcome) fail(ctx context.Context, stage events.Stage, err error) *claimOutcome {
	o.stage = stage
	o.err = err
	o.kind = outcomeFailed
	if ctx.Err() != nil {
		o.kind = outcomeCancelled
	}
	return o
}

func outcomeOf(res worker.Result) *claimOutcome {
	switch r := res.(type) {
	case *claimOutcome:
		return r
	case *worker.PanicResult:
		job := r.Job.(*claimJob)
		return &claimOutcome{
			index: job.index,
			claim: job.claim,
			kind:  outcomeFailed,
			stage: events.StageProcessing,
			err: &StageError{
				Stage:      events.StageProcessing,
				ClaimIndex: job.index,
				Claim:      job.claim.Text,
				Attempts:   1,
				Err:        r.GetError(),
			},
		}
	default:
		panic(fmt.Sprintf("unexpected worker result %T", res))
	}
}

// claimJob gathers evidence for one claim and writes its verdict
type claimJob struct {
	run   *Run
	index int
	claim model.Claim
}

func (j *claimJob) Execute(ctx context.Context) worker.Result {
	r := j.run
	out := &claimOutcome{index: j.index, claim: j.claim}

	evidence, err := attempt(ctx, r, events.StageEvidence, j.index, j.claim.Text,
		func(ctx context.Context) ([]model.Evidence, error) {
			return r.engine.hunter.Gather(ctx, j.claim)
		})
	if err != nil {
		return out.fail(ctx, events.StageEvidence, err)
	}

	evidence = capEvidence(evidence, r.cfg.EvidencePerClaim)
	if len(evidence) == 0 {
		r.publish(events.TypeWarning, events.IssueData{
			Stage:      events.StageEvidence,
			ClaimIndex: j.index,
			Claim:      j.claim.Text,
			Message:    "no evidence found, writing verdict without evidence",
		})
	}
	r.evidence.Add(int32(len(evidence)))
	r.publish(events.TypeEvidenceGathered, events.EvidenceData{Index: j.index, Claim: j.claim, Evidence: evidence})

	verdict, err := attempt(ctx, r, events.StageVerdict, j.index, j.claim.Text,
		func(ctx context.Context) (model.Verdict, error) {
			v, err := r.engine.writer.Write(ctx, j.claim, evidence)
			if err != nil {
				return v, err
			}
			return normalizeVerdict(v, j.claim)
		})
	if err != nil {
		return out.fail(ctx, events.StageVerdict, err)
	}

	out.kind = outcomeVerdict
	out.stage = events.StageVerdict
	out.verdict = verdict
	return out
}

// capEvidence copies at most limit items, clamping relevance into [0,1]
func capEvidence(evidence []model.Evidence, limit int) []model.Evidence {
	if limit > 0 && len(evidence) > limit {
		evidence = evidence[:limit]
	}
	out := slices.Clone(evidence)
	if out == nil {
		out = []model.Evidence{}
	}
	for i := range out {
		out[i].Relevance = min(max(out[i].Relevance, 0), 1)
	}
	return out
}

// normalizeVerdict binds the verdict to its claim. An unknown label or an
// out-of-range confidence is treated as a failed attempt.
func normalizeVerdict(v model.Verdict, claim model.Claim) (model.Verdict, error) {
	label, ok := model.ParseVerdictLabel(string(v.Label))
	if !ok {
		return v, fmt.Errorf("unknown verdict label %q", v.Label)
	}
	if !model.InUnitRange(v.Confidence) {
		return v, fmt.Errorf("verdict confidence %v outside [0,1]", v.Confidence)
	}
	v.Label = label
	v.Claim = claim.Text
	return v, nil
}

// attempt runs one stage call under the run's retry policy, publishing a
// warning for every failed attempt. Exhaustion yields a *StageError.
func attempt[T any](ctx context.Context, r *Run, stage events.Stage, index int, claim string, fn func(context.Context) (T, error)) (T, error) {
	policy := r.cfg.retryPolicy(r.engine.retryable)
	policy.OnFailure = func(f retry.Failure) {
		r.publish(events.TypeWarning, events.IssueData{
			Stage:      stage,
			ClaimIndex: index,
			Claim:      claim,
			Attempt:    f.Attempt,
			Retryable:  f.Retryable,
			Message:    fmt.Sprintf("attempt %d/%d failed: %v", f.Attempt, f.MaxAttempts, f.Err),
			Err:        f.Err,
		})
	}

	start := time.Now()
	result, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (T, error) {
		if l := r.engine.limiter; l != nil {
			if err := l.Wait(ctx, string(stage)); err != nil {
				// The next token arrives after the deadline
				<-ctx.Done()
				var zero T
				return zero, ctx.Err()
			}
		}
		return call(ctx, fn)
	})
	if err == nil {
		return result, nil
	}

	se := &StageError{
		Stage:      stage,
		ClaimIndex: index,
		Claim:      claim,
		Attempts:   1,
		Elapsed:    time.Since(start),
		Err:        err,
	}
	var re *retry.Error
	if errors.As(err, &re) {
		se.Attempts = re.Attempts
		se.Elapsed = re.Elapsed
		se.Err = re.Err
	}
	return result, se
}

type callResult[T any] struct {
	value T
	err   error
}

// call runs fn on its own goroutine so that a stage ignoring cancellation
// cannot hold the run past its deadline
func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ch := make(chan callResult[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- callResult[T]{err: retry.Permanent(fmt.Errorf("stage panicked: %v", p))}
			}
		}()
		v, err := fn(ctx)
		ch <- callResult[T]{value: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
