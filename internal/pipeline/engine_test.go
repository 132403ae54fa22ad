package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/verifact/internal/events"
	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/retry"
	"github.com/ppiankov/verifact/internal/worker"
)

const sampleText = "The unemployment rate fell to 3.5% in 2023. Paris is the capital of France."

func scoredClaims(scores ...float64) []model.Claim {
	claims := make([]model.Claim, len(scores))
	for i, s := range scores {
		claims[i] = model.Claim{Text: fmt.Sprintf("claim %d scored %.1f", i, s), CheckWorthiness: s}
	}
	return claims
}

func detectorOf(claims []model.Claim) DetectorFunc {
	return func(context.Context, string) ([]model.Claim, error) {
		return claims, nil
	}
}

func oneSource(_ context.Context, c model.Claim) ([]model.Evidence, error) {
	return []model.Evidence{{
		Text:      "passage about " + c.Text,
		Source:    model.SourceRef{URL: "https://example.org/" + c.Key()},
		Relevance: 0.7,
		Stance:    model.StanceSupporting,
	}}, nil
}

func judgeTrue(_ context.Context, c model.Claim, ev []model.Evidence) (model.Verdict, error) {
	label := model.VerdictTrue
	if len(ev) == 0 {
		label = model.VerdictUnverifiable
	}
	sources := make([]model.SourceRef, 0, len(ev))
	for _, e := range ev {
		sources = append(sources, e.Source)
	}
	return model.Verdict{
		Claim:       c.Text,
		Label:       label,
		Confidence:  0.8,
		Explanation: "checked",
		Sources:     sources,
	}, nil
}

func newTestEngine(d ClaimDetector, h EvidenceHunter, w VerdictWriter, opts ...Option) (*Engine, *events.Recorder) {
	rec := events.NewRecorder()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	engine := NewEngine(d, h, w, opts...)
	engine.Bus().Subscribe(rec.Handle)
	return engine, rec
}

// testConfig keeps retries fast and deterministic
func testConfig(t *testing.T, opts ...ConfigOption) Config {
	t.Helper()
	base := []ConfigOption{
		WithRetryBackoff(time.Millisecond, 5*time.Millisecond, 0),
		WithTimeout(5 * time.Second),
	}
	cfg, err := NewConfig(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func claimTexts(verdicts []model.Verdict) []string {
	out := make([]string, len(verdicts))
	for i, v := range verdicts {
		out[i] = v.Claim
	}
	return out
}

func issuesFor(rec *events.Recorder, t events.Type, stage events.Stage) []events.IssueData {
	var out []events.IssueData
	for _, e := range rec.OfType(t) {
		if issue, ok := e.Issue(); ok && issue.Stage == stage {
			out = append(out, issue)
		}
	}
	return out
}

func TestEngine_Run_FilterAndCapPreserveDetectorOrder(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.3)

	var mu sync.Mutex
	var gathered []string
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		mu.Lock()
		gathered = append(gathered, c.Text)
		mu.Unlock()
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(claims), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithMinCheckWorthiness(0.5), WithMaxClaims(2))

	report, err := engine.Run(context.Background(), sampleText, cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Claim{claims[0], claims[1]}, report.Claims)
	assert.Equal(t, []string{claims[0].Text, claims[1].Text}, claimTexts(report.Verdicts))
	assert.ElementsMatch(t, []string{claims[0].Text, claims[1].Text}, gathered)
	assert.Equal(t, 3, report.Stats.ClaimsDetected)
	assert.Equal(t, 1, report.Stats.ClaimsFiltered)
	assert.Len(t, rec.OfType(events.TypeClaimDetected), 2)
	assert.Empty(t, rec.OfType(events.TypeError))
}

func TestEngine_Run_CapTruncatesInDetectorOrder(t *testing.T) {
	claims := scoredClaims(0.6, 0.9, 0.8)
	engine, _ := newTestEngine(detectorOf(claims), HunterFunc(oneSource), WriterFunc(judgeTrue))

	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithMaxClaims(2)))
	require.NoError(t, err)

	assert.Equal(t, []string{claims[0].Text, claims[1].Text}, claimTexts(report.Verdicts))
}

func TestEngine_Run_NoCheckWorthyClaims(t *testing.T) {
	var calls atomic.Int32
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		calls.Add(1)
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(scoredClaims(0.1, 0.2)), hunter, WriterFunc(judgeTrue))

	run, err := engine.Start(context.Background(), sampleText, testConfig(t))
	require.NoError(t, err)
	report, err := run.Wait()
	require.NoError(t, err)

	assert.Empty(t, report.Verdicts)
	assert.Empty(t, report.Claims)
	assert.Zero(t, calls.Load())
	assert.Empty(t, rec.OfType(events.TypeError))
	assert.Len(t, rec.OfType(events.TypeCompleted), 1)
	assert.Equal(t, StateCompleted, run.State())
}

func TestEngine_Run_ClaimFailureIsIsolated(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.7)
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		if c.Text == claims[1].Text {
			return nil, errors.New("search backend unavailable")
		}
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(claims), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithRetryAttempts(2))

	report, err := engine.Run(context.Background(), sampleText, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{claims[0].Text, claims[2].Text}, claimTexts(report.Verdicts))
	require.Len(t, report.Omissions, 1)
	assert.Equal(t, 1, report.Omissions[0].ClaimIndex)
	assert.Equal(t, string(events.StageEvidence), report.Omissions[0].Stage)
	assert.Equal(t, 2, report.Omissions[0].Attempts)

	errs := rec.OfType(events.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].ClaimIndex())
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageEvidence), 2)
	assert.Equal(t, 1, report.Stats.Errors)
}

func TestEngine_Run_RetryWarningsPerFailedAttempt(t *testing.T) {
	const failures = 2
	var attempts atomic.Int32
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		if attempts.Add(1) <= failures {
			return nil, errors.New("rate limited")
		}
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9)), hunter, WriterFunc(judgeTrue))

	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithRetryAttempts(3)))
	require.NoError(t, err)

	assert.Len(t, report.Verdicts, 1)
	warnings := issuesFor(rec, events.TypeWarning, events.StageEvidence)
	require.Len(t, warnings, failures)
	assert.Equal(t, 1, warnings[0].Attempt)
	assert.Equal(t, 2, warnings[1].Attempt)
	assert.True(t, warnings[0].Retryable)
	assert.Empty(t, rec.OfType(events.TypeError))
}

func TestEngine_Run_ExhaustedRetriesStopAtAttemptLimit(t *testing.T) {
	var attempts atomic.Int32
	writer := WriterFunc(func(context.Context, model.Claim, []model.Evidence) (model.Verdict, error) {
		attempts.Add(1)
		return model.Verdict{}, errors.New("model overloaded")
	})

	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9)), HunterFunc(oneSource), writer)

	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithRetryAttempts(3)))
	require.NoError(t, err)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, report.Verdicts)
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageVerdict), 3)

	errs := issuesFor(rec, events.TypeError, events.StageVerdict)
	require.Len(t, errs, 1)
	assert.Equal(t, 3, errs[0].Attempt)
}

func TestEngine_Run_PermanentErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	hunter := HunterFunc(func(context.Context, model.Claim) ([]model.Evidence, error) {
		attempts.Add(1)
		return nil, retry.Permanent(errors.New("invalid request"))
	})

	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9)), hunter, WriterFunc(judgeTrue))

	_, err := engine.Run(context.Background(), sampleText, testConfig(t, WithRetryAttempts(4)))
	require.NoError(t, err)

	assert.Equal(t, int32(1), attempts.Load())
	warnings := issuesFor(rec, events.TypeWarning, events.StageEvidence)
	require.Len(t, warnings, 1)
	assert.False(t, warnings[0].Retryable)
}

func TestEngine_Run_RespectsParallelism(t *testing.T) {
	const parallelism = 3

	var inflight, peak atomic.Int32
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return oneSource(ctx, c)
	})

	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = 0.9
	}
	engine, _ := newTestEngine(detectorOf(scoredClaims(scores...)), hunter, WriterFunc(judgeTrue))

	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithParallelism(parallelism)))
	require.NoError(t, err)

	assert.Len(t, report.Verdicts, 10)
	assert.LessOrEqual(t, peak.Load(), int32(parallelism))
	assert.GreaterOrEqual(t, peak.Load(), int32(2))
}

func TestEngine_Run_TimeoutYieldsFinishedVerdicts(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.7)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	// Ignores cancellation on purpose
	writer := WriterFunc(func(ctx context.Context, c model.Claim, ev []model.Evidence) (model.Verdict, error) {
		if c.Text != claims[0].Text {
			<-block
		}
		return judgeTrue(ctx, c, ev)
	})

	engine, rec := newTestEngine(detectorOf(claims), HunterFunc(oneSource), writer)
	timeout := 200 * time.Millisecond
	cfg := testConfig(t, WithTimeout(timeout))

	start := time.Now()
	report, err := engine.Run(context.Background(), sampleText, cfg)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.True(t, report.TimedOut)
	assert.Equal(t, []string{claims[0].Text}, claimTexts(report.Verdicts))
	assert.Len(t, report.Omissions, 2)

	summary := issuesFor(rec, events.TypeWarning, events.StageRun)
	require.Len(t, summary, 1)
	assert.ErrorIs(t, summary[0].Err, ErrRunTimeout)
	assert.Contains(t, summary[0].Message, "1 claim(s) completed, 2 cut short")
	assert.Empty(t, issuesFor(rec, events.TypeWarning, events.StageVerdict))
}

func TestEngine_Run_TimeoutDuringDetection(t *testing.T) {
	detector := DetectorFunc(func(ctx context.Context, _ string) ([]model.Claim, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	engine, rec := newTestEngine(detector, HunterFunc(oneSource), WriterFunc(judgeTrue))

	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithTimeout(50*time.Millisecond)))
	require.NoError(t, err)

	assert.True(t, report.TimedOut)
	assert.Empty(t, report.Verdicts)
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageRun), 1)
	assert.Empty(t, rec.OfType(events.TypeError))
}

func TestEngine_Run_TimeoutRaisesWhenStrictAndEmpty(t *testing.T) {
	hunter := HunterFunc(func(ctx context.Context, _ model.Claim) ([]model.Evidence, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9, 0.8)), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithTimeout(50*time.Millisecond), WithRaiseOnError(true))

	run, err := engine.Start(context.Background(), sampleText, cfg)
	require.NoError(t, err)
	report, err := run.Wait()

	require.ErrorIs(t, err, ErrRunTimeout)
	require.NotNil(t, report)
	assert.True(t, report.TimedOut)
	assert.Equal(t, StateFailed, run.State())
	assert.Len(t, issuesFor(rec, events.TypeError, events.StageRun), 1)
	assert.Empty(t, rec.OfType(events.TypeCompleted))
}

func TestEngine_Run_EmptyEvidenceStillWritesVerdict(t *testing.T) {
	var seen atomic.Int32
	hunter := HunterFunc(func(context.Context, model.Claim) ([]model.Evidence, error) {
		return nil, nil
	})
	writer := WriterFunc(func(ctx context.Context, c model.Claim, ev []model.Evidence) (model.Verdict, error) {
		seen.Add(1)
		if ev == nil || len(ev) != 0 {
			return model.Verdict{}, retry.Permanent(fmt.Errorf("expected empty evidence, got %v", ev))
		}
		return judgeTrue(ctx, c, ev)
	})

	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9)), hunter, writer)

	report, err := engine.Run(context.Background(), sampleText, testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, int32(1), seen.Load())
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, model.VerdictUnverifiable, report.Verdicts[0].Label)
	assert.Empty(t, rec.OfType(events.TypeError))
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageEvidence), 1)
}

func TestEngine_Run_RaiseOnErrorPropagatesClaimFailure(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.7)
	writer := WriterFunc(func(ctx context.Context, c model.Claim, ev []model.Evidence) (model.Verdict, error) {
		if c.Text == claims[1].Text {
			return model.Verdict{}, errors.New("model refused")
		}
		return judgeTrue(ctx, c, ev)
	})

	engine, rec := newTestEngine(detectorOf(claims), HunterFunc(oneSource), writer)
	cfg := testConfig(t, WithRaiseOnError(true), WithParallelism(1), WithRetryAttempts(2))

	run, err := engine.Start(context.Background(), sampleText, cfg)
	require.NoError(t, err)
	report, err := run.Wait()

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, events.StageVerdict, stageErr.Stage)
	assert.Equal(t, 1, stageErr.ClaimIndex)
	assert.Equal(t, claims[1].Text, stageErr.Claim)
	assert.Equal(t, 2, stageErr.Attempts)
	assert.EqualError(t, stageErr.Err, "model refused")
	assert.Equal(t, StateFailed, run.State())

	require.NotNil(t, report)
	assert.Equal(t, []string{claims[0].Text}, claimTexts(report.Verdicts))

	var failed []events.Event
	for _, e := range rec.ForClaim(1) {
		assert.NotEqual(t, events.TypeVerdictGenerated, e.Type)
		if e.Type == events.TypeError {
			failed = append(failed, e)
		}
	}
	assert.Len(t, failed, 1)
	assert.Empty(t, rec.OfType(events.TypeCompleted))

	runErrs := issuesFor(rec, events.TypeError, events.StageRun)
	require.Len(t, runErrs, 1, "a failed run ends with one run-level error")
	assert.ErrorIs(t, runErrs[0].Err, stageErr)
}

func TestEngine_Run_RaiseOnErrorCancelsInflightSiblings(t *testing.T) {
	claims := scoredClaims(0.9, 0.9, 0.9)

	var blocked sync.WaitGroup
	blocked.Add(2)
	var cancelled atomic.Int32
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		if c.Text == claims[1].Text {
			blocked.Wait()
			return nil, retry.Permanent(errors.New("index offline"))
		}
		blocked.Done()
		<-ctx.Done()
		cancelled.Add(1)
		return nil, ctx.Err()
	})

	engine, _ := newTestEngine(detectorOf(claims), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithRaiseOnError(true), WithParallelism(3))

	start := time.Now()
	run, err := engine.Start(context.Background(), sampleText, cfg)
	require.NoError(t, err)
	_, err = run.Wait()
	elapsed := time.Since(start)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, 1, stageErr.ClaimIndex)
	assert.Equal(t, StateFailed, run.State())
	assert.Equal(t, int32(2), cancelled.Load(), "both blocked siblings should observe cancellation")
	assert.Less(t, elapsed, time.Second, "run should not wait for the timeout")
}

func TestEngine_Run_PanickingStageDoesNotLeakSlot(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.7)
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		if c.Text == claims[0].Text {
			panic("kaboom")
		}
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(claims), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithParallelism(1))

	done := make(chan struct{})
	var report *model.Report
	var err error
	go func() {
		defer close(done)
		report, err = engine.Run(context.Background(), sampleText, cfg)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run stalled after a stage panic")
	}

	require.NoError(t, err)
	assert.Equal(t, []string{claims[1].Text, claims[2].Text}, claimTexts(report.Verdicts))
	require.Len(t, report.Omissions, 1)
	assert.Equal(t, 0, report.Omissions[0].ClaimIndex)
	assert.Contains(t, report.Omissions[0].Reason, "stage panicked: kaboom")
	assert.Len(t, issuesFor(rec, events.TypeError, events.StageEvidence), 1)
}

func TestEngine_Run_DetectionFailure(t *testing.T) {
	detector := DetectorFunc(func(context.Context, string) ([]model.Claim, error) {
		return nil, errors.New("detector down")
	})

	t.Run("lenient", func(t *testing.T) {
		engine, rec := newTestEngine(detector, HunterFunc(oneSource), WriterFunc(judgeTrue))
		report, err := engine.Run(context.Background(), sampleText, testConfig(t))
		require.NoError(t, err)
		assert.Empty(t, report.Verdicts)
		assert.Len(t, issuesFor(rec, events.TypeError, events.StageDetection), 1)
		assert.Len(t, rec.OfType(events.TypeCompleted), 1)
	})

	t.Run("strict", func(t *testing.T) {
		engine, _ := newTestEngine(detector, HunterFunc(oneSource), WriterFunc(judgeTrue))
		_, err := engine.Run(context.Background(), sampleText, testConfig(t, WithRaiseOnError(true)))
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, events.StageDetection, stageErr.Stage)
		assert.Equal(t, events.NoClaim, stageErr.ClaimIndex)
	})
}

func TestEngine_Run_DropsMalformedAndDuplicateClaims(t *testing.T) {
	claims := []model.Claim{
		{Text: "Water boils at 100 C", CheckWorthiness: 0.9},
		{Text: "  water boils   at 100 c ", CheckWorthiness: 0.8},
		{Text: "   ", CheckWorthiness: 0.9},
		{Text: "Scores above one", CheckWorthiness: 1.5},
		{Text: "The Moon orbits Earth", CheckWorthiness: 0.7},
	}
	engine, rec := newTestEngine(detectorOf(claims), HunterFunc(oneSource), WriterFunc(judgeTrue))

	report, err := engine.Run(context.Background(), sampleText, testConfig(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Water boils at 100 C", "The Moon orbits Earth"}, claimTexts(report.Verdicts))
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageDetection), 2)
	assert.Equal(t, 3, report.Stats.ClaimsFiltered)
}

func TestEngine_Run_InvalidVerdictIsRetriedAndNormalized(t *testing.T) {
	var attempts atomic.Int32
	writer := WriterFunc(func(context.Context, model.Claim, []model.Evidence) (model.Verdict, error) {
		if attempts.Add(1) == 1 {
			return model.Verdict{Label: model.VerdictTrue, Confidence: 1.7}, nil
		}
		return model.Verdict{Claim: "paraphrased", Label: "Partially True", Confidence: 0.6}, nil
	})
	claims := scoredClaims(0.9)
	engine, rec := newTestEngine(detectorOf(claims), HunterFunc(oneSource), writer)

	report, err := engine.Run(context.Background(), sampleText, testConfig(t))
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, claims[0].Text, report.Verdicts[0].Claim)
	assert.Equal(t, model.VerdictPartiallyTrue, report.Verdicts[0].Label)
	assert.Len(t, issuesFor(rec, events.TypeWarning, events.StageVerdict), 1)
}

func TestEngine_Run_CapsEvidencePerClaim(t *testing.T) {
	hunter := HunterFunc(func(context.Context, model.Claim) ([]model.Evidence, error) {
		ev := make([]model.Evidence, 10)
		for i := range ev {
			ev[i] = model.Evidence{Text: fmt.Sprintf("passage %d", i), Relevance: 2}
		}
		return ev, nil
	})
	var got []model.Evidence
	writer := WriterFunc(func(ctx context.Context, c model.Claim, ev []model.Evidence) (model.Verdict, error) {
		got = ev
		return judgeTrue(ctx, c, ev)
	})

	engine, _ := newTestEngine(detectorOf(scoredClaims(0.9)), hunter, writer)
	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithEvidencePerClaim(3)))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "passage 0", got[0].Text)
	assert.Equal(t, 1.0, got[0].Relevance)
	assert.Equal(t, 3, report.Stats.EvidenceGathered)
}

func TestEngine_Run_EventsForAClaimAreOrdered(t *testing.T) {
	engine, rec := newTestEngine(detectorOf(scoredClaims(0.9, 0.8, 0.7, 0.6)), HunterFunc(oneSource), WriterFunc(judgeTrue))

	_, err := engine.Run(context.Background(), sampleText, testConfig(t, WithParallelism(4)))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		var types []events.Type
		for _, e := range rec.ForClaim(i) {
			types = append(types, e.Type)
		}
		assert.Equal(t, []events.Type{
			events.TypeClaimDetected,
			events.TypeEvidenceGathered,
			events.TypeVerdictGenerated,
		}, types, "claim %d", i)
	}

	all := rec.Events()
	require.NotEmpty(t, all)
	assert.Equal(t, events.TypeStarted, all[0].Type)
	assert.Equal(t, events.TypeCompleted, all[len(all)-1].Type)
}

func TestEngine_Run_IsIdempotent(t *testing.T) {
	claims := scoredClaims(0.9, 0.8, 0.7)
	engine, _ := newTestEngine(detectorOf(claims), HunterFunc(oneSource), WriterFunc(judgeTrue))
	cfg := testConfig(t)

	first, err := engine.Run(context.Background(), sampleText, cfg)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), sampleText, cfg)
	require.NoError(t, err)

	assert.ElementsMatch(t, first.Verdicts, second.Verdicts)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestEngine_Stream_DeliversInCompletionOrder(t *testing.T) {
	claims := scoredClaims(0.9, 0.8)
	hunter := HunterFunc(func(ctx context.Context, c model.Claim) ([]model.Evidence, error) {
		if c.Text == claims[0].Text {
			time.Sleep(80 * time.Millisecond)
		}
		return oneSource(ctx, c)
	})

	engine, rec := newTestEngine(detectorOf(claims), hunter, WriterFunc(judgeTrue))
	cfg := testConfig(t, WithParallelism(2))

	run, err := engine.Stream(context.Background(), sampleText, cfg)
	require.NoError(t, err)

	var streamed []string
	for v := range run.Verdicts() {
		streamed = append(streamed, v.Claim)
	}
	report, err := run.Wait()
	require.NoError(t, err)

	assert.Equal(t, []string{claims[1].Text, claims[0].Text}, streamed)
	assert.Equal(t, []string{claims[0].Text, claims[1].Text}, claimTexts(report.Verdicts))

	streamCounts := countByType(rec.Events())
	rec.Reset()
	_, err = engine.Run(context.Background(), sampleText, cfg)
	require.NoError(t, err)
	assert.Equal(t, countByType(rec.Events()), streamCounts)
}

func countByType(evs []events.Event) map[events.Type]int {
	counts := make(map[events.Type]int)
	for _, e := range evs {
		counts[e.Type]++
	}
	return counts
}

func TestEngine_RunSync(t *testing.T) {
	engine, _ := newTestEngine(detectorOf(scoredClaims(0.9)), HunterFunc(oneSource), WriterFunc(judgeTrue))

	report, err := engine.RunSync(sampleText, testConfig(t))
	require.NoError(t, err)
	assert.Len(t, report.Verdicts, 1)
}

func TestRun_Cancel(t *testing.T) {
	hunter := HunterFunc(func(ctx context.Context, _ model.Claim) ([]model.Evidence, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	engine, _ := newTestEngine(detectorOf(scoredClaims(0.9)), hunter, WriterFunc(judgeTrue))

	run, err := engine.Start(context.Background(), sampleText, testConfig(t))
	require.NoError(t, err)
	require.NotEmpty(t, run.ID())

	time.Sleep(20 * time.Millisecond)
	run.Cancel()

	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatal("run did not stop after Cancel")
	}

	_, err = run.Wait()
	require.ErrorIs(t, err, ErrRunCancelled)
	assert.Equal(t, StateFailed, run.State())
}

func TestEngine_Start_RejectsInvalidInput(t *testing.T) {
	var detected atomic.Int32
	detector := DetectorFunc(func(context.Context, string) ([]model.Claim, error) {
		detected.Add(1)
		return nil, nil
	})
	engine, rec := newTestEngine(detector, HunterFunc(oneSource), WriterFunc(judgeTrue))

	_, err := engine.Start(context.Background(), "   \n\t", testConfig(t))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Start(context.Background(), "too long for the limit", testConfig(t, WithMaxTextLength(5)))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Start(context.Background(), sampleText, Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(nil, HunterFunc(oneSource), WriterFunc(judgeTrue)).Start(context.Background(), sampleText, testConfig(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Zero(t, detected.Load())
	assert.Empty(t, rec.Events())
}

func TestEngine_WithLimiter(t *testing.T) {
	limiter := worker.NewLimiter(0, 1)
	limiter.SetRate(string(events.StageEvidence), 50, 1)

	engine, _ := newTestEngine(detectorOf(scoredClaims(0.9, 0.8, 0.7)), HunterFunc(oneSource), WriterFunc(judgeTrue),
		WithLimiter(limiter))

	start := time.Now()
	report, err := engine.Run(context.Background(), sampleText, testConfig(t, WithParallelism(3)))
	require.NoError(t, err)

	assert.Len(t, report.Verdicts, 3)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEngine_SharedBusAcrossRuns(t *testing.T) {
	bus := events.NewBus(events.WithLogger(logging.Discard()))
	rec := events.NewRecorder()
	bus.Subscribe(rec.Handle)

	engine := NewEngine(detectorOf(scoredClaims(0.9)), HunterFunc(oneSource), WriterFunc(judgeTrue),
		WithBus(bus), WithLogger(logging.Discard()))

	cfg := testConfig(t)
	var wg sync.WaitGroup
	ids := make([]string, 3)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := engine.Run(context.Background(), sampleText, cfg)
			if assert.NoError(t, err) {
				ids[i] = report.RunID
			}
		}()
	}
	wg.Wait()

	perRun := make(map[string]int)
	for _, e := range rec.OfType(events.TypeCompleted) {
		perRun[e.RunID]++
	}
	for _, id := range ids {
		assert.Equal(t, 1, perRun[id])
	}
}
