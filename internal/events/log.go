package events

import (
	"log/slog"
)

// LogHandler returns a Handler that writes events to logger.
func LogHandler(logger *slog.Logger) Handler {
	return func(e Event) error {
		attrs := []any{"run_id", e.RunID, "event", e.Type}

		switch d := e.Data.(type) {
		case StartedData:
			logger.Info("run started", append(attrs, "text_chars", d.TextChars, "parallelism", d.Parallelism, "timeout", d.Timeout)...)
		case StageData:
			logger.Debug(d.Message, append(attrs, "stage", d.Stage, "progress", d.Progress)...)
		case ClaimData:
			logger.Info("claim detected", append(attrs, "index", d.Index, "worthiness", d.Claim.CheckWorthiness, "claim", truncate(d.Claim.Text, 80))...)
		case EvidenceData:
			logger.Info("evidence gathered", append(attrs, "index", d.Index, "items", len(d.Evidence))...)
		case VerdictData:
			logger.Info("verdict generated", append(attrs, "index", d.Index, "verdict", d.Verdict.Label, "confidence", d.Verdict.Confidence)...)
		case CompletedData:
			logger.Info("run completed", append(attrs, "verdicts", d.Verdicts, "omitted", d.Omitted, "timed_out", d.TimedOut, "duration", d.Duration)...)
		case IssueData:
			attrs = append(attrs, "stage", d.Stage, "claim_index", d.ClaimIndex)
			if d.Attempt > 0 {
				attrs = append(attrs, "attempt", d.Attempt)
			}
			if d.Err != nil {
				attrs = append(attrs, "error", d.Err)
			}
			if e.Type == TypeError {
				logger.Error(d.Message, attrs...)
			} else {
				logger.Warn(d.Message, attrs...)
			}
		default:
			logger.Debug("event", attrs...)
		}
		return nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
