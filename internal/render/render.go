// Package render writes run reports as JSON, Markdown or a terminal summary.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/verifact/internal/model"
)

// Footer closes every Markdown report unless disabled
const Footer = "_Generated by VeriFact. Verdicts reflect the evidence found at the time of the run, not an authoritative ruling._"

// JSON writes the report as indented JSON
func JSON(w io.Writer, report *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// Markdown writes a human-readable report
func Markdown(w io.Writer, report *model.Report, footer bool) error {
	var b strings.Builder

	b.WriteString("# Fact-check report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", report.RunID)
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", report.StartedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Claims checked: %d\n", len(report.Claims))
	fmt.Fprintf(&b, "- Verdicts: %d\n", len(report.Verdicts))
	if report.TimedOut {
		b.WriteString("- **Run timed out before every claim was checked**\n")
	}
	b.WriteString("\n")

	if counts := report.LabelCounts(); len(counts) > 0 {
		b.WriteString("| Verdict | Count |\n|---|---|\n")
		for _, l := range model.VerdictLabels {
			if n := counts[l]; n > 0 {
				fmt.Fprintf(&b, "| %s | %d |\n", Label(l), n)
			}
		}
		b.WriteString("\n")
	}

	for i, v := range report.Verdicts {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, escape(v.Claim))
		fmt.Fprintf(&b, "**%s** (confidence %.0f%%)\n\n", Label(v.Label), v.Confidence*100)
		if v.Support != nil {
			fmt.Fprintf(&b, "Evidence support: %d/100 (%s)\n\n", v.Support.Index, v.Support.Confidence)
			for _, sig := range v.Support.Signals {
				if sig.Severity != model.SeverityInfo {
					fmt.Fprintf(&b, "- %s: %s\n", sig.Severity, sig.Description)
				}
			}
			if hasIssues(v.Support) {
				b.WriteString("\n")
			}
		}
		if v.Explanation != "" {
			fmt.Fprintf(&b, "%s\n\n", v.Explanation)
		}
		if v.EvidenceSummary != "" {
			fmt.Fprintf(&b, "> %s\n\n", v.EvidenceSummary)
		}
		if len(v.Sources) > 0 {
			b.WriteString("Sources:\n")
			for _, s := range v.Sources {
				title := s.Title
				if title == "" {
					title = s.URL
				}
				fmt.Fprintf(&b, "- [%s](%s)", escape(title), s.URL)
				if s.Authority != model.TierUnknown {
					fmt.Fprintf(&b, " (%s)", s.Authority)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if len(report.Omissions) > 0 {
		b.WriteString("## Not checked\n\n")
		for _, o := range report.Omissions {
			fmt.Fprintf(&b, "- %s: %s\n", escape(o.Claim), o.Reason)
		}
		b.WriteString("\n")
	}

	if footer {
		b.WriteString("---\n\n" + Footer + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary writes a compact terminal listing
func Summary(w io.Writer, report *model.Report) error {
	var b strings.Builder

	if len(report.Verdicts) == 0 {
		if len(report.Claims) == 0 {
			b.WriteString("No check-worthy claims found.\n")
		} else {
			b.WriteString("No verdicts were produced.\n")
		}
	}
	for _, v := range report.Verdicts {
		fmt.Fprintf(&b, "%-16s %3.0f%%  %s\n", "["+Label(v.Label)+"]", v.Confidence*100, truncate(v.Claim, 90))
	}
	for _, o := range report.Omissions {
		fmt.Fprintf(&b, "%-16s       %s (%s)\n", "[skipped]", truncate(o.Claim, 70), o.Reason)
	}

	s := report.Stats
	fmt.Fprintf(&b, "\n%d claim(s), %d verdict(s), %d warning(s), %d error(s) in %v\n",
		s.ClaimsProcessed, s.VerdictsGenerated, s.Warnings, s.Errors, s.TotalTime.Round(time.Millisecond))
	if report.TimedOut {
		b.WriteString("Run timed out; some claims were not checked.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFiles writes the JSON and Markdown renderings. Empty paths are
// skipped.
func WriteFiles(report *model.Report, jsonPath, mdPath string, footer bool) error {
	if jsonPath != "" {
		if err := writeFile(jsonPath, func(w io.Writer) error { return JSON(w, report) }); err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
	}
	if mdPath != "" {
		if err := writeFile(mdPath, func(w io.Writer) error { return Markdown(w, report, footer) }); err != nil {
			return fmt.Errorf("write Markdown report: %w", err)
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(f)
}

// Label returns the display form of a verdict label
func Label(l model.VerdictLabel) string {
	return strings.ReplaceAll(strings.ToUpper(string(l)), "_", " ")
}

func hasIssues(s *model.Support) bool {
	for _, sig := range s.Signals {
		if sig.Severity != model.SeverityInfo {
			return true
		}
	}
	return false
}

func escape(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`).Replace(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
