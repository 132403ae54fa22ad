package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/render"
)

var (
	inputFile     string
	outJSON       string
	outMD         string
	stream        bool
	heuristic     bool
	metricsAddr   string
	noCache       bool
	noFooter      bool
	llmProvider   string
	llmModel      string
	searchBackend string
	minWorth      float64
	maxClaims     int
	parallelism   int
	timeout       time.Duration
	raiseOnError  bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Fact-check the claims in a piece of text",
	Long: `Check runs a text through the fact-checking pipeline:
- Detect check-worthy factual claims
- Gather evidence for each claim (LLM or web search)
- Grade evidence sources by authority
- Write a verdict per claim that cites only gathered evidence

Text is read from the argument, --file, or stdin.

Example:
  verifact check "The Eiffel Tower was completed in 1889."
  verifact check --file article.html --json report.json --md report.md
  cat speech.txt | verifact check --search serper --stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&inputFile, "file", "f", "", "read text from file")
	checkCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	checkCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	checkCmd.Flags().BoolVar(&stream, "stream", false, "print verdicts as soon as each claim finishes")
	checkCmd.Flags().BoolVar(&heuristic, "heuristic", false, "detect claims with keyword heuristics instead of the LLM")
	checkCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run (e.g. :9090)")

	addPipelineFlags(checkCmd)
}

// addPipelineFlags registers the flags shared by check and batch
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable evidence cache")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	cmd.Flags().StringVar(&searchBackend, "search", "", "evidence backend (llm, serper)")
	cmd.Flags().Float64Var(&minWorth, "min-worthiness", 0, "minimum check-worthiness in [0,1]")
	cmd.Flags().IntVar(&maxClaims, "max-claims", 0, "maximum claims to check (0 = all)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "claims processed concurrently")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall run timeout")
	cmd.Flags().BoolVar(&raiseOnError, "raise-on-error", false, "abort the run on the first claim failure")
}

// applyFlags overlays explicitly set flags on the loaded settings
func applyFlags(cmd *cobra.Command, cfg *model.Config) {
	changed := cmd.Flags().Changed

	if changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if changed("no-footer") {
		cfg.Output.IncludeFooter = !noFooter
	}
	if changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
	}
	if changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	if changed("search") {
		cfg.Search.Backend = searchBackend
	}
	if changed("min-worthiness") {
		cfg.Pipeline.MinCheckWorthiness = minWorth
	}
	if changed("max-claims") {
		cfg.Pipeline.MaxClaims = maxClaims
	}
	if changed("parallelism") {
		cfg.Pipeline.Parallelism = parallelism
	}
	if changed("timeout") {
		cfg.Pipeline.TimeoutSeconds = timeout.Seconds()
	}
	if changed("raise-on-error") {
		cfg.Pipeline.RaiseOnError = raiseOnError
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := readInput(args, inputFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	applyFlags(cmd, &settings)

	a, err := buildApp(settings, heuristic)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if metricsAddr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, metricsAddr); err != nil {
				logging.New("metrics").Error("metrics server stopped", "addr", metricsAddr, "error", err)
			}
		}()
	}

	report, runErr := a.check(ctx, cmd.ErrOrStderr(), text)
	if report == nil {
		return fmt.Errorf("check failed: %w", runErr)
	}

	if !stream {
		if err := render.Summary(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	}
	if err := render.WriteFiles(report, outJSON, outMD, settings.Output.IncludeFooter); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("check failed: %w", runErr)
	}
	return nil
}

// check runs text to completion. In stream mode each verdict is printed
// to w as it arrives.
func (a *app) check(ctx context.Context, w io.Writer, text string) (*model.Report, error) {
	if !stream {
		return a.engine.Run(ctx, text, a.runCfg)
	}

	run, err := a.engine.Stream(ctx, text, a.runCfg)
	if err != nil {
		return nil, err
	}
	for v := range run.Verdicts() {
		fmt.Fprintf(w, "✓ [%s] %.0f%%  %s\n", render.Label(v.Label), v.Confidence*100, v.Claim)
	}
	return run.Wait()
}

// readInput takes text from the first argument, a file, or stdin
func readInput(args []string, path string, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 0 && path != "":
		return "", errors.New("pass text as an argument or with --file, not both")
	case len(args) > 0:
		return args[0], nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}

	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no input: pass text, --file, or pipe text on stdin")
		}
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no input: pass text, --file, or pipe text on stdin")
	}
	return string(data), nil
}
