package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verifact/internal/pipeline"
	"github.com/ppiankov/verifact/internal/render"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Fact-check many texts from a file in parallel",
	Long: `Batch checks many texts concurrently:
- Read texts from the input file (one per line, # starts a comment)
- Run several texts at once, each with its own claim parallelism
- Write a JSON and Markdown report per text

Example:
  verifact batch statements.txt
  verifact batch statements.txt --concurrency 4 --output-dir ./reports
  verifact batch statements.txt --search serper --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "texts processed concurrently (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./verifact-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "batch-timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&heuristic, "heuristic", false, "detect claims with keyword heuristics instead of the LLM")

	addPipelineFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	applyFlags(cmd, &settings)
	if cmd.Flags().Changed("concurrency") {
		settings.Concurrency.Workers = concurrency
	}

	a, err := buildApp(settings, heuristic)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  VeriFact Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", settings.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Parallelism:  %d claims per text\n", a.runCfg.Parallelism)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", settings.LLM.Provider, settings.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Evidence:     %s\n", settings.Search.Backend)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := pipeline.NewBatchProcessor(a.engine, a.runCfg, settings.Concurrency.Workers)

	fmt.Fprintf(os.Stderr, "⚙️  Checking texts from %s...\n\n", file)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	verdictCount := 0

	for _, result := range results {
		name := fmt.Sprintf("%03d-%s", result.Index+1, sanitizeFilename(result.Text))

		if result.Report == nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", name, result.Error)
			continue
		}

		jsonPath := filepath.Join(outputDir, name+".json")
		mdPath := filepath.Join(outputDir, name+".md")
		if err := render.WriteFiles(result.Report, jsonPath, mdPath, settings.Output.IncludeFooter); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", name, err)
			continue
		}

		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: partial report, %v\n", name, result.Error)
			continue
		}

		successCount++
		verdictCount += len(result.Report.Verdicts)
		fmt.Fprintf(os.Stderr, "✓ %s (%d claims, %d verdicts)\n", name, len(result.Report.Claims), len(result.Report.Verdicts))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d texts\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Verdicts:  %d\n", verdictCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns the start of a text into a filename slug
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 48 {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "text"
	}
	return slug
}
