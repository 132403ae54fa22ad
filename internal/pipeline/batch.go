package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/verifact/internal/model"
)

// BatchResult is the outcome of one text in a batch
type BatchResult struct {
	Index  int
	Text   string
	Report *model.Report
	Error  error
}

// BatchProcessor runs many texts through one engine with a bound on
// concurrent runs. Each run still honours its own Parallelism.
type BatchProcessor struct {
	engine      *Engine
	cfg         Config
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(engine *Engine, cfg Config, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		engine:      engine,
		cfg:         cfg,
		concurrency: concurrency,
	}
}

// ProcessTexts processes texts concurrently. Results are in input order; a
// failed text never stops the others.
func (b *BatchProcessor) ProcessTexts(ctx context.Context, texts []string) []*BatchResult {
	results := make([]*BatchResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			report, err := b.engine.Run(gctx, text, b.cfg)
			results[i] = &BatchResult{
				Index:  i,
				Text:   text,
				Report: report,
				Error:  err,
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// ProcessFile reads texts from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*BatchResult, error) {
	texts, err := ReadTextsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read texts: %w", err)
	}

	return b.ProcessTexts(ctx, texts), nil
}

// ReadTextsFromFile reads texts from a file (one per line)
func ReadTextsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var texts []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			texts = append(texts, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return texts, nil
}
