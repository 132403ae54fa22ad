package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/verifact/internal/agents"
	"github.com/ppiankov/verifact/internal/cache"
	"github.com/ppiankov/verifact/internal/events"
	"github.com/ppiankov/verifact/internal/extract"
	"github.com/ppiankov/verifact/internal/llm"
	"github.com/ppiankov/verifact/internal/logging"
	"github.com/ppiankov/verifact/internal/metrics"
	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/pipeline"
	"github.com/ppiankov/verifact/internal/search"
	"github.com/ppiankov/verifact/internal/util"
	"github.com/ppiankov/verifact/internal/validate"
	"github.com/ppiankov/verifact/internal/worker"
)

// app bundles an engine with the run config and subscribers built from
// one application config
type app struct {
	settings model.Config
	engine   *pipeline.Engine
	runCfg   pipeline.Config
	metrics  *metrics.Collector
}

// buildApp wires stage services, cache, limiter and event subscribers.
// heuristic selects the offline claim detector instead of the LLM one.
func buildApp(settings model.Config, heuristic bool) (*app, error) {
	logging.Init(logLevel(settings), settings.Logging.Format, os.Stderr)

	runCfg, err := pipeline.FromSettings(settings.Pipeline)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(settings.LLM, settings.HTTP))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider configured; set llm.provider to openai, anthropic or ollama")
	}

	authority := validate.NewAuthorityClassifier(&settings.Authority)

	var detector pipeline.ClaimDetector
	if heuristic {
		detector = extract.NewClaimDetector()
	} else {
		detector = agents.NewDetector(provider, stageOptions(settings.LLM, settings.LLM.DetectorModel))
	}

	hunter, namespace, err := buildHunter(settings, provider, authority)
	if err != nil {
		return nil, err
	}
	if c := cache.New(settings.Cache); c != nil {
		ttl := time.Duration(settings.Cache.DiskTTLHours) * time.Hour
		hunter = agents.NewCachedHunter(hunter, c, namespace, ttl)
	}

	writerOpts := stageOptions(settings.LLM, settings.LLM.WriterModel)
	writerOpts.SupportTarget = settings.Pipeline.EvidencePerClaim
	writer := agents.NewWriter(provider, settings.LLM.StrictEvidence, writerOpts)

	bus := events.NewBus(events.WithLogger(logging.New("events")))
	collector := metrics.NewCollector()
	bus.Subscribe(collector.Handle)
	if settings.Output.Verbose {
		bus.Subscribe(events.LogHandler(logging.New("pipeline")))
	}

	opts := []pipeline.Option{
		pipeline.WithBus(bus),
		pipeline.WithLogger(logging.New("pipeline")),
	}
	if rl := settings.RateLimiting; rl.RequestsPerSecond > 0 {
		opts = append(opts, pipeline.WithLimiter(worker.NewLimiter(rl.RequestsPerSecond, rl.BurstSize)))
	}

	return &app{
		settings: settings,
		engine:   pipeline.NewEngine(detector, hunter, writer, opts...),
		runCfg:   runCfg,
		metrics:  collector,
	}, nil
}

// buildHunter returns the evidence hunter for the configured backend and
// the cache namespace its results are stored under
func buildHunter(settings model.Config, provider llm.Provider, authority *validate.AuthorityClassifier) (pipeline.EvidenceHunter, string, error) {
	limit := settings.Pipeline.EvidencePerClaim

	switch strings.ToLower(settings.Search.Backend) {
	case "", "llm":
		opts := stageOptions(settings.LLM, settings.LLM.HunterModel)
		return agents.NewHunter(provider, authority, limit, opts), "llm:" + pickModel(opts.Model, provider.Name()), nil

	case "serper":
		if settings.Search.APIKey == "" {
			return nil, "", fmt.Errorf("search backend serper needs an API key (SERPER_API_KEY)")
		}
		client := util.NewHTTPClient(settings.HTTP)
		searcher := search.NewSerperClient(client, settings.Search.APIKey, settings.Search.Endpoint)

		opts := []search.HunterOption{
			search.WithAuthority(authority),
			search.WithResults(settings.Search.Results),
			search.WithHunterLogger(logging.New("search")),
		}
		if settings.Search.FetchPages {
			fopts := []search.FetcherOption{
				search.WithHostLimiter(worker.NewLimiter(settings.HTTP.PerHostRPS, 4)),
			}
			if settings.HTTP.RespectRobots {
				fopts = append(fopts, search.WithRobots(util.NewRobotsChecker(settings.HTTP.UserAgent, client, time.Hour)))
			}
			fetcher := search.NewFetcher(client, settings.HTTP.UserAgent, settings.HTTP.MaxBodyBytes, fopts...)
			opts = append(opts, search.WithFetcher(fetcher))
		}
		return search.NewWebHunter(searcher, opts...), "serper", nil

	default:
		return nil, "", fmt.Errorf("unknown search backend: %s (supported: llm, serper)", settings.Search.Backend)
	}
}

func stageOptions(cfg model.LLMConfig, override string) agents.Options {
	return agents.Options{
		Model:     pickModel(override, cfg.Model),
		MaxTokens: cfg.MaxTokens,
	}
}

func pickModel(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func logLevel(settings model.Config) slog.Level {
	if settings.Output.Verbose {
		return logging.ParseLevel("debug")
	}
	return logging.ParseLevel(settings.Logging.Level)
}
