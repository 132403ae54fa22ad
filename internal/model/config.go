package model

// Config is the application-level configuration assembled by the CLI from
// defaults, the config file, environment variables and flags. The pipeline
// core never reads it directly; the CLI converts it into a pipeline.Config.
type Config struct {
	Pipeline     PipelineSettings  `yaml:"pipeline" mapstructure:"pipeline"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Search       SearchConfig      `yaml:"search" mapstructure:"search"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Authority    AuthorityConfig   `yaml:"authority" mapstructure:"authority"`
	Logging      LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
}

// PipelineSettings mirrors the tunables of a pipeline run
type PipelineSettings struct {
	MinCheckWorthiness float64 `yaml:"min_checkworthiness" mapstructure:"min_checkworthiness"`
	MaxClaims          int     `yaml:"max_claims" mapstructure:"max_claims"`                   // 0 = no cap
	EvidencePerClaim   int     `yaml:"evidence_per_claim" mapstructure:"evidence_per_claim"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RetryAttempts      int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseDelayMS   int     `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMS    int     `yaml:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms"`
	Parallelism        int     `yaml:"parallelism" mapstructure:"parallelism"`
	RaiseOnError       bool    `yaml:"raise_on_error" mapstructure:"raise_on_error"`
	MaxTextLength      int     `yaml:"max_text_length" mapstructure:"max_text_length"`         // 0 = unlimited
}

// LLMConfig selects and configures the model backend used by the stages
type LLMConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`                       // openai, anthropic, ollama
	Model          string `yaml:"model" mapstructure:"model"`
	DetectorModel  string `yaml:"detector_model,omitempty" mapstructure:"detector_model"`
	HunterModel    string `yaml:"hunter_model,omitempty" mapstructure:"hunter_model"`
	WriterModel    string `yaml:"writer_model,omitempty" mapstructure:"writer_model"`
	APIKey         string `yaml:"-" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout        int    `yaml:"timeout" mapstructure:"timeout"`                         // seconds
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictEvidence bool   `yaml:"strict_evidence" mapstructure:"strict_evidence"`
}

// SearchConfig configures web evidence retrieval
type SearchConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`             // "llm" or "serper"
	APIKey     string `yaml:"-" mapstructure:"api_key"`
	Endpoint   string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Results    int    `yaml:"results" mapstructure:"results"`
	FetchPages bool   `yaml:"fetch_pages" mapstructure:"fetch_pages"`
}

// HTTPConfig configures outbound HTTP
type HTTPConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes   int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots  bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	PerHostRPS     float64 `yaml:"per_host_rps" mapstructure:"per_host_rps"` // 0 = unpaced unless robots.txt sets a crawl delay
	HTTPProxy      string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string  `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures evidence caching
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	MemoryTTLMins int    `yaml:"memory_ttl_minutes" mapstructure:"memory_ttl_minutes"`
	DiskTTLHours  int    `yaml:"disk_ttl_hours" mapstructure:"disk_ttl_hours"`
}

// RateLimitConfig configures per-stage request pacing
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 = disabled
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig configures batch-level concurrency
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"` // concurrent runs in batch mode
}

// AuthorityConfig configures source authority classification
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
}

// PathPattern maps a URL path regex to an authority tier
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// OutputConfig configures report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Pipeline: PipelineSettings{
			MinCheckWorthiness: 0.5,
			EvidencePerClaim:   5,
			TimeoutSeconds:     120,
			RetryAttempts:      2,
			RetryBaseDelayMS:   1000,
			RetryMaxDelayMS:    30000,
			Parallelism:        4,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Timeout:        30,
			MaxTokens:      1500,
			StrictEvidence: true,
		},
		Search: SearchConfig{
			Backend:  "llm",
			Endpoint: "https://google.serper.dev/search",
			Results:  5,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 15,
			UserAgent:      "VeriFact/0.1 (+https://github.com/ppiankov/verifact)",
			MaxBodyBytes:   2_000_000,
			RespectRobots:  true,
			PerHostRPS:     2,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Dir:           "",
			MemoryTTLMins: 30,
			DiskTTLHours:  24,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 0,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 2,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"gov", "gov.uk", "europa.eu", "who.int", "un.org",
				"nih.gov", "cdc.gov", "census.gov", "nature.com", "science.org",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "reuters.com", "apnews.com", "bbc.co.uk", "bbc.com",
				"snopes.com", "politifact.com", "factcheck.org", "fullfact.org",
			},
			PathPatterns: []PathPattern{
				{Pattern: `(?i)/(doi|abs|pdf)/`, Tier: "primary"},
				{Pattern: `(?i)/(blog|forum|community)/`, Tier: "tertiary"},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
