package pipeline

import (
	"time"

	"github.com/ppiankov/verifact/internal/model"
	"github.com/ppiankov/verifact/internal/retry"
)

// Config holds the tunables of a run. It is passed by value, so a run keeps
// its own copy and never observes later changes.
type Config struct {
	// MinCheckWorthiness drops claims scored below it. Must be in [0,1].
	MinCheckWorthiness float64

	// MaxClaims caps the claims processed, in detector order. 0 means no cap.
	MaxClaims int

	// EvidencePerClaim truncates each evidence list. 0 means no cap.
	EvidencePerClaim int

	// Timeout bounds the whole run, detection included.
	Timeout time.Duration

	// RetryAttempts is the number of attempts per stage call, including the
	// first one.
	RetryAttempts int

	// Parallelism bounds how many claims are processed at once.
	Parallelism int

	// RaiseOnError turns the first claim failure into a run failure.
	RaiseOnError bool

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RetryJitter    float64

	// MaxTextLength rejects longer input, in runes. 0 means unlimited.
	MaxTextLength int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MinCheckWorthiness: 0.5,
		EvidencePerClaim:   5,
		Timeout:            120 * time.Second,
		RetryAttempts:      2,
		Parallelism:        4,
		RetryBaseDelay:     1 * time.Second,
		RetryMaxDelay:      30 * time.Second,
		RetryJitter:        0.2,
	}
}

// ConfigOption modifies a Config under construction
type ConfigOption func(*Config)

func WithMinCheckWorthiness(v float64) ConfigOption {
	return func(c *Config) { c.MinCheckWorthiness = v }
}

func WithMaxClaims(n int) ConfigOption {
	return func(c *Config) { c.MaxClaims = n }
}

func WithEvidencePerClaim(n int) ConfigOption {
	return func(c *Config) { c.EvidencePerClaim = n }
}

func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.Timeout = d }
}

func WithRetryAttempts(n int) ConfigOption {
	return func(c *Config) { c.RetryAttempts = n }
}

func WithParallelism(n int) ConfigOption {
	return func(c *Config) { c.Parallelism = n }
}

func WithRaiseOnError(v bool) ConfigOption {
	return func(c *Config) { c.RaiseOnError = v }
}

// WithRetryBackoff sets the backoff between attempts
func WithRetryBackoff(base, maxDelay time.Duration, jitter float64) ConfigOption {
	return func(c *Config) {
		c.RetryBaseDelay = base
		c.RetryMaxDelay = maxDelay
		c.RetryJitter = jitter
	}
}

func WithMaxTextLength(n int) ConfigOption {
	return func(c *Config) { c.MaxTextLength = n }
}

// NewConfig applies opts over DefaultConfig and validates the result
func NewConfig(opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromSettings converts file/env settings into a validated Config
func FromSettings(s model.PipelineSettings) (Config, error) {
	cfg := Config{
		MinCheckWorthiness: s.MinCheckWorthiness,
		MaxClaims:          s.MaxClaims,
		EvidencePerClaim:   s.EvidencePerClaim,
		Timeout:            time.Duration(s.TimeoutSeconds * float64(time.Second)),
		RetryAttempts:      s.RetryAttempts,
		Parallelism:        s.Parallelism,
		RaiseOnError:       s.RaiseOnError,
		RetryBaseDelay:     time.Duration(s.RetryBaseDelayMS) * time.Millisecond,
		RetryMaxDelay:      time.Duration(s.RetryMaxDelayMS) * time.Millisecond,
		RetryJitter:        DefaultConfig().RetryJitter,
		MaxTextLength:      s.MaxTextLength,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every bound. The returned error is a *ValidationError
// wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case !model.InUnitRange(c.MinCheckWorthiness):
		return invalidConfig("min_checkworthiness", "must be within [0,1], got %v", c.MinCheckWorthiness)
	case c.MaxClaims < 0:
		return invalidConfig("max_claims", "must be >= 0, got %d", c.MaxClaims)
	case c.EvidencePerClaim < 0:
		return invalidConfig("evidence_per_claim", "must be >= 0, got %d", c.EvidencePerClaim)
	case c.Timeout <= 0:
		return invalidConfig("timeout", "must be > 0, got %v", c.Timeout)
	case c.RetryAttempts < 1:
		return invalidConfig("retry_attempts", "must be >= 1, got %d", c.RetryAttempts)
	case c.Parallelism < 1:
		return invalidConfig("parallelism", "must be >= 1, got %d", c.Parallelism)
	case c.MaxTextLength < 0:
		return invalidConfig("max_text_length", "must be >= 0, got %d", c.MaxTextLength)
	}

	if err := c.retryPolicy(nil).Validate(); err != nil {
		return invalidConfig("retry", "%v", err)
	}
	return nil
}

// retryPolicy derives the per-stage retry policy
func (c Config) retryPolicy(retryable func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
		Jitter:      c.RetryJitter,
		Retryable:   retryable,
	}
}
