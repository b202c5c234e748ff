package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

// EngineConfig is the top-level configuration for the consensus engine,
// loaded from YAML at startup.
type EngineConfig struct {
	// Storage configures the SQLite database holding topics, stance
	// history, results, and the audit trail.
	Storage StorageConfig `yaml:"storage" validate:"required"`

	// Reputation configures the external reputation service client.
	Reputation ReputationConfig `yaml:"reputation" validate:"required"`

	// Moderation configures the external moderation service client.
	Moderation ModerationConfig `yaml:"moderation" validate:"required"`

	// Pipeline tunes the aggregation pipeline shared by all topics.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Scheduler tunes recomputation batching.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// MetricsAddr is the listen address for the Prometheus scrape
	// endpoint. Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// Defaults is the topic configuration applied to topics created
	// without an explicit policy. Zero means use the built-in defaults.
	Defaults *domain.TopicConfig `yaml:"defaults,omitempty"`

	// Topics seeds topics at startup. Existing topics are left untouched.
	Topics []TopicSeed `yaml:"topics,omitempty" validate:"dive"`
}

// StorageConfig locates the engine's database.
type StorageConfig struct {
	// SQLitePath is the database file path.
	SQLitePath string `yaml:"sqlite_path" validate:"required"`
}

// ReputationConfig configures the reputation service client and its
// resilience middleware.
type ReputationConfig struct {
	// BaseURL is the reputation service endpoint.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// APIKey authenticates requests. Empty disables the auth header.
	APIKey string `yaml:"api_key"`

	// TimeoutMS bounds each upstream request.
	TimeoutMS int `yaml:"timeout_ms" validate:"min=0,max=60000"`

	// RateLimit and Burst configure the token bucket in lookups per
	// second. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	Burst     int     `yaml:"burst" validate:"min=0"`

	// MaxFailures and CooldownMS configure the circuit breaker. Zero
	// MaxFailures disables it.
	MaxFailures int `yaml:"max_failures" validate:"min=0"`
	CooldownMS  int `yaml:"cooldown_ms" validate:"min=0"`

	// MaxRetries, InitialWaitMS, and MaxWaitMS configure retry backoff.
	// Zero MaxRetries disables retries.
	MaxRetries    int `yaml:"max_retries" validate:"min=0,max=10"`
	InitialWaitMS int `yaml:"initial_wait_ms" validate:"min=0,max=60000"`
	MaxWaitMS     int `yaml:"max_wait_ms" validate:"min=0,max=300000"`

	// RedisURL enables the shared Redis profile cache. Empty selects the
	// in-memory cache.
	RedisURL string `yaml:"redis_url"`

	// CacheTTLMS bounds cached profile freshness. Zero disables expiry.
	CacheTTLMS int `yaml:"cache_ttl_ms" validate:"min=0"`
}

// ModerationConfig configures the moderation service client.
type ModerationConfig struct {
	// BaseURL is the moderation service endpoint.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// APIKey authenticates requests. Empty disables the auth header.
	APIKey string `yaml:"api_key"`

	// TimeoutMS bounds each lookup.
	TimeoutMS int `yaml:"timeout_ms" validate:"min=0,max=60000"`
}

// PipelineConfig tunes the shared aggregation pipeline.
type PipelineConfig struct {
	// MaxConcurrency limits parallel reputation lookups per run.
	// Zero selects the built-in default.
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=0,max=64"`

	// CollationTag selects the language collation for ranking tie-breaks.
	CollationTag string `yaml:"collation_tag" validate:"omitempty,bcp47_language_tag"`
}

// SchedulerConfig tunes recomputation batching.
type SchedulerConfig struct {
	// BatchWindowMS is the coalescing window: triggers arriving for the
	// same topic within one window cause a single recomputation.
	BatchWindowMS int `yaml:"batch_window_ms" validate:"min=0,max=600000"`
}

// TopicSeed declares a topic to create at startup.
type TopicSeed struct {
	ID       string   `yaml:"id" validate:"required,min=1,max=100"`
	DomainID string   `yaml:"domain_id" validate:"required"`
	Scope    string   `yaml:"scope" validate:"required"`
	Modality string   `yaml:"modality" validate:"required"`
	Options  []string `yaml:"options,omitempty" validate:"dive,min=1"`

	// Config overrides the engine defaults for this topic.
	Config *domain.TopicConfig `yaml:"config,omitempty"`
}

// DefaultEngineConfig returns a runnable configuration for local use.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Storage: StorageConfig{SQLitePath: "konsensus.db"},
		Reputation: ReputationConfig{
			BaseURL:       "http://localhost:8085",
			TimeoutMS:     5000,
			RateLimit:     50,
			Burst:         100,
			MaxFailures:   5,
			CooldownMS:    30000,
			MaxRetries:    3,
			InitialWaitMS: 100,
			MaxWaitMS:     2000,
			CacheTTLMS:    int(5 * time.Minute / time.Millisecond),
		},
		Moderation: ModerationConfig{
			BaseURL:   "http://localhost:8086",
			TimeoutMS: 5000,
		},
		Scheduler: SchedulerConfig{BatchWindowMS: 1000},
	}
}

var configValidate = validator.New()

// LoadConfig reads and validates an engine configuration from a YAML file.
func LoadConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig reads and validates an engine configuration from a reader.
// Decoding is strict: unknown fields are an error, so typos surface at
// startup rather than silently falling back to defaults.
func ParseConfig(r io.Reader) (EngineConfig, error) {
	var config EngineConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return EngineConfig{}, fmt.Errorf("YAML decode failed: %w", err)
	}
	if err := ValidateConfig(&config); err != nil {
		return EngineConfig{}, err
	}
	return config, nil
}

// ValidateConfig checks struct constraints plus the enum and cross-field
// rules that tags cannot express.
func ValidateConfig(config *EngineConfig) error {
	if err := configValidate.Struct(config); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	if config.Defaults != nil {
		if err := ValidateTopicConfig(*config.Defaults); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}

	for i, seed := range config.Topics {
		if err := validateSeed(seed); err != nil {
			return fmt.Errorf("topics[%d] (%s): %w", i, seed.ID, err)
		}
	}
	return nil
}

// ValidateTopicConfig checks a topic policy against its struct tags.
func ValidateTopicConfig(config domain.TopicConfig) error {
	if err := configValidate.Struct(config); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

func validateSeed(seed TopicSeed) error {
	if err := checkEnum("scope", seed.Scope, scopeValues()); err != nil {
		return err
	}
	if err := checkEnum("modality", seed.Modality, modalityValues()); err != nil {
		return err
	}
	if domain.Modality(seed.Modality).UsesRanking() && len(seed.Options) < 2 {
		return fmt.Errorf("%w: %s topics need at least 2 options", domain.ErrInvalidConfiguration, seed.Modality)
	}
	if seed.Config != nil {
		if err := ValidateTopicConfig(*seed.Config); err != nil {
			return err
		}
	}
	return nil
}

// Topic builds the domain topic a seed describes, filling in the supplied
// default policy where the seed carries none.
func (s TopicSeed) Topic(defaults domain.TopicConfig, now time.Time) domain.Topic {
	config := defaults
	if s.Config != nil {
		config = *s.Config
	}
	if config.Version == 0 {
		config.Version = 1
	}
	return domain.Topic{
		ID:        s.ID,
		DomainID:  s.DomainID,
		Scope:     domain.Scope(s.Scope),
		Modality:  domain.Modality(s.Modality),
		Options:   s.Options,
		Config:    config,
		CreatedAt: now,
	}
}

func scopeValues() []string {
	return []string{string(domain.ScopeElite), string(domain.ScopePublic)}
}

func modalityValues() []string {
	values := make([]string, len(domain.Modalities))
	for i, m := range domain.Modalities {
		values[i] = string(m)
	}
	return values
}

// checkEnum rejects unknown enum values with a nearest-match suggestion so
// configuration typos produce actionable errors.
func checkEnum(field, value string, allowed []string) error {
	for _, v := range allowed {
		if value == v {
			return nil
		}
	}

	err := fmt.Errorf("%w: unknown %s %q (allowed: %v)", domain.ErrInvalidConfiguration, field, value, allowed)
	if suggestion, ok := nearestMatch(value, allowed); ok {
		return fmt.Errorf("%w, did you mean %q?", err, suggestion)
	}
	return err
}

// nearestMatch returns the closest allowed value when the edit distance is
// small enough to plausibly be a typo.
func nearestMatch(value string, allowed []string) (string, bool) {
	const maxDistance = 3

	best := ""
	bestDistance := maxDistance + 1
	for _, candidate := range allowed {
		if d := levenshtein.ComputeDistance(value, candidate); d < bestDistance {
			best = candidate
			bestDistance = d
		}
	}
	return best, bestDistance <= maxDistance
}
