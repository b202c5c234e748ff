package application

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

const validConfigYAML = `
storage:
  sqlite_path: /var/lib/konsensus/engine.db
reputation:
  base_url: https://ekoh.internal:8443
  api_key: secret
  timeout_ms: 3000
  rate_limit: 25
  burst: 50
  max_failures: 5
  cooldown_ms: 10000
  max_retries: 3
  initial_wait_ms: 100
  max_wait_ms: 2000
  cache_ttl_ms: 60000
moderation:
  base_url: https://moderation.internal:8444
  timeout_ms: 2000
pipeline:
  max_concurrency: 16
  collation_tag: en
scheduler:
  batch_window_ms: 500
topics:
  - id: city-budget
    domain_id: finance
    scope: public
    modality: ranking
    options: [parks, transit, housing]
`

func TestParseConfig_Valid(t *testing.T) {
	config, err := ParseConfig(strings.NewReader(validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/konsensus/engine.db", config.Storage.SQLitePath)
	assert.Equal(t, "https://ekoh.internal:8443", config.Reputation.BaseURL)
	assert.Equal(t, 16, config.Pipeline.MaxConcurrency)
	assert.Equal(t, 500, config.Scheduler.BatchWindowMS)
	require.Len(t, config.Topics, 1)
	assert.Equal(t, "city-budget", config.Topics[0].ID)
}

func TestParseConfig_UnknownFieldRejected(t *testing.T) {
	yaml := strings.Replace(validConfigYAML, "batch_window_ms", "batch_windw_ms", 1)
	_, err := ParseConfig(strings.NewReader(yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML decode failed")
}

func TestParseConfig_MissingStorageRejected(t *testing.T) {
	yaml := `
reputation:
  base_url: https://ekoh.internal:8443
`
	_, err := ParseConfig(strings.NewReader(yaml))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestValidateConfig_EnumSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		suggest string
	}{
		{name: "scope typo", field: "scope: public", value: "scope: pubic", suggest: `did you mean "public"`},
		{name: "modality typo", field: "modality: ranking", value: "modality: rankng", suggest: `did you mean "ranking"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := strings.Replace(validConfigYAML, tt.field, tt.value, 1)
			_, err := ParseConfig(strings.NewReader(yaml))
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tt.suggest)
		})
	}
}

func TestValidateConfig_RankingSeedNeedsOptions(t *testing.T) {
	yaml := strings.Replace(validConfigYAML, "options: [parks, transit, housing]", "options: [parks]", 1)
	_, err := ParseConfig(strings.NewReader(yaml))
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "at least 2 options")
}

func TestValidateConfig_BadDefaultsRejected(t *testing.T) {
	defaults := domain.DefaultTopicConfig()
	defaults.WeightFloor = 2.0
	defaults.WeightCap = 1.0
	config := DefaultEngineConfig()
	config.Defaults = &defaults

	err := ValidateConfig(&config)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestDefaultEngineConfig_IsValid(t *testing.T) {
	config := DefaultEngineConfig()
	assert.NoError(t, ValidateConfig(&config))
}

func TestTopicSeed_Topic(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	defaults := domain.DefaultTopicConfig()

	seed := TopicSeed{
		ID:       "city-budget",
		DomainID: "finance",
		Scope:    "public",
		Modality: "ranking",
		Options:  []string{"parks", "transit"},
	}
	topic := seed.Topic(defaults, now)

	assert.Equal(t, domain.ScopePublic, topic.Scope)
	assert.Equal(t, domain.ModalityRanking, topic.Modality)
	assert.Equal(t, defaults, topic.Config)
	assert.Equal(t, 1, topic.Config.Version)
	assert.Equal(t, now, topic.CreatedAt)

	t.Run("explicit config overrides defaults", func(t *testing.T) {
		override := defaults
		override.ExpertQuorum = 3
		override.Version = 0
		seed.Config = &override

		topic := seed.Topic(defaults, now)
		assert.Equal(t, 3, topic.Config.ExpertQuorum)
		assert.Equal(t, 1, topic.Config.Version)
	})
}
