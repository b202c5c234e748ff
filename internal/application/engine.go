package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Rejean-McCormick/konsensus/infrastructure/middleware"
	"github.com/Rejean-McCormick/konsensus/infrastructure/units"
	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// ActorEngine is the audit actor recorded on entries the engine writes on
// its own behalf.
const ActorEngine = "engine"

// Run triggers recorded on recomputation audit entries.
const (
	TriggerStanceSubmitted  = "stance_submitted"
	TriggerModerationChange = "moderation_change"
	TriggerConfigChange     = "config_change"
	TriggerReplay           = "replay"
)

// cohorts every recomputation produces, in storage order.
var runCohorts = []domain.Cohort{domain.CohortAll, domain.CohortExperts}

// EngineParams collects the dependencies an Engine needs. Stores and the
// reputation service are required; observability hooks are optional.
type EngineParams struct {
	Topics     ports.TopicStore
	Stances    ports.StanceStore
	Results    ports.ResultStore
	Audit      ports.AuditTrail
	Reputation ports.ReputationService
	Moderation ports.ModerationService

	Metrics  ports.MetricsCollector
	Observer middleware.RunObserver
	Logger   zerolog.Logger

	// Defaults is the policy for topics created without one. Zero selects
	// the built-in defaults.
	Defaults domain.TopicConfig

	Pipeline PipelineConfig

	// BatchWindow is the scheduler's coalescing window.
	BatchWindow time.Duration

	// Clock supplies run timestamps. Nil selects the wall clock; tests
	// inject a fixed clock for deterministic results.
	Clock func() time.Time
}

// Engine is the consensus engine's application service. It owns the write
// path (topic lifecycle, stance submission, recomputation) and the read
// path (results, audit export, replay verification). All mutating
// operations are audited; a recomputation whose audit entry cannot be
// written publishes nothing.
type Engine struct {
	topics     ports.TopicStore
	stances    ports.StanceStore
	results    ports.ResultStore
	audit      ports.AuditTrail
	moderation ports.ModerationService

	set       *pipelineSet
	scheduler *Scheduler
	metrics   ports.MetricsCollector
	observer  middleware.RunObserver
	logger    zerolog.Logger
	defaults  domain.TopicConfig
	clock     func() time.Time

	// generations implements last-computed-wins: a run publishes only if
	// no newer run for the same topic has started since it began.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(p EngineParams) (*Engine, error) {
	switch {
	case p.Topics == nil:
		return nil, fmt.Errorf("topic store is required")
	case p.Stances == nil:
		return nil, fmt.Errorf("stance store is required")
	case p.Results == nil:
		return nil, fmt.Errorf("result store is required")
	case p.Audit == nil:
		return nil, fmt.Errorf("audit trail is required")
	case p.Reputation == nil:
		return nil, fmt.Errorf("reputation service is required")
	case p.Moderation == nil:
		return nil, fmt.Errorf("moderation service is required")
	}

	set, err := newPipelineSet(p.Reputation, p.Moderation, p.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	defaults := p.Defaults
	if defaults == (domain.TopicConfig{}) {
		defaults = domain.DefaultTopicConfig()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		topics:      p.Topics,
		stances:     p.Stances,
		results:     p.Results,
		audit:       p.Audit,
		moderation:  p.Moderation,
		set:         set,
		metrics:     p.Metrics,
		observer:    p.Observer,
		logger:      p.Logger.With().Str("component", "engine").Logger(),
		defaults:    defaults,
		clock:       clock,
		generations: make(map[string]uint64),
	}
	e.scheduler = NewScheduler(e.Recompute, p.BatchWindow, p.Metrics, p.Logger)
	return e, nil
}

// Start runs the recomputation scheduler until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) { e.scheduler.Start(ctx) }

// Flush forces any queued recomputations to run now.
func (e *Engine) Flush(ctx context.Context) { e.scheduler.Flush(ctx) }

// CreateTopic stores a new topic and audits its initial configuration as
// version 1, so replays know the policy in force from the first entry.
func (e *Engine) CreateTopic(ctx context.Context, topic domain.Topic, actor string) (domain.Topic, error) {
	if topic.ID == "" {
		return domain.Topic{}, fmt.Errorf("%w: topic id must not be empty", domain.ErrInvalidConfiguration)
	}
	if _, err := e.topics.Get(ctx, topic.ID); err == nil {
		return domain.Topic{}, fmt.Errorf("%w: topic %q already exists", domain.ErrInvalidConfiguration, topic.ID)
	}

	if topic.Config == (domain.TopicConfig{}) {
		topic.Config = e.defaults
	}
	topic.Config.Version = 1
	if err := ValidateTopicConfig(topic.Config); err != nil {
		return domain.Topic{}, err
	}
	if topic.Modality.UsesRanking() && len(topic.Options) < 2 {
		return domain.Topic{}, fmt.Errorf("%w: %s topics need at least 2 options", domain.ErrInvalidConfiguration, topic.Modality)
	}
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = e.clock().UTC()
	}

	if err := e.topics.Put(ctx, topic); err != nil {
		return domain.Topic{}, err
	}
	if err := e.appendConfigEntry(ctx, topic, actor); err != nil {
		return domain.Topic{}, err
	}

	e.logger.Info().Str("topic", topic.ID).Str("modality", string(topic.Modality)).Msg("topic created")
	return topic, nil
}

// SubmitStance validates and records a stance, audits the submission, and
// queues a recomputation. Resubmission is idempotent with respect to
// aggregate state but still appends to history and the audit log.
func (e *Engine) SubmitStance(ctx context.Context, stance domain.Stance) (domain.Stance, error) {
	topic, err := e.topics.Get(ctx, stance.TopicID)
	if err != nil {
		return domain.Stance{}, err
	}
	if topic.Archived {
		return domain.Stance{}, domain.ErrTopicArchived
	}
	if err := stance.Validate(topic); err != nil {
		return domain.Stance{}, err
	}
	if stance.SubmittedAt.IsZero() {
		stance.SubmittedAt = e.clock().UTC()
	}

	stored, err := e.stances.Upsert(ctx, stance)
	if err != nil {
		return domain.Stance{}, err
	}

	payload, err := json.Marshal(domain.StancePayload{Stance: stored})
	if err != nil {
		return domain.Stance{}, fmt.Errorf("encode stance payload: %w", err)
	}
	if _, err := e.audit.Append(ctx, domain.AuditEntry{
		TopicID:   topic.ID,
		Kind:      domain.EntryStanceSubmitted,
		Payload:   payload,
		Actor:     stance.UserID,
		Timestamp: stored.SubmittedAt,
	}); err != nil {
		return domain.Stance{}, &domain.AuditWriteError{TopicID: topic.ID, Err: err}
	}

	if e.metrics != nil {
		e.metrics.RecordCounter("consensus_stance_submissions_total", 1, map[string]string{
			"topic":    topic.ID,
			"modality": string(topic.Modality),
		})
	}
	e.scheduler.Request(topic.ID, TriggerStanceSubmitted)
	return stored, nil
}

// NotifyModeration signals that the moderation state of a content item
// changed. Every topic holding stances attached to that item is queued for
// recomputation, since its eligible stance set may have changed.
func (e *Engine) NotifyModeration(ctx context.Context, argumentID string) error {
	topicIDs, err := e.stances.TopicsByArgument(ctx, argumentID)
	if err != nil {
		return err
	}
	for _, id := range topicIDs {
		e.scheduler.Request(id, TriggerModerationChange)
	}
	e.logger.Debug().Str("argument", argumentID).Int("topics", len(topicIDs)).Msg("moderation change fanned out")
	return nil
}

// UpdateTopicConfig installs a new policy version for the topic, audits the
// change, and queues a recomputation under the new policy. The version is
// assigned here; callers supply only the policy values.
func (e *Engine) UpdateTopicConfig(ctx context.Context, topicID string, config domain.TopicConfig, actor string) (domain.Topic, error) {
	topic, err := e.topics.Get(ctx, topicID)
	if err != nil {
		return domain.Topic{}, err
	}

	config.Version = topic.Config.Version + 1
	if err := ValidateTopicConfig(config); err != nil {
		return domain.Topic{}, err
	}
	topic.Config = config

	if err := e.topics.Put(ctx, topic); err != nil {
		return domain.Topic{}, err
	}
	if err := e.appendConfigEntry(ctx, topic, actor); err != nil {
		return domain.Topic{}, err
	}

	e.logger.Info().Str("topic", topic.ID).Int("version", config.Version).Msg("topic configuration updated")
	e.scheduler.Request(topic.ID, TriggerConfigChange)
	return topic, nil
}

// ArchiveTopic retires a topic. Archived topics reject new stances and are
// never recomputed again; their results and audit log remain readable.
func (e *Engine) ArchiveTopic(ctx context.Context, topicID string) (domain.Topic, error) {
	topic, err := e.topics.Get(ctx, topicID)
	if err != nil {
		return domain.Topic{}, err
	}
	if topic.Archived {
		return topic, nil
	}
	topic.Archived = true
	if err := e.topics.Put(ctx, topic); err != nil {
		return domain.Topic{}, err
	}
	e.logger.Info().Str("topic", topicID).Msg("topic archived")
	return topic, nil
}

// Result returns the latest result for the topic's (scope, cohort) slot,
// published or withheld.
func (e *Engine) Result(ctx context.Context, topicID string, cohort domain.Cohort) (domain.AggregateResult, error) {
	topic, err := e.topics.Get(ctx, topicID)
	if err != nil {
		return domain.AggregateResult{}, err
	}
	return e.results.Latest(ctx, topicID, topic.Scope, cohort)
}

// StanceHistory returns the user's full submission history on the topic.
func (e *Engine) StanceHistory(ctx context.Context, userID, topicID string) ([]domain.Stance, error) {
	return e.stances.HistoryFor(ctx, userID, topicID)
}

// AuditExport returns the topic's audit entries at or after since, in
// sequence order. A zero since exports the full log.
func (e *Engine) AuditExport(ctx context.Context, topicID string, since time.Time) ([]domain.AuditEntry, error) {
	if _, err := e.topics.Get(ctx, topicID); err != nil {
		return nil, err
	}
	return e.audit.Entries(ctx, topicID, since)
}

// Recompute runs one full aggregation for the topic: moderation filtering,
// weight composition, per-cohort aggregation, audit append, then result
// publication. The audit entry is written before any result, and an append
// failure aborts publication. If a newer run started while this one was in
// flight, its output is discarded and ErrSuperseded returned.
func (e *Engine) Recompute(ctx context.Context, topicID, trigger string) error {
	gen := e.beginRun(topicID)
	start := e.clock()
	if e.observer != nil {
		ctx = e.observer.RunStarted(ctx, topicID, trigger)
	}

	results, flags, err := e.recompute(ctx, topicID, trigger, gen)

	if e.observer != nil {
		e.observer.RunCompleted(ctx, results, flags, e.clock().Sub(start), err)
	}
	return err
}

func (e *Engine) recompute(ctx context.Context, topicID, trigger string, gen uint64) ([]domain.AggregateResult, []string, error) {
	topic, err := e.topics.Get(ctx, topicID)
	if err != nil {
		return nil, nil, err
	}
	if topic.Archived {
		e.logger.Debug().Str("topic", topicID).Msg("skipping recomputation for archived topic")
		return nil, nil, nil
	}

	stances, err := e.stances.LatestFor(ctx, topicID)
	if err != nil {
		return nil, nil, err
	}

	state := domain.NewState().WithRunContext(domain.RunContext{
		RunID:      uuid.NewString(),
		Trigger:    trigger,
		ComputedAt: e.clock().UTC(),
	})
	state = domain.With(state, domain.KeyTopic, topic)
	state = domain.With(state, domain.KeyStances, stances)
	state = domain.With(state, domain.KeyCohort, domain.CohortAll)

	// Moderation filtering and weight resolution run once; both cohorts
	// and the audit log share the composed votes.
	state, err = e.set.moderationGate.Execute(ctx, state)
	if err != nil {
		return nil, nil, fmt.Errorf("moderation gate: %w", err)
	}
	state, err = e.set.compose.Execute(ctx, state)
	if err != nil {
		return nil, nil, fmt.Errorf("compose: %w", err)
	}
	votes, _ := domain.Get(state, domain.KeyVotes)
	flags, _ := domain.Get(state, domain.KeyAuditFlags)

	results, err := e.aggregateCohorts(ctx, state, topic, votes)
	if err != nil {
		return nil, flags, err
	}

	payload, err := json.Marshal(domain.RecomputationPayload{Votes: votes, Results: results})
	if err != nil {
		return results, flags, fmt.Errorf("encode recomputation payload: %w", err)
	}
	computedAt, _ := domain.Get(state, domain.KeyComputedAt)
	if _, err := e.audit.Append(ctx, domain.AuditEntry{
		TopicID:   topic.ID,
		Kind:      domain.EntryRecomputation,
		Payload:   payload,
		Actor:     ActorEngine,
		Flags:     flags,
		Timestamp: computedAt,
	}); err != nil {
		return results, flags, &domain.AuditWriteError{TopicID: topic.ID, Err: err}
	}

	if !e.currentRun(topicID, gen) {
		return results, flags, domain.ErrSuperseded
	}
	for _, result := range results {
		if err := e.results.Put(ctx, result); err != nil {
			return results, flags, err
		}
	}

	e.logger.Info().
		Str("topic", topic.ID).
		Str("trigger", trigger).
		Int("participants", len(votes)).
		Strs("flags", flags).
		Msg("recomputation complete")
	return results, flags, nil
}

// aggregateCohorts runs the aggregation tail for every cohort over the
// shared composed votes. Cohorts are independent and run concurrently.
func (e *Engine) aggregateCohorts(ctx context.Context, base domain.State, topic domain.Topic, votes []domain.WeightedVote) ([]domain.AggregateResult, error) {
	results := make([]domain.AggregateResult, len(runCohorts))
	g, gctx := errgroup.WithContext(ctx)

	for i, cohort := range runCohorts {
		g.Go(func() error {
			cohortVotes, expertCount := units.CohortVotes(votes, cohort, topic.Config)

			state := domain.With(base, domain.KeyCohort, cohort)
			state = domain.With(state, domain.KeyVotes, cohortVotes)
			state = domain.With(state, domain.KeyExpertCount, expertCount)

			pipeline, err := e.set.aggregatePipeline(topic.Modality, fmt.Sprintf("aggregate_%s", cohort))
			if err != nil {
				return err
			}
			state, err = pipeline.Execute(gctx, state)
			if err != nil {
				return err
			}

			result, ok := domain.Get(state, domain.KeyResult)
			if !ok || result == nil {
				return fmt.Errorf("cohort %s produced no result", cohort)
			}
			results[i] = *result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) appendConfigEntry(ctx context.Context, topic domain.Topic, actor string) error {
	payload, err := json.Marshal(domain.ConfigPayload{Config: topic.Config})
	if err != nil {
		return fmt.Errorf("encode config payload: %w", err)
	}
	if actor == "" {
		actor = ActorEngine
	}
	if _, err := e.audit.Append(ctx, domain.AuditEntry{
		TopicID:   topic.ID,
		Kind:      domain.EntryConfigChange,
		Payload:   payload,
		Actor:     actor,
		Timestamp: e.clock().UTC(),
	}); err != nil {
		return &domain.AuditWriteError{TopicID: topic.ID, Err: err}
	}
	return nil
}

// beginRun bumps the topic's run generation and returns the new value.
func (e *Engine) beginRun(topicID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generations[topicID]++
	return e.generations[topicID]
}

// currentRun reports whether gen is still the topic's newest run.
func (e *Engine) currentRun(topicID string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generations[topicID] == gen
}
