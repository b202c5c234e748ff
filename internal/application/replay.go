package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rejean-McCormick/konsensus/infrastructure/units"
	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

// ReplayReport summarizes one audit log reconstruction.
type ReplayReport struct {
	// TopicID is the replayed topic.
	TopicID string `json:"topic_id"`

	// Entries is the number of audit entries replayed, excluding any
	// beyond the as-of bound.
	Entries int `json:"entries"`

	// Recomputations is the number of recomputation entries replayed.
	Recomputations int `json:"recomputations"`

	// Results holds every result re-derived from the log, in log order.
	Results []domain.AggregateResult `json:"results"`
}

// Latest returns the reconstructed result in force for the cohort at the
// end of the replayed window.
func (r ReplayReport) Latest(cohort domain.Cohort) (domain.AggregateResult, bool) {
	for i := len(r.Results) - 1; i >= 0; i-- {
		if r.Results[i].Cohort == cohort {
			return r.Results[i], true
		}
	}
	return domain.AggregateResult{}, false
}

// Reconstruct replays the topic's audit log through the live aggregation
// pipeline and re-derives every result logged at or before asOf; a zero
// asOf replays the full log. Each recomputation entry pins its inputs (the
// composed votes) and the configuration version in force, so the
// re-derived results must match the logged ones byte-for-byte; the first
// fingerprint mismatch aborts the replay with a ReplayDivergenceError.
func (e *Engine) Reconstruct(ctx context.Context, topicID string, asOf time.Time) (ReplayReport, error) {
	topic, err := e.topics.Get(ctx, topicID)
	if err != nil {
		return ReplayReport{}, err
	}
	entries, err := e.audit.Entries(ctx, topicID, time.Time{})
	if err != nil {
		return ReplayReport{}, err
	}

	report := ReplayReport{TopicID: topicID}
	configs := make(map[int]domain.TopicConfig)

	for _, entry := range entries {
		if !asOf.IsZero() && entry.Timestamp.After(asOf) {
			continue
		}
		report.Entries++
		switch entry.Kind {
		case domain.EntryConfigChange:
			var payload domain.ConfigPayload
			if err := json.Unmarshal(entry.Payload, &payload); err != nil {
				return report, fmt.Errorf("decode config entry seq %d: %w", entry.Seq, err)
			}
			configs[payload.Config.Version] = payload.Config

		case domain.EntryRecomputation:
			var payload domain.RecomputationPayload
			if err := json.Unmarshal(entry.Payload, &payload); err != nil {
				return report, fmt.Errorf("decode recomputation entry seq %d: %w", entry.Seq, err)
			}
			report.Recomputations++

			for _, logged := range payload.Results {
				config, ok := configs[logged.ConfigVersion]
				if !ok {
					return report, fmt.Errorf("recomputation entry seq %d references unknown config version %d", entry.Seq, logged.ConfigVersion)
				}
				replayed, err := e.replayResult(ctx, topic, config, payload.Votes, logged)
				if err != nil {
					return report, fmt.Errorf("replay entry seq %d: %w", entry.Seq, err)
				}
				if replayed.ID != logged.ID {
					return report, &domain.ReplayDivergenceError{
						TopicID:    topicID,
						Seq:        entry.Seq,
						Cohort:     logged.Cohort,
						LoggedID:   logged.ID,
						ReplayedID: replayed.ID,
					}
				}
				report.Results = append(report.Results, replayed)
			}

		case domain.EntryStanceSubmitted:
			// Stance entries document the inputs that led to the next
			// recomputation; the recomputation payload already carries
			// the composed votes, so nothing is re-derived here.
		}
	}

	return report, nil
}

// replayResult re-runs the aggregation tail over the logged votes under the
// logged configuration version, with the logged timestamp as the run clock.
func (e *Engine) replayResult(
	ctx context.Context,
	topic domain.Topic,
	config domain.TopicConfig,
	votes []domain.WeightedVote,
	logged domain.AggregateResult,
) (domain.AggregateResult, error) {
	topic.Config = config

	cohortVotes, expertCount := units.CohortVotes(votes, logged.Cohort, config)

	state := domain.NewState().WithRunContext(domain.RunContext{
		RunID:      uuid.NewString(),
		Trigger:    TriggerReplay,
		ComputedAt: logged.ComputedAt,
	})
	state = domain.With(state, domain.KeyTopic, topic)
	state = domain.With(state, domain.KeyCohort, logged.Cohort)
	state = domain.With(state, domain.KeyVotes, cohortVotes)
	state = domain.With(state, domain.KeyExpertCount, expertCount)

	pipeline, err := e.set.aggregatePipeline(topic.Modality, fmt.Sprintf("replay_%s", logged.Cohort))
	if err != nil {
		return domain.AggregateResult{}, err
	}
	state, err = pipeline.Execute(ctx, state)
	if err != nil {
		return domain.AggregateResult{}, err
	}

	result, ok := domain.Get(state, domain.KeyResult)
	if !ok || result == nil {
		return domain.AggregateResult{}, fmt.Errorf("replay produced no result for cohort %s", logged.Cohort)
	}
	return *result, nil
}
