package ports

import (
	"context"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
)

// ReputationService resolves the bounded weighting factors for a participant
// in an expertise domain. Implementations wrap the external reputation
// service ("Ekoh") and must degrade to neutral weights on lookup failure
// rather than failing the enclosing recomputation; degraded results are
// marked on the returned weights, never returned as errors.
type ReputationService interface {
	// Resolve returns the participant's weights for the given expertise
	// domain, clamped to the supplied [floor, cap] bounds. On upstream
	// failure it returns neutral weights with Degraded set.
	Resolve(ctx context.Context, userID, domainID string, floor, cap float64) domain.ReputationWeights
}

// ModerationService exposes the external moderation state this engine reads.
// The engine never mutates moderation state; it only excludes content whose
// report count crossed the topic's auto-hide threshold.
type ModerationService interface {
	// ReportCount returns the number of independent reports currently open
	// against the content item.
	ReportCount(ctx context.Context, contentID string) (int, error)
}

// StanceStore holds the current stance per (user, topic) with full history
// retained for timeline views and audit replay.
type StanceStore interface {
	// Upsert records a stance submission and returns the stored stance.
	// Resubmitting an identical (user, topic, value) is a no-op with
	// respect to aggregate state but is still appended to history.
	Upsert(ctx context.Context, stance domain.Stance) (domain.Stance, error)

	// LatestFor returns one stance per distinct user for the topic, each
	// user's most recent value only, ordered by user ID for determinism.
	LatestFor(ctx context.Context, topicID string) ([]domain.Stance, error)

	// HistoryFor returns every stance the user submitted on the topic,
	// ordered by submission time.
	HistoryFor(ctx context.Context, userID, topicID string) ([]domain.Stance, error)

	// TopicsByArgument returns the IDs of topics whose stance set
	// references the given content item, used to fan out moderation
	// state changes.
	TopicsByArgument(ctx context.Context, argumentID string) ([]string, error)
}

// TopicStore persists topics and their versioned configuration.
type TopicStore interface {
	// Get returns the topic or domain.ErrTopicNotFound.
	Get(ctx context.Context, topicID string) (domain.Topic, error)

	// Put creates or updates a topic.
	Put(ctx context.Context, topic domain.Topic) error
}

// ResultStore persists aggregation results. Results are immutable once
// written; Put supersedes the latest pointer for the result's
// (topic, scope, cohort) slot without deleting prior results.
type ResultStore interface {
	// Put stores a result and moves the latest pointer forward.
	Put(ctx context.Context, result domain.AggregateResult) error

	// Latest returns the most recent result for the slot, published or
	// withheld-with-reason.
	Latest(ctx context.Context, topicID string, scope domain.Scope, cohort domain.Cohort) (domain.AggregateResult, error)
}

// AuditTrail is the append-only log behind the transparency contract.
// Appends must never fail silently: a write failure fails the enclosing
// recomputation, since unauditable results are not permitted to publish.
// Implementations must be safe under concurrent writers and must assign a
// monotonic sequence per topic, not globally.
type AuditTrail interface {
	// Append stores the entry, assigning its per-topic sequence number,
	// and returns the stored entry.
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)

	// Entries returns the topic's entries at or after since, in sequence
	// order. A zero since returns the full log.
	Entries(ctx context.Context, topicID string, since time.Time) ([]domain.AuditEntry, error)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like submissions, withheld
	// results, and degraded lookups.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like pending recomputations.
	RecordGauge(metric string, value float64, labels map[string]string)
}
