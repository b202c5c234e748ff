package reputation

import (
	"context"
	"errors"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// metricsReputation implements lookup metrics collection.
// This provides observability into lookup patterns, latency, and error
// rates for operational monitoring.
type metricsReputation struct {
	next      CoreReputation
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects lookup metrics.
// This enables monitoring of reputation service usage and health.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreReputation) CoreReputation {
		return &metricsReputation{
			next:      next,
			collector: collector,
		}
	}
}

// FetchProfile executes the lookup while collecting latency and status
// metrics labeled by outcome.
func (m *metricsReputation) FetchProfile(ctx context.Context, userID, domainID string) (Profile, error) {
	start := time.Now()
	profile, err := m.next.FetchProfile(ctx, userID, domainID)

	labels := map[string]string{
		"domain": domainID,
		"status": "success",
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrCircuitOpen):
			labels["status"] = "circuit_open"
		case errors.Is(err, ports.ErrProfileNotFound):
			labels["status"] = "not_found"
		case errors.Is(err, ports.ErrRateLimited):
			labels["status"] = "rate_limited"
		case ctx.Err() == context.DeadlineExceeded:
			labels["status"] = "timeout"
		default:
			labels["status"] = "error"
		}
	}

	if m.collector != nil {
		m.collector.RecordLatency("reputation_lookup", time.Since(start), labels)
		m.collector.RecordCounter("reputation_lookups_total", 1, labels)
	}

	return profile, err
}
