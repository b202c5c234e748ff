package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// RecomputeFunc performs one recomputation for a topic. The trigger names
// the event that requested it.
type RecomputeFunc func(ctx context.Context, topicID, trigger string) error

// Scheduler batches recomputation requests. If fifty stances hit topic X
// inside one window, the topic is recomputed once. Requests for the same
// topic are coalesced; the first trigger of a window wins, since the
// recomputation reads current state regardless of which event asked for it.
type Scheduler struct {
	recompute RecomputeFunc
	window    time.Duration
	metrics   ports.MetricsCollector
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]string // topic ID -> trigger waiting for recomputation

	flushMu sync.Mutex // serializes flush batches across callers
}

// NewScheduler creates a recomputation scheduler. A zero window selects a
// one second default.
func NewScheduler(recompute RecomputeFunc, window time.Duration, metrics ports.MetricsCollector, logger zerolog.Logger) *Scheduler {
	if window <= 0 {
		window = time.Second
	}
	return &Scheduler{
		recompute: recompute,
		window:    window,
		metrics:   metrics,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		pending:   make(map[string]string),
	}
}

// Request queues a recomputation for the topic. Safe for concurrent use.
func (s *Scheduler) Request(topicID, trigger string) {
	s.mu.Lock()
	if _, queued := s.pending[topicID]; !queued {
		s.pending[topicID] = trigger
	}
	depth := len(s.pending)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordGauge("pending_recomputations", float64(depth), nil)
	}
}

// Start runs the flush loop until ctx is cancelled, then performs a final
// drain so no queued request is lost on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("window", s.window).Msg("scheduler starting")

	ticker := time.NewTicker(s.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-ctx.Done():
			s.flush(context.Background())
			s.logger.Info().Msg("scheduler stopped")
			return
		}
	}
}

// Flush drains the pending set immediately, blocking until the drained
// batch finishes. Used by tests and by callers that need results before
// the next tick; safe to call while Start is running.
func (s *Scheduler) Flush(ctx context.Context) {
	s.flush(ctx)
}

// flush swaps out the pending map and recomputes each drained topic on the
// calling goroutine. Batches serialize on flushMu, so a direct Flush
// overlapping a ticker flush waits its turn and no topic is ever
// recomputed concurrently with itself.
func (s *Scheduler) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.pending
	s.pending = make(map[string]string)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordGauge("pending_recomputations", 0, nil)
	}

	for topicID, trigger := range batch {
		if err := s.recompute(ctx, topicID, trigger); err != nil {
			// A superseded run is the normal last-computed-wins outcome,
			// not a failure.
			if errors.Is(err, domain.ErrSuperseded) {
				s.logger.Debug().
					Str("topic", topicID).
					Str("trigger", trigger).
					Msg("recomputation superseded")
				continue
			}
			s.logger.Error().Err(err).
				Str("topic", topicID).
				Str("trigger", trigger).
				Msg("recomputation failed")
		}
	}
	s.logger.Debug().Int("topics", len(batch)).Msg("batch complete")
}
