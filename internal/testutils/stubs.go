// Package testutils provides deterministic service stubs for engine and
// unit tests.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.ReputationService = (*ReputationStub)(nil)

// ReputationStub resolves weights from a fixed table. Unknown users get
// neutral weights, matching the degradation contract of the real client.
type ReputationStub struct {
	mu sync.Mutex

	// Weights maps user IDs to the weights to return, pre-clamp.
	Weights map[string]domain.ReputationWeights

	// Degraded lists user IDs whose lookups report degradation.
	Degraded map[string]bool

	calls int
}

// NewReputationStub creates a stub with the given per-user weights.
func NewReputationStub(weights map[string]domain.ReputationWeights) *ReputationStub {
	return &ReputationStub{Weights: weights, Degraded: make(map[string]bool)}
}

// Resolve returns the configured weights clamped to [floor, cap], or
// neutral weights for unknown users.
func (s *ReputationStub) Resolve(_ context.Context, userID, _ string, floor, cap float64) domain.ReputationWeights {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	w, ok := s.Weights[userID]
	if !ok {
		w = domain.ReputationWeights{
			Reputation: domain.NeutralWeight,
			Ethical:    domain.NeutralWeight,
		}
	}
	w.Reputation = domain.Clamp(w.Reputation, floor, cap)
	w.Ethical = domain.Clamp(w.Ethical, floor, cap)
	w.Degraded = w.Degraded || s.Degraded[userID]
	return w
}

// Calls returns how many lookups the stub served.
func (s *ReputationStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ ports.ModerationService = (*ModerationStub)(nil)

// ModerationStub serves report counts from a fixed table.
type ModerationStub struct {
	mu sync.Mutex

	// Reports maps content IDs to open report counts. Missing IDs report
	// zero.
	Reports map[string]int

	// Err, when set, fails every lookup.
	Err error
}

// NewModerationStub creates a stub with the given report counts.
func NewModerationStub(reports map[string]int) *ModerationStub {
	return &ModerationStub{Reports: reports}
}

// ReportCount returns the configured count for the content item.
func (s *ModerationStub) ReportCount(_ context.Context, contentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Reports[contentID], nil
}

// SetReports replaces the report count for a content item.
func (s *ModerationStub) SetReports(contentID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reports == nil {
		s.Reports = make(map[string]int)
	}
	s.Reports[contentID] = count
}

// ManualClock is a settable clock for tests that need time to pass between
// operations without sleeping.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current clock value.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new value.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// UniformWeights builds a weight table giving every listed user the same
// reputation and ethical factors.
func UniformWeights(rep, eth float64, users ...string) map[string]domain.ReputationWeights {
	weights := make(map[string]domain.ReputationWeights, len(users))
	for _, u := range users {
		weights[u] = domain.ReputationWeights{Reputation: rep, Ethical: eth, Expertise: rep}
	}
	return weights
}
