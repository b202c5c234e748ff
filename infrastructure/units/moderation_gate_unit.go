package units

import (
	"context"
	"fmt"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

var _ ports.Unit = (*ModerationGateUnit)(nil)

// ModerationGateUnit filters out stances whose supporting argument has been
// auto-hidden by the moderation service. Exclusion is re-evaluated on every
// recomputation, so content hidden and later restored re-enters the
// aggregate on the next cycle without manual intervention.
//
// The gate reads moderation state, never writes it. A moderation lookup
// failure keeps the affected stance eligible and raises an audit flag:
// degraded moderation visibility must not silently shrink the electorate.
type ModerationGateUnit struct {
	name       string
	moderation ports.ModerationService
}

// NewModerationGateUnit creates a moderation gate backed by the given
// service. Returns ErrEmptyUnitName if name is empty.
func NewModerationGateUnit(name string, moderation ports.ModerationService) (*ModerationGateUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if moderation == nil {
		return nil, fmt.Errorf("moderation service is required")
	}
	return &ModerationGateUnit{name: name, moderation: moderation}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *ModerationGateUnit) Name() string { return u.name }

// IsEligible reports whether the content item may feed aggregation under
// the given auto-hide threshold.
func (u *ModerationGateUnit) IsEligible(ctx context.Context, contentID string, autoHide int) (bool, error) {
	reports, err := u.moderation.ReportCount(ctx, contentID)
	if err != nil {
		return true, err
	}
	return reports < autoHide, nil
}

// Execute filters KeyStances into KeyEligibleStances. Stances without an
// argument reference are always eligible; the rest are checked against the
// topic's auto-hide threshold.
func (u *ModerationGateUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	topic, ok := domain.Get(state, domain.KeyTopic)
	if !ok {
		return state, ErrMissingTopic
	}
	stances, ok := domain.Get(state, domain.KeyStances)
	if !ok {
		return state, fmt.Errorf("stances not found in state")
	}

	// Check each distinct argument once per run.
	eligibility := make(map[string]bool)
	degraded := false

	eligible := make([]domain.Stance, 0, len(stances))
	for _, s := range stances {
		if s.ArgumentID == "" {
			eligible = append(eligible, s)
			continue
		}
		ok, cached := eligibility[s.ArgumentID]
		if !cached {
			var err error
			ok, err = u.IsEligible(ctx, s.ArgumentID, topic.Config.AutoHideReports)
			if err != nil {
				if ctx.Err() != nil {
					return state, ctx.Err()
				}
				degraded = true
			}
			eligibility[s.ArgumentID] = ok
		}
		if ok {
			eligible = append(eligible, s)
		}
	}

	next := domain.With(state, domain.KeyEligibleStances, eligible)
	if degraded {
		next = next.AddAuditFlag(domain.FlagModerationLookupFailed)
	}
	return next, nil
}

// Validate verifies the unit is properly configured.
func (u *ModerationGateUnit) Validate() error {
	if u.moderation == nil {
		return fmt.Errorf("moderation service is required")
	}
	return nil
}
