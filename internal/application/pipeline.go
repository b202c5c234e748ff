// Package application wires the aggregation pipeline, the recomputation
// scheduler, and the engine's public operations together.
package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rejean-McCormick/konsensus/infrastructure/units"
	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/ports"
)

// Pipeline is a sequential execution container that processes executables
// in strict order, where each executable's output state becomes the input
// for the next.
type Pipeline struct {
	// id is the unique identifier for this pipeline, used in error
	// messages and logging.
	id string
	// executables contains the ordered stages.
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	// mu provides thread-safe access to the executables slice.
	mu sync.RWMutex
}

// NewPipeline creates an empty sequential pipeline with the specified
// identifier.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute runs all stages in order, passing state from each to the next.
// It respects context cancellation between stages and wraps stage failures
// with the failing stage's ID.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	currentState := state
	for _, exec := range executables {
		select {
		case <-ctx.Done():
			return currentState, ctx.Err()
		default:
			newState, err := exec.Execute(ctx, currentState)
			if err != nil {
				return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
			}
			currentState = newState
		}
	}

	return currentState, nil
}

// ID returns the pipeline's identifier.
func (p *Pipeline) ID() string { return p.id }

// Add appends an executable to the pipeline. It returns an error for nil
// executables and duplicate IDs.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// UnitAdapter wraps a ports.Unit to implement ports.Executable so units can
// participate in pipelines.
type UnitAdapter struct {
	unit ports.Unit
	id   string
}

// NewUnitAdapter wraps a unit under the given pipeline-scoped ID.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id}
}

// Execute delegates to the underlying unit.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the adapter's identifier.
func (ua *UnitAdapter) ID() string { return ua.id }

// pipelineSet holds the pre-built stage units shared by every run. All
// units are stateless, so one set serves concurrent topics.
type pipelineSet struct {
	moderationGate *units.ModerationGateUnit
	compose        *units.ComposeUnit
	weightedMean   *units.WeightedMeanUnit
	condorcet      *units.CondorcetUnit
	thresholdGate  *units.ThresholdGateUnit
	classifier     *units.ClassifierUnit
}

func newPipelineSet(reputation ports.ReputationService, moderation ports.ModerationService, cfg PipelineConfig) (*pipelineSet, error) {
	gate, err := units.NewModerationGateUnit("moderation_gate", moderation)
	if err != nil {
		return nil, err
	}
	compose, err := units.NewComposeUnit("compose", reputation, units.ComposeConfig{
		MaxConcurrency: cfg.MaxConcurrency,
	})
	if err != nil {
		return nil, err
	}
	mean, err := units.NewWeightedMeanUnit("weighted_mean", units.DefaultWeightedMeanConfig())
	if err != nil {
		return nil, err
	}
	condorcetCfg := units.DefaultCondorcetConfig()
	if cfg.CollationTag != "" {
		condorcetCfg.CollationTag = cfg.CollationTag
	}
	condorcet, err := units.NewCondorcetUnit("condorcet", condorcetCfg)
	if err != nil {
		return nil, err
	}
	threshold, err := units.NewThresholdGateUnit("threshold_gate")
	if err != nil {
		return nil, err
	}
	classifier, err := units.NewClassifierUnit("classifier")
	if err != nil {
		return nil, err
	}

	set := &pipelineSet{
		moderationGate: gate,
		compose:        compose,
		weightedMean:   mean,
		condorcet:      condorcet,
		thresholdGate:  threshold,
		classifier:     classifier,
	}
	for _, u := range []ports.Unit{gate, compose, mean, condorcet, threshold, classifier} {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("unit %s: %w", u.Name(), err)
		}
	}
	return set, nil
}

// aggregator selects the aggregation stage for a modality.
func (s *pipelineSet) aggregator(modality domain.Modality) ports.Unit {
	if modality.UsesRanking() {
		return s.condorcet
	}
	return s.weightedMean
}

// aggregatePipeline builds the tail of a run: aggregation, threshold
// gating, and classification. Moderation filtering and weight composition
// run once per recomputation before the cohorts fan out, so both cohorts
// (and the audit log) see the same resolved weights; this pipeline then
// executes per cohort over the cohort-filtered votes. The replay path runs
// the identical pipeline over logged votes.
func (s *pipelineSet) aggregatePipeline(modality domain.Modality, id string) (*Pipeline, error) {
	p := NewPipeline(id)
	for _, u := range []ports.Unit{s.aggregator(modality), s.thresholdGate, s.classifier} {
		if err := p.Add(NewUnitAdapter(u, u.Name())); err != nil {
			return nil, err
		}
	}
	return p, nil
}
