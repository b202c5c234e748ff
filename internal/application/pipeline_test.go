package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rejean-McCormick/konsensus/internal/domain"
	"github.com/Rejean-McCormick/konsensus/internal/testutils"
)

var keyTrace = domain.NewKey[[]string]("test.trace")

// traceExec appends its ID to the trace key, or fails.
type traceExec struct {
	id  string
	err error
}

func (e *traceExec) ID() string { return e.id }

func (e *traceExec) Execute(_ context.Context, state domain.State) (domain.State, error) {
	if e.err != nil {
		return state, e.err
	}
	trace, _ := domain.Get(state, keyTrace)
	return domain.With(state, keyTrace, append(trace, e.id)), nil
}

func TestPipeline_ExecutesInOrder(t *testing.T) {
	p := NewPipeline("test")
	require.NoError(t, p.Add(&traceExec{id: "first"}))
	require.NoError(t, p.Add(&traceExec{id: "second"}))
	require.NoError(t, p.Add(&traceExec{id: "third"}))

	state, err := p.Execute(context.Background(), domain.NewState())
	require.NoError(t, err)

	trace, ok := domain.Get(state, keyTrace)
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second", "third"}, trace)
}

func TestPipeline_WrapsStageFailure(t *testing.T) {
	p := NewPipeline("test")
	require.NoError(t, p.Add(&traceExec{id: "ok"}))
	require.NoError(t, p.Add(&traceExec{id: "boom", err: errors.New("stage failed")}))

	_, err := p.Execute(context.Background(), domain.NewState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "pipeline test")
}

func TestPipeline_RejectsDuplicateIDs(t *testing.T) {
	p := NewPipeline("test")
	require.NoError(t, p.Add(&traceExec{id: "stage"}))
	err := p.Add(&traceExec{id: "stage"})
	assert.Error(t, err)
}

func TestPipeline_RejectsNil(t *testing.T) {
	p := NewPipeline("test")
	assert.Error(t, p.Add(nil))
}

func TestPipeline_RespectsContextCancellation(t *testing.T) {
	p := NewPipeline("test")
	require.NoError(t, p.Add(&traceExec{id: "never"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, domain.NewState())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineSet_AggregatorSelection(t *testing.T) {
	set, err := newPipelineSet(
		testutils.NewReputationStub(nil),
		testutils.NewModerationStub(nil),
		PipelineConfig{},
	)
	require.NoError(t, err)

	assert.Equal(t, set.weightedMean.Name(), set.aggregator(domain.ModalityApproval).Name())
	assert.Equal(t, set.weightedMean.Name(), set.aggregator(domain.ModalityRating).Name())
	assert.Equal(t, set.condorcet.Name(), set.aggregator(domain.ModalityRanking).Name())
	assert.Equal(t, set.condorcet.Name(), set.aggregator(domain.ModalityPreferential).Name())
}

func TestPipelineSet_AggregatePipelineStages(t *testing.T) {
	set, err := newPipelineSet(
		testutils.NewReputationStub(nil),
		testutils.NewModerationStub(nil),
		PipelineConfig{MaxConcurrency: 4, CollationTag: "en"},
	)
	require.NoError(t, err)

	p, err := set.aggregatePipeline(domain.ModalityRating, "aggregate_all")
	require.NoError(t, err)
	assert.Equal(t, "aggregate_all", p.ID())
}
