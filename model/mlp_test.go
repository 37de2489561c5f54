package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"alphazero/alphazero"
	"alphazero/game"
	"alphazero/replay"
)

// fixedState is a position stub with a constant observation and legal set.
type fixedState struct {
	obs   []float32
	legal []int
	mask  []bool
}

func (s *fixedState) CurrentPlayer() int           { return 0 }
func (s *fixedState) IsTerminal() bool             { return false }
func (s *fixedState) LegalActions() []int          { return s.legal }
func (s *fixedState) LegalActionsMask() []bool     { return s.mask }
func (s *fixedState) ApplyAction(action int)       {}
func (s *fixedState) ObservationTensor() []float32 { return s.obs }
func (s *fixedState) Rewards() []float64           { return []float64{0, 0} }
func (s *fixedState) Clone() game.State {
	clone := *s
	return &clone
}

func smallMLP(seed int64) *MLP {
	return NewMLP(4, 3, Config{HiddenLayers: 1, HiddenSize: 8, Seed: seed})
}

func TestValueAndPriorShapes(t *testing.T) {
	m := smallMLP(1)
	state := &fixedState{
		obs:   []float32{1, 0, 0.5, -1},
		legal: []int{0, 2},
		mask:  []bool{true, false, true},
	}

	value, priors, err := m.ValueAndPrior(state)
	require.NoError(t, err)

	require.Len(t, value, 2)
	require.Equal(t, value[0], -value[1], "two-player value vector is antisymmetric")
	require.LessOrEqual(t, value[0], 1.0)
	require.GreaterOrEqual(t, value[0], -1.0)

	require.Len(t, priors, 2)
	sum := 0.0
	for _, p := range priors {
		require.Contains(t, state.legal, p.Action)
		require.Greater(t, p.Prob, 0.0)
		sum += p.Prob
	}
	require.InDelta(t, 1.0, sum, 1e-9, "priors renormalize over legal actions only")
}

func TestValueAndPriorRejectsWrongObservationSize(t *testing.T) {
	m := smallMLP(1)
	state := &fixedState{
		obs:   []float32{1, 2},
		legal: []int{0},
		mask:  []bool{true, false, false},
	}
	_, _, err := m.ValueAndPrior(state)
	require.Error(t, err)
}

func trainingBatch() []replay.Transition {
	return []replay.Transition{
		{Observation: []float32{1, 0, 0, 0}, TargetPolicy: []float32{1, 0, 0}, TargetValue: 1},
		{Observation: []float32{0, 1, 0, 0}, TargetPolicy: []float32{0, 1, 0}, TargetValue: -1},
		{Observation: []float32{0, 0, 1, 0}, TargetPolicy: []float32{0, 0, 1}, TargetValue: 1},
		{Observation: []float32{0, 0, 0, 1}, TargetPolicy: []float32{0.5, 0.5, 0}, TargetValue: 0},
	}
}

func TestUpdateLossComposition(t *testing.T) {
	m := smallMLP(2)
	report, err := m.Update(trainingBatch())
	require.NoError(t, err)

	require.NoError(t, report.Check())
	require.Greater(t, report.Policy, 0.0)
	require.Greater(t, report.Value, 0.0)
	require.Greater(t, report.L2, 0.0)
	require.InDelta(t, report.Total, report.Policy+report.Value+report.L2, alphazero.LossTolerance)
}

func TestUpdateLearns(t *testing.T) {
	m := smallMLP(3)
	batch := trainingBatch()

	first, err := m.Update(batch)
	require.NoError(t, err)

	var last alphazero.LossReport
	for i := 0; i < 200; i++ {
		last, err = m.Update(batch)
		require.NoError(t, err)
	}
	require.Less(t, last.Total, first.Total, "repeated updates on a fixed batch must reduce loss")
	require.Less(t, last.Policy, first.Policy)
	require.Less(t, last.Value, first.Value)
}

func TestUpdateRejectsEmptyBatch(t *testing.T) {
	m := smallMLP(4)
	_, err := m.Update(nil)
	require.Error(t, err)
}

func TestWeightsRoundTrip(t *testing.T) {
	m := smallMLP(5)
	// Move off the random init so the snapshot is not trivially fresh.
	_, err := m.Update(trainingBatch())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, m.Save(path))

	loaded := smallMLP(99)
	require.NoError(t, loaded.Load(path))

	state := &fixedState{
		obs:   []float32{0.5, -0.5, 1, 0},
		legal: []int{0, 1, 2},
		mask:  []bool{true, true, true},
	}
	wantValue, wantPriors, err := m.ValueAndPrior(state)
	require.NoError(t, err)
	gotValue, gotPriors, err := loaded.ValueAndPrior(state)
	require.NoError(t, err)

	require.Equal(t, wantValue, gotValue)
	require.Equal(t, wantPriors, gotPriors)
}

func TestSetWeightsRejectsShapeMismatch(t *testing.T) {
	m := smallMLP(6)

	other := NewMLP(5, 3, Config{HiddenLayers: 1, HiddenSize: 8, Seed: 7})
	require.Error(t, m.SetWeights(other.Weights()), "input size differs")

	deeper := NewMLP(4, 3, Config{HiddenLayers: 2, HiddenSize: 8, Seed: 7})
	require.Error(t, m.SetWeights(deeper.Weights()), "hidden depth differs")
}
