package mcts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"alphazero/game"
)

// pickGame is a one-ply game with two actions: action 0 wins for player 0,
// action 1 loses.
type pickGame struct{}

func (pickGame) NewInitialState() game.State { return &pickState{} }
func (pickGame) NumDistinctActions() int     { return 2 }
func (pickGame) NumPlayers() int             { return 2 }
func (pickGame) Type() game.Type             { return game.Type{} }

type pickState struct {
	done   bool
	picked int
}

func (s *pickState) CurrentPlayer() int { return 0 }
func (s *pickState) IsTerminal() bool   { return s.done }
func (s *pickState) LegalActions() []int {
	if s.done {
		return nil
	}
	return []int{0, 1}
}
func (s *pickState) LegalActionsMask() []bool { return []bool{!s.done, !s.done} }
func (s *pickState) ApplyAction(action int)   { s.done = true; s.picked = action }
func (s *pickState) ObservationTensor() []float32 {
	if s.done {
		return []float32{0}
	}
	return []float32{1}
}
func (s *pickState) Rewards() []float64 {
	if s.picked == 0 {
		return []float64{1, -1}
	}
	return []float64{-1, 1}
}
func (s *pickState) Clone() game.State {
	clone := *s
	return &clone
}

// uniformEvaluator returns equal priors and zero value.
type uniformEvaluator struct{}

func (uniformEvaluator) ValueAndPrior(state game.State) ([]float64, []Prior, error) {
	legal := state.LegalActions()
	priors := make([]Prior, 0, len(legal))
	p := 1 / float64(len(legal))
	for _, a := range legal {
		priors = append(priors, Prior{Action: a, Prob: p})
	}
	return []float64{0, 0}, priors, nil
}

func TestSearchExpandsRootAndVisitsChildren(t *testing.T) {
	s := NewSearcher(uniformEvaluator{}, 32)
	tree, err := s.Search(context.Background(), pickGame{}.NewInitialState())
	require.NoError(t, err)

	root := tree.Root()
	require.Equal(t, 32, root.ExploreCount)

	children := tree.RootChildren()
	require.Len(t, children, 2)

	totalChildVisits := 0
	for _, child := range children {
		totalChildVisits += child.ExploreCount
	}
	require.Equal(t, 31, totalChildVisits, "every simulation after root expansion visits a child")
}

func TestSearchSolvesTerminalChildren(t *testing.T) {
	s := NewSearcher(uniformEvaluator{}, 64)
	tree, err := s.Search(context.Background(), pickGame{}.NewInitialState())
	require.NoError(t, err)

	var winner *Node
	for _, child := range tree.RootChildren() {
		if child.Action == 0 {
			winner = child
		}
		require.NotNil(t, child.Outcome, "one-ply children resolve to terminal outcomes")
	}
	require.Equal(t, []float64{1, -1}, winner.Outcome)

	// The solved win scores 1.0 for player 0, so search piles visits on it.
	var loser *Node
	for _, child := range tree.RootChildren() {
		if child.Action == 1 {
			loser = child
		}
	}
	require.Greater(t, winner.ExploreCount, loser.ExploreCount)
}

func TestSearchRunsMinimumTwoSimulations(t *testing.T) {
	s := NewSearcher(uniformEvaluator{}, 0)
	tree, err := s.Search(context.Background(), pickGame{}.NewInitialState())
	require.NoError(t, err)

	children := tree.RootChildren()
	require.NotEmpty(t, children)
	visited := 0
	for _, child := range children {
		visited += child.ExploreCount
	}
	require.GreaterOrEqual(t, visited, 1, "root always has a visited child after search")
}

func TestSearchHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSearcher(uniformEvaluator{}, 100)
	_, err := s.Search(ctx, pickGame{}.NewInitialState())
	require.ErrorIs(t, err, context.Canceled)
}
