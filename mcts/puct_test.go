package mcts

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreDeterministic(t *testing.T) {
	child := &Node{Action: 3, Player: 0, Prior: 0.4, ExploreCount: 7, TotalReward: 2.5}
	first := Score(child, 100, DefaultCInit, DefaultCBase)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Score(child, 100, DefaultCInit, DefaultCBase),
			"identical inputs must give the identical float")
	}
}

func TestScoreTerminalOutcomeBypassesExploration(t *testing.T) {
	child := &Node{
		Action:       1,
		Player:       1,
		Prior:        0.9,
		ExploreCount: 1000,
		TotalReward:  -500,
		Outcome:      []float64{-1, 1},
	}
	// prior, explore count and total reward are all ignored.
	require.Equal(t, 1.0, Score(child, 50, DefaultCInit, DefaultCBase))
	require.Equal(t, 1.0, Score(child, 0, 99, 1))
}

func TestScoreUnvisitedChildHasZeroExploitation(t *testing.T) {
	child := &Node{Action: 0, Player: 0, Prior: 0, ExploreCount: 0, TotalReward: 123}

	// With a zero prior the prior term vanishes too, so the whole score is
	// the exploitation term, which must be exactly zero despite the reward.
	require.Equal(t, 0.0, Score(child, 10, DefaultCInit, DefaultCBase))
}

func TestScoreFormula(t *testing.T) {
	child := &Node{Action: 0, Player: 0, Prior: 0.5, ExploreCount: 4, TotalReward: 2}
	parentN := 16
	cInit := 1.25
	cBase := 19652.0

	c := math.Log((16+cBase+1)/cBase) + cInit
	c *= math.Sqrt(16) / 5
	want := c*0.5 + 2.0/4

	require.InDelta(t, want, Score(child, parentN, cInit, cBase), 1e-12)
}

func TestScorePrefersSolvedWin(t *testing.T) {
	solved := &Node{Action: 0, Player: 0, Outcome: []float64{1, -1}}
	busy := &Node{Action: 1, Player: 0, Prior: 0.99, ExploreCount: 500, TotalReward: 400}

	n := 501
	require.Greater(t, Score(solved, n, DefaultCInit, DefaultCBase),
		Score(busy, n, DefaultCInit, DefaultCBase),
		"a solved win must dominate value-driven selection")
}
