package mcts

import (
	"context"
	"fmt"
	"math"

	"alphazero/game"
)

// Searcher runs PUCT-guided Monte Carlo tree search over a game state.
type Searcher struct {
	Evaluator   Evaluator
	Simulations int
	CInit       float64
	CBase       float64
}

// NewSearcher returns a searcher with the default exploration constants.
func NewSearcher(evaluator Evaluator, simulations int) *Searcher {
	return &Searcher{
		Evaluator:   evaluator,
		Simulations: simulations,
		CInit:       DefaultCInit,
		CBase:       DefaultCBase,
	}
}

// Search builds a fresh tree rooted at state and runs the configured number
// of simulations. At least two simulations always run so the root has a
// visited child. The partial tree is returned alongside the error when the
// context is cancelled mid-search.
func (s *Searcher) Search(ctx context.Context, state game.State) (*Tree, error) {
	simulations := s.Simulations
	if simulations < 2 {
		simulations = 2
	}

	t := newTree()
	for i := 0; i < simulations; i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return t, ctx.Err()
			default:
			}
		}
		if err := s.simulate(t, state); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *Searcher) simulate(t *Tree, rootState game.State) error {
	state := rootState.Clone()
	path := []int{0}
	current := 0

	// Selection: descend to an unexpanded or resolved node.
	for {
		node := t.Node(current)
		if len(node.Children) == 0 || node.Outcome != nil {
			break
		}

		best := -1
		bestScore := math.Inf(-1)
		for _, idx := range node.Children {
			score := Score(t.Node(idx), node.ExploreCount, s.CInit, s.CBase)
			if score > bestScore {
				best = idx
				bestScore = score
			}
		}

		current = best
		state.ApplyAction(t.Node(best).Action)
		path = append(path, best)
	}

	// Expansion and evaluation.
	var value []float64
	leaf := t.Node(current)
	switch {
	case leaf.Outcome != nil:
		value = leaf.Outcome
	case state.IsTerminal():
		value = append([]float64(nil), state.Rewards()...)
		leaf.Outcome = value
	default:
		v, priors, err := s.Evaluator.ValueAndPrior(state)
		if err != nil {
			return fmt.Errorf("evaluate leaf: %w", err)
		}
		value = v

		player := state.CurrentPlayer()
		children := make([]int, 0, len(priors))
		for _, p := range priors {
			children = append(children, t.add(Node{
				Action: p.Action,
				Player: player,
				Prior:  p.Prob,
			}))
		}
		// The arena may have been reallocated by add; re-resolve the leaf.
		t.Node(current).Children = children
	}

	// Backpropagation.
	for _, idx := range path {
		node := t.Node(idx)
		node.ExploreCount++
		if node.Player >= 0 && node.Player < len(value) {
			node.TotalReward += value[node.Player]
		}
	}
	return nil
}
