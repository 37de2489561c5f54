package mcts

import "alphazero/game"

// Prior is one entry of a policy distribution restricted to legal actions.
type Prior struct {
	Action int
	Prob   float64
}

// Evaluator supplies leaf estimates for the search: a per-player value
// vector and a prior distribution over the state's legal actions.
//
// Implementations must be safe for concurrent ValueAndPrior calls; search
// workers share one evaluator.
type Evaluator interface {
	ValueAndPrior(state game.State) (value []float64, prior []Prior, err error)
}
