package alphazero

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"alphazero/mcts"
	"alphazero/replay"
)

// playGame runs one self-play episode: every move is chosen from a fresh
// search, and each step becomes a transition once the terminal rewards are
// known.
func (a *AlphaZero) playGame(ctx context.Context, rng *rand.Rand, gameID string) error {
	state := a.game.NewInitialState()

	var observations [][]float32
	var policies [][]float32
	var movers []int

	for !state.IsTerminal() {
		tree, err := a.searcher.Search(ctx, state)
		if err != nil {
			return err
		}
		children := tree.RootChildren()

		target, err := policyTarget(children, a.numActions)
		if err != nil {
			return err
		}
		observations = append(observations, state.ObservationTensor())
		policies = append(policies, target)
		movers = append(movers, state.CurrentPlayer())

		movesPlayed := len(movers) - 1
		state.ApplyAction(a.selectAction(children, movesPlayed, rng))
	}

	rewards := state.Rewards()
	transitions := make([]replay.Transition, 0, len(observations))
	for i := range observations {
		// The reference rule assumes strict alternation by move parity; the
		// mover-aware rule is the opt-in alternative.
		player := i % a.numPlayers
		if a.moverValues {
			player = movers[i]
		}
		t := replay.Transition{
			Observation:  observations[i],
			TargetPolicy: policies[i],
			TargetValue:  rewards[player],
		}
		a.buffer.Add(t)
		transitions = append(transitions, t)
	}

	if a.sink != nil {
		if err := a.sink.WriteGame(gameID, transitions); err != nil {
			return fmt.Errorf("archive game %s: %w", gameID, err)
		}
	}
	return nil
}

// policyTarget spreads the root children's visit counts over the full
// action space and normalizes. Actions absent from the root get zero.
func policyTarget(children []*mcts.Node, numActions int) ([]float32, error) {
	target := make([]float32, numActions)
	total := 0
	for _, child := range children {
		target[child.Action] = float32(child.ExploreCount)
		total += child.ExploreCount
	}
	if total == 0 {
		return nil, fmt.Errorf("search root has no visited children")
	}
	inv := 1 / float32(total)
	for i := range target {
		target[i] *= inv
	}
	return target, nil
}

// selectAction picks the move actually played. Early in the game it samples
// from a softmax over raw visit counts; from the transition move on it is
// greedy, breaking visit-count ties toward the larger action id.
func (a *AlphaZero) selectAction(children []*mcts.Node, movesPlayed int, rng *rand.Rand) int {
	if movesPlayed < a.cfg.ActionSelectionTransition {
		counts := make([]float64, len(children))
		for i, child := range children {
			counts[i] = float64(child.ExploreCount)
		}
		return children[sampleCategorical(softmax(counts), rng)].Action
	}

	best := children[0]
	for _, child := range children[1:] {
		if child.ExploreCount > best.ExploreCount ||
			(child.ExploreCount == best.ExploreCount && child.Action > best.Action) {
			best = child
		}
	}
	return best.Action
}

// softmax is numerically stabilized by max subtraction.
func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	r := rng.Float64()
	cumulative := 0.0
	for i, p := range probs {
		cumulative += p
		if r < cumulative {
			return i
		}
	}
	return len(probs) - 1 // rounding fallback
}
