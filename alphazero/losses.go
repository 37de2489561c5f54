package alphazero

import (
	"fmt"
	"math"

	"alphazero/mcts"
	"alphazero/replay"
)

// LossTolerance is the absolute slack allowed between Total and the sum of
// its parts.
const LossTolerance = 1e-6

// LossReport is the structured loss breakdown returned by a training
// update. Total is the sum of the three components.
type LossReport struct {
	Total  float64
	Policy float64
	Value  float64
	L2     float64
}

// Check verifies the Total == Policy + Value + L2 invariant.
func (l LossReport) Check() error {
	if diff := math.Abs(l.Total - (l.Policy + l.Value + l.L2)); diff > LossTolerance {
		return fmt.Errorf("loss report out of balance by %g: %+v", diff, l)
	}
	return nil
}

func (l LossReport) String() string {
	return fmt.Sprintf("total=%.6f policy=%.6f value=%.6f l2=%.6f", l.Total, l.Policy, l.Value, l.L2)
}

// TrainableEvaluator is the capability bridging search and training: it
// scores states for the searcher and consumes sampled batches to update
// itself. Any differentiable model honoring the loss composition contract
// is substitutable.
type TrainableEvaluator interface {
	mcts.Evaluator

	// Update applies one gradient step against the batch and reports the
	// resulting losses: value MSE + policy cross-entropy + L2 penalty.
	Update(batch []replay.Transition) (LossReport, error)
}
