// Package model provides a trainable MLP evaluator with a tanh value head
// and a policy logit head. It is the reference implementation of the
// evaluator contract; anything honoring the same loss composition is
// substitutable for it.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"alphazero/alphazero"
	"alphazero/game"
	"alphazero/mcts"
)

// Config tunes the network and its optimizer. Defaults follow the usual
// AlphaZero MLP baseline: two hidden layers of 128 relu units, momentum
// SGD at 2e-2, L2 penalty 1e-4.
type Config struct {
	HiddenLayers int
	HiddenSize   int
	LearningRate float64
	Momentum     float64
	L2           float64
	Seed         int64
}

func (c *Config) applyDefaults() {
	if c.HiddenLayers <= 0 {
		c.HiddenLayers = 2
	}
	if c.HiddenSize <= 0 {
		c.HiddenSize = 128
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 2e-2
	}
	if c.Momentum < 0 {
		c.Momentum = 0
	} else if c.Momentum == 0 {
		c.Momentum = 0.9
	}
	if c.L2 <= 0 {
		c.L2 = 1e-4
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// dense is one fully connected layer with momentum accumulators.
type dense struct {
	w  [][]float64 // [out][in]
	b  []float64
	vw [][]float64
	vb []float64
}

func newDense(in, out int, rng *rand.Rand) *dense {
	// he-uniform
	limit := math.Sqrt(6 / float64(in))
	d := &dense{
		w:  make([][]float64, out),
		b:  make([]float64, out),
		vw: make([][]float64, out),
		vb: make([]float64, out),
	}
	for i := range d.w {
		d.w[i] = make([]float64, in)
		d.vw[i] = make([]float64, in)
		for j := range d.w[i] {
			d.w[i][j] = (rng.Float64()*2 - 1) * limit
		}
	}
	return d
}

func (d *dense) forward(in []float64) []float64 {
	out := make([]float64, len(d.w))
	for i, row := range d.w {
		sum := d.b[i]
		for j, w := range row {
			sum += w * in[j]
		}
		out[i] = sum
	}
	return out
}

// MLP is a multilayer perceptron evaluator. Update is the sole writer of
// parameters and is serialized against ValueAndPrior reads.
type MLP struct {
	mu         sync.RWMutex
	cfg        Config
	inputSize  int
	numActions int
	hidden     []*dense
	policy     *dense
	value      *dense
}

var _ alphazero.TrainableEvaluator = (*MLP)(nil)

// NewMLP builds a randomly initialized network mapping inputSize features
// to numActions policy logits and a scalar tanh value.
func NewMLP(inputSize, numActions int, cfg Config) *MLP {
	cfg.applyDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &MLP{
		cfg:        cfg,
		inputSize:  inputSize,
		numActions: numActions,
	}
	in := inputSize
	for i := 0; i < cfg.HiddenLayers; i++ {
		m.hidden = append(m.hidden, newDense(in, cfg.HiddenSize, rng))
		in = cfg.HiddenSize
	}
	m.policy = newDense(in, numActions, rng)
	m.value = newDense(in, 1, rng)
	return m
}

// forward returns the hidden activations per layer (post-relu), the policy
// logits, and the tanh value. Callers must hold at least a read lock.
func (m *MLP) forward(input []float64) (hiddens [][]float64, logits []float64, value float64) {
	h := input
	hiddens = make([][]float64, 0, len(m.hidden)+1)
	hiddens = append(hiddens, h)
	for _, layer := range m.hidden {
		h = layer.forward(h)
		for i, v := range h {
			if v < 0 {
				h[i] = 0
			}
		}
		hiddens = append(hiddens, h)
	}
	logits = m.policy.forward(h)
	value = math.Tanh(m.value.forward(h)[0])
	return hiddens, logits, value
}

// ValueAndPrior evaluates a state: the policy logits are renormalized with
// a masked softmax over the state's legal actions, and the scalar value is
// expanded to the antisymmetric two-player vector [v, -v].
func (m *MLP) ValueAndPrior(state game.State) ([]float64, []mcts.Prior, error) {
	obs := state.ObservationTensor()
	if len(obs) != m.inputSize {
		return nil, nil, fmt.Errorf("observation size %d does not match input size %d", len(obs), m.inputSize)
	}
	input := make([]float64, len(obs))
	for i, v := range obs {
		input[i] = float64(v)
	}

	m.mu.RLock()
	_, logits, value := m.forward(input)
	m.mu.RUnlock()

	mask := state.LegalActionsMask()
	if len(mask) != m.numActions {
		return nil, nil, fmt.Errorf("legal actions mask size %d does not match action space %d", len(mask), m.numActions)
	}
	probs := maskedSoftmax(logits, mask)

	legal := state.LegalActions()
	priors := make([]mcts.Prior, 0, len(legal))
	for _, action := range legal {
		priors = append(priors, mcts.Prior{Action: action, Prob: probs[action]})
	}
	return []float64{value, -value}, priors, nil
}

// maskedSoftmax normalizes logits over the allowed entries only; masked
// entries get exactly zero mass and do not enter the denominator.
func maskedSoftmax(logits []float64, mask []bool) []float64 {
	maxLogit := math.Inf(-1)
	for i, ok := range mask {
		if ok && logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, ok := range mask {
		if ok {
			probs[i] = math.Exp(logits[i] - maxLogit)
			sum += probs[i]
		}
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
