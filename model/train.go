package model

import (
	"fmt"
	"math"

	"alphazero/alphazero"
	"alphazero/replay"
)

type gradients struct {
	hidden []*dense
	policy *dense
	value  *dense
}

func zeroLike(layer *dense) *dense {
	g := &dense{
		w: make([][]float64, len(layer.w)),
		b: make([]float64, len(layer.b)),
	}
	for i := range g.w {
		g.w[i] = make([]float64, len(layer.w[i]))
	}
	return g
}

func (m *MLP) newGradients() *gradients {
	g := &gradients{
		policy: zeroLike(m.policy),
		value:  zeroLike(m.value),
	}
	for _, layer := range m.hidden {
		g.hidden = append(g.hidden, zeroLike(layer))
	}
	return g
}

// Update stacks the batch, computes the three-part loss against the fixed
// targets and applies one momentum-SGD step against their sum.
//
//	value loss  = mean squared error of the tanh value head
//	policy loss = mean softmax cross-entropy of the policy logits
//	l2 loss     = l2 coefficient * sum of squared parameters
func (m *MLP) Update(batch []replay.Transition) (alphazero.LossReport, error) {
	if len(batch) == 0 {
		return alphazero.LossReport{}, fmt.Errorf("empty training batch")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	grads := m.newGradients()
	batchSize := float64(len(batch))
	valueLoss := 0.0
	policyLoss := 0.0

	for _, t := range batch {
		if len(t.Observation) != m.inputSize {
			return alphazero.LossReport{}, fmt.Errorf("observation size %d does not match input size %d", len(t.Observation), m.inputSize)
		}
		if len(t.TargetPolicy) != m.numActions {
			return alphazero.LossReport{}, fmt.Errorf("target policy size %d does not match action space %d", len(t.TargetPolicy), m.numActions)
		}

		input := make([]float64, len(t.Observation))
		for i, v := range t.Observation {
			input[i] = float64(v)
		}
		hiddens, logits, value := m.forward(input)

		diff := value - t.TargetValue
		valueLoss += diff * diff

		probs := fullSoftmax(logits)
		dlogits := make([]float64, len(logits))
		for j, p := range probs {
			target := float64(t.TargetPolicy[j])
			if target > 0 {
				policyLoss -= target * math.Log(p)
			}
			dlogits[j] = (p - target) / batchSize
		}

		dvalue := 2 * diff / batchSize
		dz := dvalue * (1 - value*value)
		m.backward(hiddens, dlogits, dz, grads)
	}

	valueLoss /= batchSize
	policyLoss /= batchSize
	l2Loss := m.step(grads)
	total := valueLoss + policyLoss + l2Loss

	return alphazero.LossReport{
		Total:  total,
		Policy: policyLoss,
		Value:  valueLoss,
		L2:     l2Loss,
	}, nil
}

// backward accumulates one example's parameter gradients.
func (m *MLP) backward(hiddens [][]float64, dlogits []float64, dz float64, g *gradients) {
	last := hiddens[len(hiddens)-1]

	dh := make([]float64, len(last))
	for i, d := range dlogits {
		g.policy.b[i] += d
		row := m.policy.w[i]
		grow := g.policy.w[i]
		for j, h := range last {
			grow[j] += d * h
			dh[j] += row[j] * d
		}
	}
	g.value.b[0] += dz
	for j, h := range last {
		g.value.w[0][j] += dz * h
		dh[j] += m.value.w[0][j] * dz
	}

	for k := len(m.hidden) - 1; k >= 0; k-- {
		out := hiddens[k+1]
		in := hiddens[k]
		layer := m.hidden[k]
		grad := g.hidden[k]

		// relu gate
		for i := range dh {
			if out[i] <= 0 {
				dh[i] = 0
			}
		}

		next := make([]float64, len(in))
		for i, d := range dh {
			if d == 0 {
				continue
			}
			grad.b[i] += d
			row := layer.w[i]
			grow := grad.w[i]
			for j, h := range in {
				grow[j] += d * h
				next[j] += row[j] * d
			}
		}
		dh = next
	}
}

// step applies one momentum-SGD update including the L2 penalty gradient,
// and returns the L2 loss at the pre-update parameters.
func (m *MLP) step(g *gradients) float64 {
	sumSquares := 0.0
	layers := make([]*dense, 0, len(m.hidden)+2)
	grads := make([]*dense, 0, len(m.hidden)+2)
	for i, layer := range m.hidden {
		layers = append(layers, layer)
		grads = append(grads, g.hidden[i])
	}
	layers = append(layers, m.policy, m.value)
	grads = append(grads, g.policy, g.value)

	lr := m.cfg.LearningRate
	momentum := m.cfg.Momentum
	l2 := m.cfg.L2

	for li, layer := range layers {
		grad := grads[li]
		for i := range layer.w {
			for j := range layer.w[i] {
				w := layer.w[i][j]
				sumSquares += w * w
				gr := grad.w[i][j] + 2*l2*w
				layer.vw[i][j] = momentum*layer.vw[i][j] + gr
				layer.w[i][j] -= lr * layer.vw[i][j]
			}
			b := layer.b[i]
			sumSquares += b * b
			gr := grad.b[i] + 2*l2*b
			layer.vb[i] = momentum*layer.vb[i] + gr
			layer.b[i] -= lr * layer.vb[i]
		}
	}
	return l2 * sumSquares
}

func fullSoftmax(logits []float64) []float64 {
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
