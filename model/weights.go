package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// LayerWeights is the serialized form of one dense layer.
type LayerWeights struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
}

// Weights is a JSON-serializable snapshot of the network parameters.
// Momentum accumulators are not part of the snapshot.
type Weights struct {
	InputSize  int            `json:"input_size"`
	NumActions int            `json:"num_actions"`
	Hidden     []LayerWeights `json:"hidden"`
	Policy     LayerWeights   `json:"policy"`
	Value      LayerWeights   `json:"value"`
}

func snapshot(layer *dense) LayerWeights {
	lw := LayerWeights{
		W: make([][]float64, len(layer.w)),
		B: append([]float64(nil), layer.b...),
	}
	for i, row := range layer.w {
		lw.W[i] = append([]float64(nil), row...)
	}
	return lw
}

func restore(layer *dense, lw LayerWeights) error {
	if len(lw.W) != len(layer.w) || len(lw.B) != len(layer.b) {
		return fmt.Errorf("layer shape mismatch: got %dx%d weights", len(lw.W), len(lw.B))
	}
	for i, row := range lw.W {
		if len(row) != len(layer.w[i]) {
			return fmt.Errorf("layer row %d width mismatch: got %d want %d", i, len(row), len(layer.w[i]))
		}
		copy(layer.w[i], row)
		for j := range layer.vw[i] {
			layer.vw[i][j] = 0
		}
	}
	copy(layer.b, lw.B)
	for i := range layer.vb {
		layer.vb[i] = 0
	}
	return nil
}

// Weights returns a deep copy of the current parameters.
func (m *MLP) Weights() Weights {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w := Weights{
		InputSize:  m.inputSize,
		NumActions: m.numActions,
		Policy:     snapshot(m.policy),
		Value:      snapshot(m.value),
	}
	for _, layer := range m.hidden {
		w.Hidden = append(w.Hidden, snapshot(layer))
	}
	return w
}

// SetWeights replaces the parameters and resets optimizer state. The
// snapshot must match the network's shape.
func (m *MLP) SetWeights(w Weights) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.InputSize != m.inputSize || w.NumActions != m.numActions {
		return fmt.Errorf("weights are for a %d->%d network, not %d->%d", w.InputSize, w.NumActions, m.inputSize, m.numActions)
	}
	if len(w.Hidden) != len(m.hidden) {
		return fmt.Errorf("weights have %d hidden layers, network has %d", len(w.Hidden), len(m.hidden))
	}
	for i, layer := range m.hidden {
		if err := restore(layer, w.Hidden[i]); err != nil {
			return fmt.Errorf("hidden layer %d: %w", i, err)
		}
	}
	if err := restore(m.policy, w.Policy); err != nil {
		return fmt.Errorf("policy head: %w", err)
	}
	if err := restore(m.value, w.Value); err != nil {
		return fmt.Errorf("value head: %w", err)
	}
	return nil
}

// Save writes the parameters as JSON.
func (m *MLP) Save(path string) error {
	data, err := json.MarshalIndent(m.Weights(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

// Load reads parameters saved by Save.
func (m *MLP) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read weights: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal weights: %w", err)
	}
	return m.SetWeights(w)
}
