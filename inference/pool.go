package inference

import (
	"fmt"
	"sync/atomic"

	"alphazero/game"
	"alphazero/mcts"
)

// Pool fans ValueAndPrior calls out across multiple Clients. Each client
// has its own batching loop and ORT session, allowing parallel execution.
//
// ORT environment initialization is process-global; Client handles that
// internally.
type Pool struct {
	clients []*Client
	rr      atomic.Uint64
}

// NewPool creates sessions clients for the same model.
func NewPool(modelPath string, sessions int, cfg Config) (*Pool, error) {
	if sessions <= 0 {
		sessions = 1
	}

	clients := make([]*Client, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewClient(modelPath, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &Pool{clients: clients}, nil
}

func (p *Pool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool) ValueAndPrior(state game.State) ([]float64, []mcts.Prior, error) {
	if len(p.clients) == 0 {
		return nil, nil, fmt.Errorf("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].ValueAndPrior(state)
}
