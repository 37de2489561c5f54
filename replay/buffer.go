// Package replay stores self-play transitions for sampled training updates,
// decoupling data generation from model updates.
package replay

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrEmptyBuffer is returned when sampling a buffer with no transitions.
var ErrEmptyBuffer = errors.New("replay: sample from empty buffer")

// ErrSampleTooLarge is returned when sampling without replacement more
// transitions than the buffer holds.
var ErrSampleTooLarge = errors.New("replay: sample larger than buffer without replacement")

// Transition is one training example produced by self-play. Immutable once
// created.
type Transition struct {
	// Observation is the recorded state's observation tensor.
	Observation []float32

	// TargetPolicy is a distribution over the full action space,
	// proportional to search visit counts. Sums to 1.
	TargetPolicy []float32

	// TargetValue is the terminal reward assigned to this step.
	TargetValue float64
}

// Buffer is a fixed-capacity FIFO store of transitions with uniform random
// sampling. Adds evict the oldest transition once the buffer is full;
// insertion order plays no role in sampling.
//
// Buffer is safe for concurrent use by parallel self-play workers.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	items    []Transition
	next     int // ring cursor, meaningful once len(items) == capacity
	rng      *rand.Rand
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithRand sets the sampling random source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(b *Buffer) {
		if rng != nil {
			b.rng = rng
		}
	}
}

// NewBuffer returns an empty buffer holding at most capacity transitions.
func NewBuffer(capacity int, options ...Option) *Buffer {
	if capacity <= 0 {
		panic("replay: capacity must be positive")
	}
	b := &Buffer{
		capacity: capacity,
		items:    make([]Transition, 0, capacity),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Add stores a transition, evicting the oldest one if the buffer is full.
func (b *Buffer) Add(t Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) < b.capacity {
		b.items = append(b.items, t)
		return
	}
	b.items[b.next] = t
	b.next = (b.next + 1) % b.capacity
}

// Sample returns exactly n transitions drawn uniformly at random. With
// replacement n may exceed the buffer size and items may repeat. Sampling
// never mutates the buffer.
func (b *Buffer) Sample(n int, withReplacement bool) ([]Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil, ErrEmptyBuffer
	}
	if !withReplacement && n > len(b.items) {
		return nil, ErrSampleTooLarge
	}

	out := make([]Transition, 0, n)
	if withReplacement {
		for i := 0; i < n; i++ {
			out = append(out, b.items[b.rng.Intn(len(b.items))])
		}
		return out, nil
	}
	for _, idx := range b.rng.Perm(len(b.items))[:n] {
		out = append(out, b.items[idx])
	}
	return out, nil
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the maximum number of stored transitions.
func (b *Buffer) Capacity() int { return b.capacity }
