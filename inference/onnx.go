// Package inference provides an ONNX-backed evaluator for playing with
// exported models. It only implements the value/prior half of the
// evaluator contract: training happens against the in-process model, or in
// an external stack that exports ONNX.
package inference

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"alphazero/game"
	"alphazero/mcts"
)

const (
	DefaultBatchSize    = 128
	DefaultBatchTimeout = 1 * time.Millisecond
)

// Config sizes the client for one exported model. InputSize and NumActions
// must match the model's flat input and policy output.
type Config struct {
	InputSize    int
	NumActions   int
	BatchSize    int
	BatchTimeout time.Duration
}

type request struct {
	input    []float32
	respChan chan response
}

type response struct {
	policy []float32
	value  float32
	err    error
}

// Client runs batched inference against a single ONNX Runtime session.
// Concurrent ValueAndPrior calls are coalesced into batches to keep the
// session busy.
type Client struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan request
	cfg          Config
}

var ortInitOnce sync.Once
var ortInitErr error

// NewClient loads the model at modelPath. The model must take a
// [batch, InputSize] float32 input named "input" and produce outputs
// "policy" [batch, NumActions] and "value" [batch, 1].
func NewClient(modelPath string, cfg Config) (*Client, error) {
	if cfg.InputSize <= 0 || cfg.NumActions <= 0 {
		return nil, fmt.Errorf("input size and action count are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// One intra-op thread: many search workers share the session, so
	// parallelism comes from batching, not per-call threads.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c := &Client{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan request, cfg.BatchSize*2),
	}
	go c.batchLoop()
	return c, nil
}

func (c *Client) Close() error {
	return c.session.Destroy()
}

// ValueAndPrior evaluates one state: the raw policy is renormalized with a
// masked softmax over the state's legal actions, and the scalar value is
// expanded to the two-player antisymmetric vector [v, -v].
func (c *Client) ValueAndPrior(state game.State) ([]float64, []mcts.Prior, error) {
	obs := state.ObservationTensor()
	if len(obs) != c.cfg.InputSize {
		return nil, nil, fmt.Errorf("observation size %d does not match model input %d", len(obs), c.cfg.InputSize)
	}

	respChan := make(chan response, 1)
	c.requestsChan <- request{input: obs, respChan: respChan}
	resp := <-respChan
	if resp.err != nil {
		return nil, nil, resp.err
	}

	mask := state.LegalActionsMask()
	if len(mask) != c.cfg.NumActions {
		return nil, nil, fmt.Errorf("legal actions mask size %d does not match model policy %d", len(mask), c.cfg.NumActions)
	}
	probs := maskedSoftmax(resp.policy, mask)

	legal := state.LegalActions()
	priors := make([]mcts.Prior, 0, len(legal))
	for _, action := range legal {
		priors = append(priors, mcts.Prior{Action: action, Prob: probs[action]})
	}

	value := float64(resp.value)
	return []float64{value, -value}, priors, nil
}

func (c *Client) batchLoop() {
	batchInput := make([]float32, 0, c.cfg.BatchSize*c.cfg.InputSize)
	requests := make([]request, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		}
	}
}

func (c *Client) runBatch(requests []request, batchInput []float32) {
	batchSize := int64(len(requests))

	inputTensor, err := ort.NewTensor(ort.NewShape(batchSize, int64(c.cfg.InputSize)), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, int64(c.cfg.NumActions)))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, 1))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()
	for i, req := range requests {
		policy := make([]float32, c.cfg.NumActions)
		copy(policy, policyData[i*c.cfg.NumActions:(i+1)*c.cfg.NumActions])
		req.respChan <- response{policy: policy, value: valueData[i]}
	}
}

func (c *Client) failBatch(requests []request, err error) {
	for _, req := range requests {
		req.respChan <- response{err: err}
	}
}

func maskedSoftmax(logits []float32, mask []bool) []float64 {
	maxLogit := float32(math.Inf(-1))
	for i, ok := range mask {
		if ok && logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, ok := range mask {
		if ok {
			probs[i] = math.Exp(float64(logits[i] - maxLogit))
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
