// Package alphazero trains a value/policy evaluator for two-player,
// deterministic, perfect-information, zero-sum, turn-based games by
// alternating PUCT-guided self-play with sampled replay updates.
package alphazero

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"alphazero/game"
	"alphazero/mcts"
	"alphazero/replay"
)

// Config is the tuning surface of the training controller.
type Config struct {
	// ReplayBufferCapacity bounds the transition store. Ignored when a
	// buffer is injected with WithReplayBuffer.
	ReplayBufferCapacity int

	// ActionSelectionTransition is the move number at which self-play
	// switches from sampling the visit-count softmax to greedy argmax.
	ActionSelectionTransition int

	// NumSelfPlayGames is the number of episodes per self-play phase.
	NumSelfPlayGames int

	// NumTrainingRounds is the number of self-play/update rounds Train runs.
	NumTrainingRounds int

	// BatchSize is the number of transitions sampled (with replacement)
	// per update.
	BatchSize int

	// Seed makes the run deterministic when non-zero.
	Seed int64
}

func (c *Config) applyDefaults() {
	if c.ReplayBufferCapacity <= 0 {
		c.ReplayBufferCapacity = 1 << 20
	}
	if c.ActionSelectionTransition <= 0 {
		c.ActionSelectionTransition = 30
	}
	if c.NumSelfPlayGames <= 0 {
		c.NumSelfPlayGames = 5000
	}
	if c.NumTrainingRounds <= 0 {
		c.NumTrainingRounds = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 4096
	}
}

// TransitionSink receives each completed game's transitions, e.g. for
// parquet archiving. Errors abort the self-play phase.
type TransitionSink interface {
	WriteGame(gameID string, transitions []replay.Transition) error
}

// RoundSummary describes one completed training round.
type RoundSummary struct {
	Round     int           `json:"round"`
	Games     int           `json:"games"`
	BufferLen int           `json:"buffer_len"`
	Losses    LossReport    `json:"losses"`
	Duration  time.Duration `json:"duration"`
}

// AlphaZero orchestrates self-play and training for one game/evaluator
// pair. The replay buffer and evaluator are explicit dependencies; nothing
// is held in package state.
type AlphaZero struct {
	game      game.Game
	searcher  *mcts.Searcher
	evaluator TrainableEvaluator
	buffer    *replay.Buffer
	cfg       Config

	numPlayers int
	numActions int
	seed       int64
	rng        *rand.Rand

	moverValues bool
	workers     int
	sink        TransitionSink
	onRound     func(RoundSummary)

	gamesPlayed atomic.Int64
}

// Option configures an AlphaZero run.
type Option func(*AlphaZero)

// WithReplayBuffer injects a shared buffer instead of constructing one,
// easing test isolation with seeded sampling.
func WithReplayBuffer(buffer *replay.Buffer) Option {
	return func(a *AlphaZero) {
		if buffer != nil {
			a.buffer = buffer
		}
	}
}

// WithMoverValueAssignment assigns each step's target value from the player
// who actually moved instead of the move-parity rule. Opt-in: the parity
// rule is the reference behavior, but it is wrong for games whose turn
// order is not strict two-player alternation.
func WithMoverValueAssignment() Option {
	return func(a *AlphaZero) { a.moverValues = true }
}

// WithSelfPlayWorkers runs each self-play phase across n concurrent
// workers sharing the buffer and evaluator.
func WithSelfPlayWorkers(n int) Option {
	return func(a *AlphaZero) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithTransitionSink forwards every completed game's transitions to sink.
func WithTransitionSink(sink TransitionSink) Option {
	return func(a *AlphaZero) { a.sink = sink }
}

// WithRoundHook calls fn after every training round, e.g. to feed a TUI or
// monitor.
func WithRoundHook(fn func(RoundSummary)) Option {
	return func(a *AlphaZero) { a.onRound = fn }
}

// New validates the game's structural preconditions and assembles a
// training run. Each violated precondition fails with a distinct
// *InvalidGameConfigError; no partial construction occurs.
func New(g game.Game, searcher *mcts.Searcher, evaluator TrainableEvaluator, cfg Config, options ...Option) (*AlphaZero, error) {
	if err := validateGame(g); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a := &AlphaZero{
		game:       g,
		searcher:   searcher,
		evaluator:  evaluator,
		cfg:        cfg,
		numPlayers: g.NumPlayers(),
		numActions: g.NumDistinctActions(),
		seed:       seed,
		rng:        rand.New(rand.NewSource(seed)),
		workers:    1,
	}
	for _, option := range options {
		option(a)
	}
	if a.buffer == nil {
		a.buffer = replay.NewBuffer(cfg.ReplayBufferCapacity, replay.WithRand(rand.New(rand.NewSource(seed+1))))
	}
	return a, nil
}

// Buffer returns the replay buffer backing this run.
func (a *AlphaZero) Buffer() *replay.Buffer { return a.buffer }

// SelfPlay runs one self-play phase of NumSelfPlayGames episodes,
// populating the replay buffer.
func (a *AlphaZero) SelfPlay(ctx context.Context) error {
	if a.workers <= 1 {
		for i := 0; i < a.cfg.NumSelfPlayGames; i++ {
			if err := a.playGame(ctx, a.rng, a.nextGameID()); err != nil {
				return err
			}
		}
		return nil
	}

	games := make(chan int, a.cfg.NumSelfPlayGames)
	for i := 0; i < a.cfg.NumSelfPlayGames; i++ {
		games <- i
	}
	close(games)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(a.seed + int64(worker)*1000003))
			for range games {
				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed {
					return
				}
				if err := a.playGame(ctx, rng, a.nextGameID()); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}

// Update samples one batch with replacement and applies a single evaluator
// update, returning its loss breakdown.
func (a *AlphaZero) Update() (LossReport, error) {
	batch, err := a.buffer.Sample(a.cfg.BatchSize, true)
	if err != nil {
		return LossReport{}, fmt.Errorf("sample batch: %w", err)
	}
	report, err := a.evaluator.Update(batch)
	if err != nil {
		return LossReport{}, fmt.Errorf("evaluator update: %w", err)
	}
	if err := report.Check(); err != nil {
		log.Warn().Err(err).Msg("evaluator returned unbalanced loss report")
	}
	return report, nil
}

// Train alternates self-play and updates for NumTrainingRounds rounds and
// returns the per-round loss history. There is no convergence criterion;
// judging the returned losses is up to the caller.
func (a *AlphaZero) Train(ctx context.Context) ([]LossReport, error) {
	history := make([]LossReport, 0, a.cfg.NumTrainingRounds)
	for round := 0; round < a.cfg.NumTrainingRounds; round++ {
		start := time.Now()

		if err := a.SelfPlay(ctx); err != nil {
			return history, fmt.Errorf("self-play round %d: %w", round, err)
		}
		report, err := a.Update()
		if err != nil {
			return history, fmt.Errorf("update round %d: %w", round, err)
		}
		history = append(history, report)

		summary := RoundSummary{
			Round:     round,
			Games:     a.cfg.NumSelfPlayGames,
			BufferLen: a.buffer.Len(),
			Losses:    report,
			Duration:  time.Since(start),
		}
		log.Info().
			Int("round", round).
			Int("buffer", summary.BufferLen).
			Float64("total_loss", report.Total).
			Float64("policy_loss", report.Policy).
			Float64("value_loss", report.Value).
			Float64("l2_loss", report.L2).
			Dur("took", summary.Duration).
			Msg("training round complete")
		if a.onRound != nil {
			a.onRound(summary)
		}
	}
	return history, nil
}

func (a *AlphaZero) nextGameID() string {
	return fmt.Sprintf("selfplay_%d_%d", a.seed, a.gamesPlayed.Add(1))
}
