package alphazero

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"alphazero/game"
	"alphazero/mcts"
	"alphazero/replay"
)

// fakeGame is structurally configurable so each construction precondition
// can be violated on its own.
type fakeGame struct {
	players  int
	gameType game.Type
}

func (f fakeGame) NewInitialState() game.State { return &oneShotState{} }
func (f fakeGame) NumDistinctActions() int     { return 2 }
func (f fakeGame) NumPlayers() int             { return f.players }
func (f fakeGame) Type() game.Type             { return f.gameType }

// oneShotState is a one-ply game: action 0 wins for player 0, action 1
// wins for player 1.
type oneShotState struct {
	done   bool
	picked int
}

func (s *oneShotState) CurrentPlayer() int { return 0 }
func (s *oneShotState) IsTerminal() bool   { return s.done }
func (s *oneShotState) LegalActions() []int {
	if s.done {
		return nil
	}
	return []int{0, 1}
}
func (s *oneShotState) LegalActionsMask() []bool { return []bool{!s.done, !s.done} }
func (s *oneShotState) ApplyAction(action int)   { s.done = true; s.picked = action }
func (s *oneShotState) ObservationTensor() []float32 {
	if s.done {
		return []float32{0}
	}
	return []float32{1}
}
func (s *oneShotState) Rewards() []float64 {
	if s.picked == 0 {
		return []float64{1, -1}
	}
	return []float64{-1, 1}
}
func (s *oneShotState) Clone() game.State {
	clone := *s
	return &clone
}

func validGame() fakeGame {
	return fakeGame{players: 2}
}

// stubEvaluator gives uniform priors, zero value and a fixed balanced loss.
type stubEvaluator struct {
	updates   int
	lastBatch int
}

func (e *stubEvaluator) ValueAndPrior(state game.State) ([]float64, []mcts.Prior, error) {
	legal := state.LegalActions()
	priors := make([]mcts.Prior, 0, len(legal))
	p := 1 / float64(len(legal))
	for _, a := range legal {
		priors = append(priors, mcts.Prior{Action: a, Prob: p})
	}
	return []float64{0, 0}, priors, nil
}

func (e *stubEvaluator) Update(batch []replay.Transition) (LossReport, error) {
	e.updates++
	e.lastBatch = len(batch)
	return LossReport{Total: 1.5, Policy: 1.0, Value: 0.4, L2: 0.1}, nil
}

func newTestRun(t *testing.T, cfg Config, options ...Option) (*AlphaZero, *stubEvaluator) {
	t.Helper()
	eval := &stubEvaluator{}
	searcher := mcts.NewSearcher(eval, 16)
	a, err := New(validGame(), searcher, eval, cfg, options...)
	require.NoError(t, err)
	return a, eval
}

func TestNewRejectsWrongPlayerCount(t *testing.T) {
	eval := &stubEvaluator{}
	for _, players := range []int{1, 3, 4} {
		g := fakeGame{players: players}
		_, err := New(g, mcts.NewSearcher(eval, 2), eval, Config{})
		var cfgErr *InvalidGameConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "players", cfgErr.Property)
	}
}

func TestNewRejectsStructuralViolations(t *testing.T) {
	cases := []struct {
		name     string
		gameType game.Type
		property string
	}{
		{"explicit stochastic chance", game.Type{ChanceMode: game.ChanceExplicitStochastic}, "chance mode"},
		{"sampled stochastic chance", game.Type{ChanceMode: game.ChanceSampledStochastic}, "chance mode"},
		{"imperfect information", game.Type{Information: game.ImperfectInformation}, "information"},
		{"simultaneous dynamics", game.Type{Dynamics: game.Simultaneous}, "dynamics"},
		{"general sum utility", game.Type{Utility: game.GeneralSum}, "utility"},
	}
	eval := &stubEvaluator{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := fakeGame{players: 2, gameType: tc.gameType}
			_, err := New(g, mcts.NewSearcher(eval, 2), eval, Config{})
			var cfgErr *InvalidGameConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tc.property, cfgErr.Property)
		})
	}
}

func TestNewAcceptsValidGame(t *testing.T) {
	eval := &stubEvaluator{}
	a, err := New(validGame(), mcts.NewSearcher(eval, 2), eval, Config{Seed: 1})
	require.NoError(t, err)
	require.NotNil(t, a.Buffer())
}

func TestPolicyTargetNormalizes(t *testing.T) {
	children := []*mcts.Node{
		{Action: 0, ExploreCount: 30},
		{Action: 3, ExploreCount: 10},
	}
	target, err := policyTarget(children, 5)
	require.NoError(t, err)
	require.Len(t, target, 5)
	require.InDelta(t, 0.75, float64(target[0]), 1e-6)
	require.InDelta(t, 0.25, float64(target[3]), 1e-6)

	// Actions the search never expanded stay at zero.
	require.Zero(t, target[1])
	require.Zero(t, target[2])
	require.Zero(t, target[4])

	sum := float32(0)
	for _, p := range target {
		sum += p
	}
	require.InDelta(t, 1.0, float64(sum), 1e-6)
}

func TestPolicyTargetRejectsUnvisitedRoot(t *testing.T) {
	children := []*mcts.Node{{Action: 0}, {Action: 1}}
	_, err := policyTarget(children, 2)
	require.Error(t, err)
}

func TestSelectActionSamplesEarlyMoves(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 11, ActionSelectionTransition: 30})
	rng := rand.New(rand.NewSource(42))

	// Raw counts go through a softmax, so a gap of 3 visits gives the
	// busier child odds of about e^3 : 1.
	children := []*mcts.Node{
		{Action: 0, ExploreCount: 2},
		{Action: 1, ExploreCount: 5},
	}
	picks := map[int]int{}
	const trials = 2000
	for i := 0; i < trials; i++ {
		picks[a.selectAction(children, 0, rng)]++
	}
	require.Greater(t, picks[0], 0, "the weaker action must still be explored")
	require.Greater(t, picks[1], picks[0])
	wantBusy := float64(trials) * (1 / (1 + 1/(20.085537))) // e^3
	require.InDelta(t, wantBusy, float64(picks[1]), 0.05*trials)
}

func TestSelectActionGreedyAfterTransition(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 11, ActionSelectionTransition: 4})
	rng := rand.New(rand.NewSource(42))

	children := []*mcts.Node{
		{Action: 0, ExploreCount: 9},
		{Action: 1, ExploreCount: 4},
	}
	for i := 0; i < 50; i++ {
		require.Equal(t, 0, a.selectAction(children, 4, rng))
	}
}

func TestSelectActionBreaksTiesTowardLargerAction(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 11, ActionSelectionTransition: 1})
	rng := rand.New(rand.NewSource(42))

	children := []*mcts.Node{
		{Action: 2, ExploreCount: 7},
		{Action: 5, ExploreCount: 7},
		{Action: 3, ExploreCount: 7},
	}
	require.Equal(t, 5, a.selectAction(children, 1, rng))
}

func TestSelfPlayRecordsTransitions(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 7, NumSelfPlayGames: 3})

	require.NoError(t, a.SelfPlay(context.Background()))
	require.Equal(t, 3, a.Buffer().Len(), "one transition per one-ply game")

	batch, err := a.Buffer().Sample(3, false)
	require.NoError(t, err)
	for _, tr := range batch {
		require.Len(t, tr.TargetPolicy, 2)
		sum := float32(0)
		for _, p := range tr.TargetPolicy {
			sum += p
		}
		require.InDelta(t, 1.0, float64(sum), 1e-6)

		// target_value is the first mover's reward, so it is +1 when the
		// winning action was played and -1 otherwise.
		require.Contains(t, []float64{1, -1}, tr.TargetValue)
	}
}

type recordingSink struct {
	games map[string][]replay.Transition
}

func (s *recordingSink) WriteGame(gameID string, transitions []replay.Transition) error {
	if s.games == nil {
		s.games = map[string][]replay.Transition{}
	}
	s.games[gameID] = transitions
	return nil
}

func TestSelfPlayForwardsGamesToSink(t *testing.T) {
	sink := &recordingSink{}
	a, _ := newTestRun(t, Config{Seed: 7, NumSelfPlayGames: 2}, WithTransitionSink(sink))

	require.NoError(t, a.SelfPlay(context.Background()))
	require.Len(t, sink.games, 2)
	for id, transitions := range sink.games {
		require.NotEmpty(t, id)
		require.Len(t, transitions, 1)
	}
}

func TestSelfPlayWithWorkers(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 7, NumSelfPlayGames: 20}, WithSelfPlayWorkers(4))

	require.NoError(t, a.SelfPlay(context.Background()))
	require.Equal(t, 20, a.Buffer().Len())
}

func TestUpdateSamplesBatchSize(t *testing.T) {
	a, eval := newTestRun(t, Config{Seed: 7, NumSelfPlayGames: 2, BatchSize: 8})

	require.NoError(t, a.SelfPlay(context.Background()))
	report, err := a.Update()
	require.NoError(t, err)
	require.Equal(t, 8, eval.lastBatch, "batches oversample small buffers with replacement")
	require.NoError(t, report.Check())
}

func TestUpdateFailsOnEmptyBuffer(t *testing.T) {
	a, _ := newTestRun(t, Config{Seed: 7, BatchSize: 8})
	_, err := a.Update()
	require.ErrorIs(t, err, replay.ErrEmptyBuffer)
}

func TestTrainReturnsPerRoundHistory(t *testing.T) {
	var summaries []RoundSummary
	a, eval := newTestRun(t,
		Config{Seed: 7, NumSelfPlayGames: 2, NumTrainingRounds: 3, BatchSize: 4},
		WithRoundHook(func(s RoundSummary) { summaries = append(summaries, s) }))

	history, err := a.Train(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, 3, eval.updates)

	require.Len(t, summaries, 3)
	for i, s := range summaries {
		require.Equal(t, i, s.Round)
		require.Equal(t, 2, s.Games)
		require.Equal(t, history[i], s.Losses)
	}
}

func TestTrainStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, _ := newTestRun(t, Config{Seed: 7, NumSelfPlayGames: 2, NumTrainingRounds: 3})
	history, err := a.Train(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, history)
}

func TestLossReportCheck(t *testing.T) {
	balanced := LossReport{Total: 1.5, Policy: 1.0, Value: 0.4, L2: 0.1}
	require.NoError(t, balanced.Check())

	drifted := LossReport{Total: 1.5 + 1e-3, Policy: 1.0, Value: 0.4, L2: 0.1}
	require.Error(t, drifted.Check())

	withinTolerance := LossReport{Total: 1.5 + 1e-7, Policy: 1.0, Value: 0.4, L2: 0.1}
	require.NoError(t, withinTolerance.Check())
}
