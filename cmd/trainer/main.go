// Command trainer runs the full training loop on tic-tac-toe: self-play
// with PUCT search against the in-process MLP evaluator, sampled updates,
// optional parquet archiving and a live websocket monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"alphazero/alphazero"
	"alphazero/game/tictactoe"
	"alphazero/inference"
	"alphazero/mcts"
	"alphazero/model"
	"alphazero/monitor"
	"alphazero/replay"
)

func main() {
	rounds := flag.Int("rounds", 10, "Number of training rounds (self-play phase + update)")
	games := flag.Int("games", 100, "Self-play games per round")
	batchSize := flag.Int("batch-size", 256, "Transitions sampled per update")
	bufferCapacity := flag.Int("buffer-capacity", 1<<16, "Replay buffer capacity")
	transition := flag.Int("action-transition", 6, "Move number at which action selection turns greedy")
	sims := flag.Int("sims", 64, "Search simulations per move")
	workers := flag.Int("workers", 4, "Concurrent self-play workers")
	seed := flag.Int64("seed", 0, "Deterministic seed (0 = time-based)")
	hiddenSize := flag.Int("hidden-size", 128, "Hidden layer width")
	hiddenLayers := flag.Int("hidden-layers", 2, "Number of hidden layers")
	lr := flag.Float64("lr", 2e-2, "Learning rate")
	l2 := flag.Float64("l2", 1e-4, "L2 regularization coefficient")
	outDir := flag.String("out-dir", "", "If set, archive self-play transitions as parquet batches here")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Games to buffer per parquet flush")
	monitorAddr := flag.String("monitor-addr", "", "If set, serve websocket training progress on this address")
	onnxModel := flag.String("onnx-model", "", "If set, drive search with this exported ONNX model instead of the live MLP")
	onnxSessions := flag.Int("onnx-sessions", 2, "Concurrent ONNX sessions when -onnx-model is set")
	weightsIn := flag.String("weights-in", "", "Load initial weights from this JSON file")
	weightsOut := flag.String("weights-out", "weights.json", "Save final weights to this JSON file")
	useTUI := flag.Bool("tui", false, "Show a live TUI instead of log output")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if *useTUI {
		// Logs would tear the TUI; keep them in a file instead.
		f, err := os.OpenFile("trainer.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			log.Fatal().Err(err).Msg("open trainer.log")
		}
		defer f.Close()
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := tictactoe.New()
	obsSize := len(g.NewInitialState().ObservationTensor())

	evaluator := model.NewMLP(obsSize, g.NumDistinctActions(), model.Config{
		HiddenLayers: *hiddenLayers,
		HiddenSize:   *hiddenSize,
		LearningRate: *lr,
		L2:           *l2,
		Seed:         *seed,
	})
	if *weightsIn != "" {
		if err := evaluator.Load(*weightsIn); err != nil {
			log.Fatal().Err(err).Str("path", *weightsIn).Msg("load weights")
		}
		log.Info().Str("path", *weightsIn).Msg("loaded initial weights")
	}

	// Search normally uses the live MLP, so self-play sees every update. An
	// exported ONNX model decouples the two: search plays a frozen network
	// while the MLP trains on the resulting games.
	var searchEval mcts.Evaluator = evaluator
	if *onnxModel != "" {
		pool, err := inference.NewPool(*onnxModel, *onnxSessions, inference.Config{
			InputSize:  obsSize,
			NumActions: g.NumDistinctActions(),
		})
		if err != nil {
			log.Fatal().Err(err).Str("path", *onnxModel).Msg("load onnx model")
		}
		defer pool.Close()
		searchEval = pool
		log.Info().Str("path", *onnxModel).Int("sessions", *onnxSessions).Msg("search evaluator is onnx")
	}

	searcher := mcts.NewSearcher(searchEval, *sims)

	updates := make(chan alphazero.RoundSummary, *rounds)
	options := []alphazero.Option{
		alphazero.WithSelfPlayWorkers(*workers),
	}

	var mon *monitor.Server
	if *monitorAddr != "" {
		mon = monitor.NewServer()
		go func() {
			log.Info().Str("addr", *monitorAddr).Msg("monitor listening")
			if err := http.ListenAndServe(*monitorAddr, mon); err != nil {
				log.Error().Err(err).Msg("monitor server stopped")
			}
		}()
	}
	options = append(options, alphazero.WithRoundHook(func(s alphazero.RoundSummary) {
		if mon != nil {
			mon.Publish(s)
		}
		select {
		case updates <- s:
		default:
		}
	}))

	if *outDir != "" {
		archiver, err := replay.NewArchiver(*outDir, *gamesPerFlush)
		if err != nil {
			log.Fatal().Err(err).Msg("create archiver")
		}
		defer func() {
			if err := archiver.Close(); err != nil {
				log.Error().Err(err).Msg("final parquet flush")
			}
		}()
		options = append(options, alphazero.WithTransitionSink(archiver))
	}

	az, err := alphazero.New(g, searcher, evaluator, alphazero.Config{
		ReplayBufferCapacity:      *bufferCapacity,
		ActionSelectionTransition: *transition,
		NumSelfPlayGames:          *games,
		NumTrainingRounds:         *rounds,
		BatchSize:                 *batchSize,
		Seed:                      *seed,
	}, options...)
	if err != nil {
		log.Fatal().Err(err).Msg("configure training")
	}

	done := make(chan error, 1)
	go func() {
		_, err := az.Train(ctx)
		done <- err
	}()

	if *useTUI {
		p := tea.NewProgram(initialModel(*rounds, updates, done), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Fatal().Err(err).Msg("tui failed")
		}
	} else {
		if err := <-done; err != nil {
			log.Fatal().Err(err).Msg("training failed")
		}
	}

	if *weightsOut != "" {
		if err := evaluator.Save(*weightsOut); err != nil {
			log.Fatal().Err(err).Str("path", *weightsOut).Msg("save weights")
		}
		fmt.Printf("weights saved to %s\n", *weightsOut)
	}
}
