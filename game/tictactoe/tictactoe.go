// Package tictactoe implements 3x3 tic-tac-toe against the game abstraction.
// It is small enough to train on a laptop and is the default target for the
// trainer command.
package tictactoe

import "alphazero/game"

const (
	boardSize  = 3
	numCells   = boardSize * boardSize
	numPlayers = 2
)

const (
	empty int8 = iota - 1 // -1
	playerX                // 0
	playerO                // 1
)

type Game struct{}

func New() *Game { return &Game{} }

func (g *Game) NewInitialState() game.State {
	s := &State{current: int(playerX)}
	for i := range s.board {
		s.board[i] = empty
	}
	return s
}

func (g *Game) NumDistinctActions() int { return numCells }

func (g *Game) NumPlayers() int { return numPlayers }

func (g *Game) Type() game.Type {
	return game.Type{
		ChanceMode:  game.ChanceDeterministic,
		Information: game.PerfectInformation,
		Dynamics:    game.Sequential,
		Utility:     game.ZeroSum,
	}
}

// State is a tic-tac-toe position. Actions are cell indexes 0..8 in
// row-major order.
type State struct {
	board   [numCells]int8
	current int
	moves   int
}

func (s *State) CurrentPlayer() int { return s.current }

func (s *State) IsTerminal() bool {
	return s.winner() != empty || s.moves == numCells
}

func (s *State) LegalActions() []int {
	if s.IsTerminal() {
		return nil
	}
	actions := make([]int, 0, numCells-s.moves)
	for i, cell := range s.board {
		if cell == empty {
			actions = append(actions, i)
		}
	}
	return actions
}

func (s *State) LegalActionsMask() []bool {
	mask := make([]bool, numCells)
	if s.IsTerminal() {
		return mask
	}
	for i, cell := range s.board {
		if cell == empty {
			mask[i] = true
		}
	}
	return mask
}

func (s *State) ApplyAction(action int) {
	if action < 0 || action >= numCells || s.board[action] != empty {
		panic("tictactoe: illegal action")
	}
	s.board[action] = int8(s.current)
	s.current = 1 - s.current
	s.moves++
}

// ObservationTensor encodes the board as three planes: empty cells, X
// stones, O stones.
func (s *State) ObservationTensor() []float32 {
	obs := make([]float32, 3*numCells)
	for i, cell := range s.board {
		switch cell {
		case empty:
			obs[i] = 1
		case playerX:
			obs[numCells+i] = 1
		case playerO:
			obs[2*numCells+i] = 1
		}
	}
	return obs
}

func (s *State) Rewards() []float64 {
	switch s.winner() {
	case playerX:
		return []float64{1, -1}
	case playerO:
		return []float64{-1, 1}
	}
	return []float64{0, 0}
}

func (s *State) Clone() game.State {
	clone := *s
	return &clone
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

func (s *State) winner() int8 {
	for _, line := range lines {
		a := s.board[line[0]]
		if a != empty && a == s.board[line[1]] && a == s.board[line[2]] {
			return a
		}
	}
	return empty
}
