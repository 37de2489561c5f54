// Package game defines the turn-based game abstraction the training loop is
// built against. Implementations describe their structure via Type so the
// trainer can verify the algorithm's preconditions up front.
package game

// ChanceMode describes how chance events in a game are resolved.
type ChanceMode int

const (
	ChanceDeterministic ChanceMode = iota
	ChanceExplicitStochastic
	ChanceSampledStochastic
)

func (c ChanceMode) String() string {
	switch c {
	case ChanceDeterministic:
		return "deterministic"
	case ChanceExplicitStochastic:
		return "explicit_stochastic"
	case ChanceSampledStochastic:
		return "sampled_stochastic"
	}
	return "unknown"
}

// Information describes what the players can observe.
type Information int

const (
	PerfectInformation Information = iota
	ImperfectInformation
	OneShot
)

func (i Information) String() string {
	switch i {
	case PerfectInformation:
		return "perfect_information"
	case ImperfectInformation:
		return "imperfect_information"
	case OneShot:
		return "one_shot"
	}
	return "unknown"
}

// Dynamics describes whether players move in turn or simultaneously.
type Dynamics int

const (
	Sequential Dynamics = iota
	Simultaneous
)

func (d Dynamics) String() string {
	switch d {
	case Sequential:
		return "sequential"
	case Simultaneous:
		return "simultaneous"
	}
	return "unknown"
}

// Utility describes the payoff structure at terminal states.
type Utility int

const (
	ZeroSum Utility = iota
	ConstantSum
	GeneralSum
	Identical
)

func (u Utility) String() string {
	switch u {
	case ZeroSum:
		return "zero_sum"
	case ConstantSum:
		return "constant_sum"
	case GeneralSum:
		return "general_sum"
	case Identical:
		return "identical"
	}
	return "unknown"
}

// Type is the structural metadata of a game, checked by the trainer at
// construction time.
type Type struct {
	ChanceMode  ChanceMode
	Information Information
	Dynamics    Dynamics
	Utility     Utility
}

// Game is a factory for states of one particular game.
type Game interface {
	// NewInitialState returns a fresh state at the starting position.
	NewInitialState() State

	// NumDistinctActions is the size of the flat action space. Action ids
	// are in [0, NumDistinctActions).
	NumDistinctActions() int

	// NumPlayers returns how many players the game has.
	NumPlayers() int

	// Type reports the game's structural metadata.
	Type() Type
}

// State is a mutable position in a game. States are not safe for concurrent
// use; search clones them before mutating.
type State interface {
	// CurrentPlayer returns the id of the player to move.
	CurrentPlayer() int

	// IsTerminal reports whether the game is over.
	IsTerminal() bool

	// LegalActions returns the action ids available to the current player,
	// in ascending order.
	LegalActions() []int

	// LegalActionsMask returns a boolean vector over the full action space
	// with true at every legal action.
	LegalActionsMask() []bool

	// ApplyAction advances the state by the given action.
	ApplyAction(action int)

	// ObservationTensor flattens the position into model input features.
	ObservationTensor() []float32

	// Rewards returns the per-player terminal values. Only valid once
	// IsTerminal is true.
	Rewards() []float64

	// Clone returns a deep copy of the state.
	Clone() State
}
