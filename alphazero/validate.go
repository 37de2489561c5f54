package alphazero

import (
	"fmt"

	"alphazero/game"
)

// InvalidGameConfigError reports a game that violates one of the
// algorithm's structural preconditions. Property names the offending game
// attribute; Value is its actual value.
type InvalidGameConfigError struct {
	Property string
	Value    string
	Want     string
}

func (e *InvalidGameConfigError) Error() string {
	return fmt.Sprintf("game %s must be %s, not %s", e.Property, e.Want, e.Value)
}

// validateGame checks the structural preconditions of the training
// algorithm: exactly two players, deterministic chance, perfect
// information, sequential dynamics, zero-sum utility. The first violated
// precondition is returned; construction fails fast.
func validateGame(g game.Game) error {
	if players := g.NumPlayers(); players != 2 {
		return &InvalidGameConfigError{
			Property: "players",
			Value:    fmt.Sprintf("%d", players),
			Want:     "2",
		}
	}

	t := g.Type()
	if t.ChanceMode != game.ChanceDeterministic {
		return &InvalidGameConfigError{
			Property: "chance mode",
			Value:    t.ChanceMode.String(),
			Want:     game.ChanceDeterministic.String(),
		}
	}
	if t.Information != game.PerfectInformation {
		return &InvalidGameConfigError{
			Property: "information",
			Value:    t.Information.String(),
			Want:     game.PerfectInformation.String(),
		}
	}
	if t.Dynamics != game.Sequential {
		return &InvalidGameConfigError{
			Property: "dynamics",
			Value:    t.Dynamics.String(),
			Want:     game.Sequential.String(),
		}
	}
	if t.Utility != game.ZeroSum {
		return &InvalidGameConfigError{
			Property: "utility",
			Value:    t.Utility.String(),
			Want:     game.ZeroSum.String(),
		}
	}
	return nil
}
