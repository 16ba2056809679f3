package engine

import "fmt"

// FirstRollGain is the expected step gain assumed on the first roll of a
// turn, when no runner is on the board yet. It is a fixed heuristic, not an
// enumerated value.
const FirstRollGain = 2.0

// State is the read-only snapshot the engine works on.
type State struct {
	Active    ColumnSet `json:"active"`
	Completed ColumnSet `json:"completed"`
	// Temp holds this turn's uncommitted steps per column.
	Temp Progress `json:"temp"`
	// Remaining holds the steps the current player still needs per column.
	Remaining Progress `json:"remaining,omitempty"`
}

// Position returns the (active, completed) part of the state.
func (s State) Position() Position {
	return Position{Active: s.Active, Completed: s.Completed}
}

// Validate checks the state is one a game could produce.
func (s State) Validate() error {
	if err := s.Position().Validate(); err != nil {
		return err
	}
	if err := s.Temp.validate(); err != nil {
		return fmt.Errorf("temp: %w", err)
	}
	if err := s.Remaining.validate(); err != nil {
		return fmt.Errorf("remaining: %w", err)
	}
	for c, v := range s.Temp {
		if v > 0 && !s.Active.Has(c) {
			return fmt.Errorf("%w: temp column %d", ErrOrphanProgress, c)
		}
	}
	return nil
}

// Evaluation is the roll-again metric for one state:
// EV = PSafe*Q - PBust*U.
type Evaluation struct {
	EV float64 `json:"ev"`
	// U is the sum of uncommitted steps lost on a bust.
	U int `json:"u"`
	// Q is the expected steps gained given the roll is safe.
	Q     float64 `json:"q"`
	PSafe float64 `json:"p_safe"`
	PBust float64 `json:"p_bust"`
	// Heuristic is set when Q is FirstRollGain rather than enumerated.
	Heuristic bool `json:"heuristic"`
}

// Evaluate computes the roll-again metric for (active, temp, completed).
func Evaluate(active ColumnSet, temp Progress, completed ColumnSet) (Evaluation, error) {
	s := State{Active: active, Completed: completed, Temp: temp}
	if err := s.Validate(); err != nil {
		return Evaluation{}, err
	}
	return evaluateWith(sweep(s.Position()), temp), nil
}

func evaluateWith(st Stats, temp Progress) Evaluation {
	return EvaluateAtRisk(st, temp.Total())
}

// EvaluateAtRisk evaluates a swept position with u uncommitted steps at
// stake.
func EvaluateAtRisk(st Stats, u int) Evaluation {
	ev := Evaluation{
		U:     u,
		PSafe: st.SafeProbability(),
		PBust: st.BustProbability(),
	}
	if st.Position.Active.Empty() {
		ev.Q = FirstRollGain
		ev.Heuristic = true
	} else {
		ev.Q = st.MeanStepsIfSafe()
	}
	ev.EV = ev.PSafe*ev.Q - ev.PBust*float64(ev.U)
	return ev
}
