package engine

import (
	"fmt"
	"strconv"
)

// Candidate is one pairing offered by the current roll, with the per-sum
// playability flags the rules server reports for it.
type Candidate struct {
	Pairing
	PlayableA   bool `json:"sum1_playable"`
	PlayableB   bool `json:"sum2_playable"`
	NeedsChoice bool `json:"needs_choice"`
}

// Valid reports whether the candidate places at least one step.
func (c Candidate) Valid() bool { return c.PlayableA || c.PlayableB }

// Candidates derives the three candidates for a roll from the dice alone.
func Candidates(d Dice, active, completed ColumnSet) ([]Candidate, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	pos := Position{Active: active, Completed: completed}
	if err := pos.Validate(); err != nil {
		return nil, err
	}
	cls := NewClassifier(active, completed)
	out := make([]Candidate, 0, PairingsPerRoll)
	for _, p := range d.Pairings() {
		out = append(out, Candidate{
			Pairing:     p,
			PlayableA:   cls.Playable(p.A),
			PlayableB:   cls.Playable(p.B),
			NeedsChoice: cls.NeedsChoice(p),
		})
	}
	return out, nil
}

// Choice is one concrete move: the columns a pairing advances, in order.
// Columns may repeat when both sums are equal.
type Choice struct {
	Pairing int   `json:"pairing"`
	Columns []int `json:"columns"`
	// Sum is set when the player picked one sum of a pairing that needed a
	// choice.
	Sum int `json:"sum,omitempty"`
}

// Key identifies the choice: "<pairing>" for a forced move,
// "<pairing>:<sum>" for a picked sum.
func (c Choice) Key() string {
	if c.Sum != 0 {
		return strconv.Itoa(c.Pairing) + ":" + strconv.Itoa(c.Sum)
	}
	return strconv.Itoa(c.Pairing)
}

// Choices lists the moves a candidate offers: one per playable sum when the
// player must pick, otherwise a single move over every playable sum.
func (c Candidate) Choices() []Choice {
	if !c.Valid() {
		return nil
	}
	if c.NeedsChoice {
		var out []Choice
		if c.PlayableA {
			out = append(out, Choice{Pairing: c.Index, Columns: []int{c.A}, Sum: c.A})
		}
		if c.PlayableB {
			out = append(out, Choice{Pairing: c.Index, Columns: []int{c.B}, Sum: c.B})
		}
		return out
	}
	cols := make([]int, 0, 2)
	if c.PlayableA {
		cols = append(cols, c.A)
	}
	if c.PlayableB {
		cols = append(cols, c.B)
	}
	return []Choice{{Pairing: c.Index, Columns: cols}}
}

// Apply returns the hypothetical state after the choice: one temp step per
// chosen column and the columns added to the runners. The input is not
// modified.
func Apply(s State, ch Choice) (State, error) {
	next := State{
		Active:    s.Active,
		Completed: s.Completed,
		Temp:      s.Temp.Clone(),
	}
	if s.Remaining != nil {
		next.Remaining = s.Remaining.Clone()
	}
	for _, col := range ch.Columns {
		if !Playable(col, next.Active, next.Completed) {
			return State{}, fmt.Errorf("%w: column %d with runners %s", ErrUnplayableChoice, col, next.Active)
		}
		next.Active = next.Active.With(col)
		next.Temp[col]++
		if next.Remaining != nil && next.Remaining[col] > 0 {
			next.Remaining[col]--
		}
	}
	if next.Active.Len() > MaxRunners {
		return State{}, fmt.Errorf("%w: %s", ErrRunnerLimit, next.Active)
	}
	return next, nil
}

// ChoiceEvaluation is the conditional metric for one move.
type ChoiceEvaluation struct {
	Key        string     `json:"key"`
	Choice     Choice     `json:"choice"`
	Next       State      `json:"next"`
	Evaluation Evaluation `json:"evaluation"`
}

type statsFunc func(Position) (Stats, error)

func computeStats(pos Position) (Stats, error) {
	if err := pos.Validate(); err != nil {
		return Stats{}, err
	}
	return sweep(pos), nil
}

// EvaluateChoices evaluates every move the candidates offer, one level deep:
// each move's hypothetical state is evaluated exactly like a live state.
func EvaluateChoices(s State, candidates []Candidate) ([]ChoiceEvaluation, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return evaluateChoices(s, candidates, computeStats)
}

func evaluateChoices(s State, candidates []Candidate, stats statsFunc) ([]ChoiceEvaluation, error) {
	var out []ChoiceEvaluation
	for _, cand := range candidates {
		for _, ch := range cand.Choices() {
			next, err := Apply(s, ch)
			if err != nil {
				return nil, fmt.Errorf("choice %s: %w", ch.Key(), err)
			}
			st, err := stats(next.Position())
			if err != nil {
				return nil, fmt.Errorf("choice %s: %w", ch.Key(), err)
			}
			out = append(out, ChoiceEvaluation{
				Key:        ch.Key(),
				Choice:     ch,
				Next:       next,
				Evaluation: evaluateWith(st, next.Temp),
			})
		}
	}
	return out, nil
}
