package engine

import "fmt"

const (
	DiceCount       = 4
	DieFaces        = 6
	OutcomeCount    = DieFaces * DieFaces * DieFaces * DieFaces
	PairingsPerRoll = 3
)

// Dice is one ordered roll of the four dice.
type Dice [DiceCount]int

// Pairing is one way of splitting a roll into two pairs. Index is the
// positional pairing (0: d0+d1|d2+d3, 1: d0+d2|d1+d3, 2: d0+d3|d1+d2).
type Pairing struct {
	Index int `json:"index"`
	A     int `json:"a"`
	B     int `json:"b"`
}

// Sums returns both sums of the pairing.
func (p Pairing) Sums() [2]int { return [2]int{p.A, p.B} }

var pairPositions = [PairingsPerRoll][4]int{
	{0, 1, 2, 3},
	{0, 2, 1, 3},
	{0, 3, 1, 2},
}

// Validate checks every die is in 1..6.
func (d Dice) Validate() error {
	for i, v := range d {
		if v < 1 || v > DieFaces {
			return fmt.Errorf("%w: die %d is %d", ErrInvalidDice, i, v)
		}
	}
	return nil
}

// Pairings returns the three positional pairings. Pairings with equal sums
// are kept distinct.
func (d Dice) Pairings() [PairingsPerRoll]Pairing {
	var out [PairingsPerRoll]Pairing
	for i, pos := range pairPositions {
		out[i] = Pairing{
			Index: i,
			A:     d[pos[0]] + d[pos[1]],
			B:     d[pos[2]] + d[pos[3]],
		}
	}
	return out
}

type outcome struct {
	dice     Dice
	pairings [PairingsPerRoll]Pairing
}

// outcomeSpace is the fixed universe of rolls, built once.
var outcomeSpace = buildOutcomeSpace()

func buildOutcomeSpace() [OutcomeCount]outcome {
	var space [OutcomeCount]outcome
	i := 0
	for d0 := 1; d0 <= DieFaces; d0++ {
		for d1 := 1; d1 <= DieFaces; d1++ {
			for d2 := 1; d2 <= DieFaces; d2++ {
				for d3 := 1; d3 <= DieFaces; d3++ {
					d := Dice{d0, d1, d2, d3}
					space[i] = outcome{dice: d, pairings: d.Pairings()}
					i++
				}
			}
		}
	}
	return space
}

// Outcomes returns the 1296 rolls in enumeration order (d0 outermost).
func Outcomes() []Dice {
	out := make([]Dice, OutcomeCount)
	for i := range outcomeSpace {
		out[i] = outcomeSpace[i].dice
	}
	return out
}

// ForEachOutcome calls fn for every roll with its three pairings.
func ForEachOutcome(fn func(d Dice, pairings [PairingsPerRoll]Pairing)) {
	for i := range outcomeSpace {
		fn(outcomeSpace[i].dice, outcomeSpace[i].pairings)
	}
}
