package engine

import (
	"fmt"
	"math"
)

const allColumns ColumnSet = ((1 << (MaxColumn + 1)) - 1) &^ ((1 << MinColumn) - 1)

// Position is the part of a game state the outcome sweep depends on.
// Completed must be the union of both players' completed columns.
type Position struct {
	Active    ColumnSet `json:"active"`
	Completed ColumnSet `json:"completed"`
}

// Validate rejects positions that cannot occur in a game.
func (p Position) Validate() error {
	if (p.Active|p.Completed)&^allColumns != 0 {
		return fmt.Errorf("%w: mask %#x", ErrColumnOutOfRange, uint16((p.Active|p.Completed)&^allColumns))
	}
	if n := p.Active.Len(); n > MaxRunners {
		return fmt.Errorf("%w: %d runners on %s", ErrTooManyRunners, n, p.Active)
	}
	if both := p.Active & p.Completed; both != 0 {
		return fmt.Errorf("%w: %s", ErrCompletedRunner, both)
	}
	return nil
}

// Stats is the result of sweeping all 1296 rolls for one position.
// Counts are over rolls; the probability helpers divide by OutcomeCount
// or by SafeCount as documented.
type Stats struct {
	Position Position `json:"position"`

	BustCount int `json:"bust_count"`
	SafeCount int `json:"safe_count"`

	// Safe rolls by how many of the three pairings are valid.
	SafeOnePairing    int `json:"safe_one_pairing"`
	SafeTwoPairings   int `json:"safe_two_pairings"`
	SafeThreePairings int `json:"safe_three_pairings"`

	// Safe rolls by move type. AdvanceOnly: every valid pairing only advances
	// runners. OpenOnly: every valid pairing only opens columns. Mixed: some
	// valid pairing does both. Split: none does both, but the valid pairings
	// disagree. The four buckets sum to SafeCount.
	AdvanceOnly int `json:"advance_only"`
	OpenOnly    int `json:"open_only"`
	Mixed       int `json:"mixed"`
	Split       int `json:"split"`

	// StepsGained sums, over safe rolls, the steps placed by the best pairing.
	StepsGained int `json:"steps_gained"`

	// ContinuesActive counts rolls where some playable sum lands on a runner.
	ContinuesActive int `json:"continues_active"`
	// BustAllCompleted counts busts where every sum hits a completed column.
	// The remaining busts are blocked by the runner limit.
	BustAllCompleted int `json:"bust_all_completed"`

	// ColumnHitCounts is indexed by column id; entries 0 and 1 stay zero.
	ColumnHitCounts [MaxColumn + 1]int `json:"column_hits"`
}

// ComputeStats validates the position and sweeps the outcome space.
func ComputeStats(active, completed ColumnSet) (Stats, error) {
	pos := Position{Active: active, Completed: completed}
	if err := pos.Validate(); err != nil {
		return Stats{}, err
	}
	return sweep(pos), nil
}

func sweep(pos Position) Stats {
	cls := NewClassifier(pos.Active, pos.Completed)
	st := Stats{Position: pos}

	for i := range outcomeSpace {
		o := &outcomeSpace[i]

		valid, best := 0, 0
		var reached ColumnSet
		var advance, open, mixed bool
		allCompleted := true
		for _, p := range o.pairings {
			for _, s := range p.Sums() {
				if cls.Playable(s) {
					reached = reached.With(s)
				}
				if !pos.Completed.Has(s) {
					allCompleted = false
				}
			}
			switch cls.Kind(p) {
			case MoveNone:
				continue
			case MoveAdvance:
				advance = true
			case MoveOpen:
				open = true
			case MoveMixed:
				mixed = true
			}
			valid++
			if steps, _ := cls.Place(p); steps > best {
				best = steps
			}
		}

		for c := MinColumn; c <= MaxColumn; c++ {
			if reached.Has(c) {
				st.ColumnHitCounts[c]++
			}
		}

		if valid == 0 {
			st.BustCount++
			if allCompleted {
				st.BustAllCompleted++
			}
			continue
		}
		st.SafeCount++
		if !reached.Intersect(pos.Active).Empty() {
			st.ContinuesActive++
		}
		st.StepsGained += best

		switch valid {
		case 1:
			st.SafeOnePairing++
		case 2:
			st.SafeTwoPairings++
		default:
			st.SafeThreePairings++
		}

		switch {
		case mixed:
			st.Mixed++
		case advance && open:
			st.Split++
		case advance:
			st.AdvanceOnly++
		default:
			st.OpenOnly++
		}
	}
	return st
}

// Outcomes returns the size of the outcome space.
func (s Stats) Outcomes() int { return OutcomeCount }

// BustProbability is BustCount / 1296.
func (s Stats) BustProbability() float64 {
	return float64(s.BustCount) / OutcomeCount
}

// SafeProbability is SafeCount / 1296.
func (s Stats) SafeProbability() float64 {
	return float64(s.SafeCount) / OutcomeCount
}

// ValidPairingShare returns the fraction of safe rolls with exactly n valid
// pairings. It is 0 when there are no safe rolls.
func (s Stats) ValidPairingShare(n int) float64 {
	var count int
	switch n {
	case 1:
		count = s.SafeOnePairing
	case 2:
		count = s.SafeTwoPairings
	case 3:
		count = s.SafeThreePairings
	default:
		return 0
	}
	return s.safeShare(count)
}

// MoveShare returns the fraction of safe rolls in the given move bucket.
// MoveNone selects the Split bucket.
func (s Stats) MoveShare(kind MoveKind) float64 {
	switch kind {
	case MoveAdvance:
		return s.safeShare(s.AdvanceOnly)
	case MoveOpen:
		return s.safeShare(s.OpenOnly)
	case MoveMixed:
		return s.safeShare(s.Mixed)
	default:
		return s.safeShare(s.Split)
	}
}

func (s Stats) safeShare(count int) float64 {
	if s.SafeCount <= 0 {
		return 0
	}
	return float64(count) / float64(s.SafeCount)
}

// ColumnHits returns the number of rolls in which some pairing makes column c
// playable.
func (s Stats) ColumnHits(c int) int {
	if !ValidColumn(c) {
		return 0
	}
	return s.ColumnHitCounts[c]
}

// AdvanceProbability is ColumnHits(c) / 1296.
func (s Stats) AdvanceProbability(c int) float64 {
	return float64(s.ColumnHits(c)) / OutcomeCount
}

// ContinueProbability is ContinuesActive / 1296.
func (s Stats) ContinueProbability() float64 {
	return float64(s.ContinuesActive) / OutcomeCount
}

// BlockedBustCount is the number of busts caused by the runner limit rather
// than by completed columns.
func (s Stats) BlockedBustCount() int {
	return s.BustCount - s.BustAllCompleted
}

// MeanStepsIfSafe is StepsGained / SafeCount, 0 when every roll busts.
func (s Stats) MeanStepsIfSafe() float64 {
	return s.safeShare(s.StepsGained)
}

// CompletionProbability approximates the chance of climbing stepsRemaining
// more steps on a column before busting, treating every future roll as an
// independent draw with the current advance probability p and bust
// probability q: (p/(p+q))^stepsRemaining. This is a stationary
// approximation; the real odds change as runners move and columns close.
func CompletionProbability(stepsRemaining int, p, q float64) float64 {
	if stepsRemaining <= 0 {
		return 1
	}
	if p <= 0 {
		return 0
	}
	return math.Pow(p/(p+q), float64(stepsRemaining))
}

// ColumnOdds is one row of the per-column table.
type ColumnOdds struct {
	Column             int     `json:"column"`
	Active             bool    `json:"active"`
	Playable           bool    `json:"playable"`
	StepsRemaining     int     `json:"steps_remaining"`
	AdvanceProbability float64 `json:"advance_probability"`
	CompletionProb     float64 `json:"completion_probability"`
}

// ColumnTable builds rows for the relevant columns in ascending order.
// remaining maps a column to the steps the current player still needs;
// a column missing from the map is treated as already at the top.
func ColumnTable(st Stats, relevant ColumnSet, remaining Progress) []ColumnOdds {
	cls := NewClassifier(st.Position.Active, st.Position.Completed)
	q := st.BustProbability()
	rows := make([]ColumnOdds, 0, relevant.Len())
	for _, c := range relevant.Columns() {
		p := st.AdvanceProbability(c)
		steps := remaining[c]
		rows = append(rows, ColumnOdds{
			Column:             c,
			Active:             st.Position.Active.Has(c),
			Playable:           cls.Playable(c),
			StepsRemaining:     steps,
			AdvanceProbability: p,
			CompletionProb:     CompletionProbability(steps, p, q),
		})
	}
	return rows
}
