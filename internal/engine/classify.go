package engine

// Playable reports whether sum can be used this roll: it is not a completed
// column, and it either already carries a runner or a runner slot is free.
func Playable(sum int, active, completed ColumnSet) bool {
	if !ValidColumn(sum) || completed.Has(sum) {
		return false
	}
	return active.Has(sum) || active.Len() < MaxRunners
}

// Classifier answers playability for one (active, completed) position.
// It caches the slot check so the hot loop is two mask tests.
type Classifier struct {
	active    ColumnSet
	completed ColumnSet
	slotFree  bool
}

// NewClassifier binds a classifier to a position.
func NewClassifier(active, completed ColumnSet) Classifier {
	return Classifier{
		active:    active,
		completed: completed,
		slotFree:  active.Len() < MaxRunners,
	}
}

// Playable is the package-level Playable bound to the classifier's position.
func (c Classifier) Playable(sum int) bool {
	if !ValidColumn(sum) || c.completed.Has(sum) {
		return false
	}
	return c.slotFree || c.active.Has(sum)
}

// Active reports whether sum already carries a runner.
func (c Classifier) Active(sum int) bool { return c.active.Has(sum) }

// Valid reports whether at least one sum of the pairing is playable.
func (c Classifier) Valid(p Pairing) bool {
	return c.Playable(p.A) || c.Playable(p.B)
}

// MoveKind describes what a valid pairing does to the runners.
type MoveKind int

const (
	MoveNone    MoveKind = iota // no playable sum
	MoveAdvance                 // only advances columns that already carry a runner
	MoveOpen                    // only opens new columns
	MoveMixed                   // advances one runner and opens another column
)

// Kind classifies the playable sums of a pairing.
func (c Classifier) Kind(p Pairing) MoveKind {
	var advance, open bool
	for _, s := range p.Sums() {
		if !c.Playable(s) {
			continue
		}
		if c.active.Has(s) {
			advance = true
		} else {
			open = true
		}
	}
	switch {
	case advance && open:
		return MoveMixed
	case advance:
		return MoveAdvance
	case open:
		return MoveOpen
	default:
		return MoveNone
	}
}

// Place returns how many steps the pairing places when both sums are
// applied one after the other, and the runner set afterwards. Two distinct
// new columns with a single free slot place only one step; the player has to
// pick one of them.
func (c Classifier) Place(p Pairing) (int, ColumnSet) {
	bestSteps, bestActive := 0, c.active
	for _, order := range [2][2]int{{p.A, p.B}, {p.B, p.A}} {
		steps, active := 0, c.active
		for _, s := range order {
			if Playable(s, active, c.completed) {
				steps++
				active = active.With(s)
			}
		}
		if steps > bestSteps {
			bestSteps, bestActive = steps, active
		}
	}
	return bestSteps, bestActive
}

// NeedsChoice reports whether both sums are playable on their own but cannot
// both be placed, so the player must pick one.
func (c Classifier) NeedsChoice(p Pairing) bool {
	if p.A == p.B || !c.Playable(p.A) || !c.Playable(p.B) {
		return false
	}
	steps, _ := c.Place(p)
	return steps < 2
}
