package engine

// Analysis is everything the presentation layer shows for one snapshot.
type Analysis struct {
	State      State              `json:"state"`
	Stats      Stats              `json:"stats"`
	BustRisk   []float64          `json:"bust_risk"`
	Columns    []ColumnOdds       `json:"columns"`
	Evaluation Evaluation         `json:"evaluation"`
	Choices    []ChoiceEvaluation `json:"choices,omitempty"`
}

// Choice returns the conditional evaluation for a choice key.
func (a Analysis) Choice(key string) (ChoiceEvaluation, bool) {
	for _, c := range a.Choices {
		if c.Key == key {
			return c, true
		}
	}
	return ChoiceEvaluation{}, false
}

// Analyze computes the full record for a state and the pairings of the
// current roll. candidates may be empty before the roll.
func Analyze(s State, candidates []Candidate) (Analysis, error) {
	return analyze(s, candidates, computeStats)
}

func analyze(s State, candidates []Candidate, stats statsFunc) (Analysis, error) {
	if err := s.Validate(); err != nil {
		return Analysis{}, err
	}
	st, err := stats(s.Position())
	if err != nil {
		return Analysis{}, err
	}
	choices, err := evaluateChoices(s, candidates, stats)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{
		State:      s,
		Stats:      st,
		BustRisk:   BustRiskSeries(st.BustProbability(), RiskHorizon),
		Columns:    ColumnTable(st, RelevantColumns(s, candidates), s.Remaining),
		Evaluation: evaluateWith(st, s.Temp),
		Choices:    choices,
	}, nil
}

// RelevantColumns is the active runners plus every column a candidate
// pairing can reach this roll.
func RelevantColumns(s State, candidates []Candidate) ColumnSet {
	cls := NewClassifier(s.Active, s.Completed)
	rel := s.Active
	for _, c := range candidates {
		for _, sum := range c.Sums() {
			if cls.Playable(sum) {
				rel = rel.With(sum)
			}
		}
	}
	return rel
}
