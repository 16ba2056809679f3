// Package report turns an engine analysis into the rounded figures a player
// reads, and renders them for terminals.
package report

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/cant-stop-odds/internal/engine"
)

var hundred = decimal.NewFromInt(100)

// Percent converts a probability to a percentage rounded half-up to one
// decimal place.
func Percent(p float64) decimal.Decimal {
	return decimal.NewFromFloat(p).Mul(hundred).Round(1)
}

// Round2 rounds a step figure to two decimal places.
func Round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Advice is the roll-or-stop recommendation derived from EV.
type Advice string

const (
	AdviceRoll Advice = "roll"
	AdviceStop Advice = "stop"
)

// RiskRow is the bust risk over the next Rolls rolls.
type RiskRow struct {
	Rolls   int             `json:"rolls"`
	Percent decimal.Decimal `json:"percent"`
}

// Share is one labelled slice of the safe-roll breakdowns.
type Share struct {
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	Percent decimal.Decimal `json:"percent"`
}

// ColumnRow is one row of the column table.
type ColumnRow struct {
	Column            int             `json:"column"`
	Active            bool            `json:"active"`
	Playable          bool            `json:"playable"`
	StepsRemaining    int             `json:"steps_remaining"`
	AdvancePercent    decimal.Decimal `json:"advance_percent"`
	CompletionPercent decimal.Decimal `json:"completion_percent"`
}

// EVSummary is the rounded roll-again metric.
type EVSummary struct {
	EV        decimal.Decimal `json:"ev"`
	Q         decimal.Decimal `json:"q"`
	U         int             `json:"u"`
	Heuristic bool            `json:"heuristic"`
	Advice    Advice          `json:"advice"`
}

// ChoiceRow is the rounded conditional metric for one move.
type ChoiceRow struct {
	Key         string          `json:"key"`
	Pairing     int             `json:"pairing"`
	Columns     []int           `json:"columns"`
	EV          decimal.Decimal `json:"ev"`
	BustPercent decimal.Decimal `json:"bust_percent"`
	Best        bool            `json:"best"`
}

// Report is the presentation record for one snapshot.
type Report struct {
	Active    []int `json:"active"`
	Completed []int `json:"completed"`

	BustPercent     decimal.Decimal `json:"bust_percent"`
	SafePercent     decimal.Decimal `json:"safe_percent"`
	ContinuePercent decimal.Decimal `json:"continue_percent"`
	// Busts split by cause: every sum completed, or blocked by the runner limit.
	AllCompletedPercent decimal.Decimal `json:"all_completed_percent"`
	BlockedPercent      decimal.Decimal `json:"blocked_percent"`

	BustRisk      []RiskRow   `json:"bust_risk"`
	ValidPairings []Share     `json:"valid_pairings"`
	MoveTypes     []Share     `json:"move_types"`
	Columns       []ColumnRow `json:"columns"`
	EV            EVSummary   `json:"ev"`
	Choices       []ChoiceRow `json:"choices,omitempty"`
	BestChoice    string      `json:"best_choice,omitempty"`
}

// Build rounds an analysis into a report.
func Build(a engine.Analysis) Report {
	st := a.Stats
	r := Report{
		Active:              a.State.Active.Columns(),
		Completed:           a.State.Completed.Columns(),
		BustPercent:         Percent(st.BustProbability()),
		SafePercent:         Percent(st.SafeProbability()),
		ContinuePercent:     Percent(st.ContinueProbability()),
		AllCompletedPercent: Percent(float64(st.BustAllCompleted) / engine.OutcomeCount),
		BlockedPercent:      Percent(float64(st.BlockedBustCount()) / engine.OutcomeCount),
		ValidPairings: []Share{
			share("one pairing", st.SafeOnePairing, st.ValidPairingShare(1)),
			share("two pairings", st.SafeTwoPairings, st.ValidPairingShare(2)),
			share("three pairings", st.SafeThreePairings, st.ValidPairingShare(3)),
		},
		MoveTypes: []Share{
			share("advance only", st.AdvanceOnly, st.MoveShare(engine.MoveAdvance)),
			share("open only", st.OpenOnly, st.MoveShare(engine.MoveOpen)),
			share("advance and open", st.Mixed, st.MoveShare(engine.MoveMixed)),
			share("split", st.Split, st.MoveShare(engine.MoveNone)),
		},
		EV: Summarize(a.Evaluation),
	}

	for i, p := range a.BustRisk {
		r.BustRisk = append(r.BustRisk, RiskRow{Rolls: i + 1, Percent: Percent(p)})
	}

	r.Columns = make([]ColumnRow, 0, len(a.Columns))
	for _, c := range a.Columns {
		r.Columns = append(r.Columns, ColumnRow{
			Column:            c.Column,
			Active:            c.Active,
			Playable:          c.Playable,
			StepsRemaining:    c.StepsRemaining,
			AdvancePercent:    Percent(c.AdvanceProbability),
			CompletionPercent: Percent(c.CompletionProb),
		})
	}

	best := -1
	for i, c := range a.Choices {
		r.Choices = append(r.Choices, ChoiceRow{
			Key:         c.Key,
			Pairing:     c.Choice.Pairing,
			Columns:     c.Choice.Columns,
			EV:          Round2(c.Evaluation.EV),
			BustPercent: Percent(c.Evaluation.PBust),
		})
		if best < 0 || c.Evaluation.EV > a.Choices[best].Evaluation.EV {
			best = i
		}
	}
	if best >= 0 {
		r.Choices[best].Best = true
		r.BestChoice = r.Choices[best].Key
	}
	return r
}

func share(label string, count int, p float64) Share {
	return Share{Label: label, Count: count, Percent: Percent(p)}
}

// Summarize rounds an evaluation and derives the advice.
func Summarize(ev engine.Evaluation) EVSummary {
	advice := AdviceStop
	if ev.EV > 0 {
		advice = AdviceRoll
	}
	return EVSummary{
		EV:        Round2(ev.EV),
		Q:         Round2(ev.Q),
		U:         ev.U,
		Heuristic: ev.Heuristic,
		Advice:    advice,
	}
}
