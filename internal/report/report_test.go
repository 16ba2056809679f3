package report

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/cant-stop-odds/internal/engine"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, "0"},
		{1, "100"},
		{0.1225, "12.3"},
		{0.12249, "12.2"},
		{104.0 / 1296.0, "8"},
		{728.0 / 1296.0, "56.2"},
	}
	for _, tt := range tests {
		got := Percent(tt.p)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Percent(%f): expected %s, got %s", tt.p, tt.want, got)
		}
	}
}

func analyze(t *testing.T, s engine.State, d *engine.Dice) engine.Analysis {
	t.Helper()
	var cands []engine.Candidate
	if d != nil {
		var err error
		cands, err = engine.Candidates(*d, s.Active, s.Completed)
		if err != nil {
			t.Fatalf("Candidates failed: %v", err)
		}
	}
	a, err := engine.Analyze(s, cands)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return a
}

func TestBuildSaturatedBoard(t *testing.T) {
	a := analyze(t, engine.State{
		Active:    engine.MustColumnSet(6, 7, 8),
		Completed: engine.MustColumnSet(2, 3, 4, 5, 9, 10, 11, 12),
		Temp:      engine.Progress{6: 2, 7: 1, 8: 1},
		Remaining: engine.Progress{6: 4, 7: 6, 8: 3},
	}, nil)
	r := Build(a)

	if r.BustPercent.StringFixed(1) != "8.0" {
		t.Errorf("expected bust 8.0, got %s", r.BustPercent.StringFixed(1))
	}
	if r.SafePercent.StringFixed(1) != "92.0" {
		t.Errorf("expected safe 92.0, got %s", r.SafePercent.StringFixed(1))
	}
	if !r.AllCompletedPercent.Equal(r.BustPercent) || !r.BlockedPercent.IsZero() {
		t.Errorf("expected every bust caused by completed columns, got %s / %s", r.AllCompletedPercent, r.BlockedPercent)
	}
	if len(r.BustRisk) != engine.RiskHorizon {
		t.Fatalf("expected %d risk rows, got %d", engine.RiskHorizon, len(r.BustRisk))
	}
	// 1 - (1192/1296)^2
	if r.BustRisk[1].Percent.StringFixed(1) != "15.4" {
		t.Errorf("expected two-roll risk 15.4, got %s", r.BustRisk[1].Percent.StringFixed(1))
	}
	if len(r.Columns) != 3 || r.Columns[0].Column != 6 {
		t.Errorf("unexpected column rows %+v", r.Columns)
	}
	if r.EV.U != 4 || r.EV.Advice != AdviceRoll {
		t.Errorf("unexpected EV summary %+v", r.EV)
	}
	// (1708 - 416) / 1296
	if r.EV.EV.StringFixed(2) != "1.00" {
		t.Errorf("expected EV 1.00, got %s", r.EV.EV.StringFixed(2))
	}
	if r.Choices != nil || r.BestChoice != "" {
		t.Error("expected no choices without a roll")
	}
}

func TestBuildPicksBestChoice(t *testing.T) {
	d := engine.Dice{1, 3, 4, 4}
	a := analyze(t, engine.State{
		Active: engine.MustColumnSet(6, 7),
		Temp:   engine.Progress{6: 1, 7: 1},
	}, &d)
	r := Build(a)

	if len(r.Choices) != 4 {
		t.Fatalf("expected 4 choices, got %d", len(r.Choices))
	}
	bestCount := 0
	for i, c := range r.Choices {
		if c.Best {
			bestCount++
			if c.Key != r.BestChoice {
				t.Errorf("best flag on %s but BestChoice is %s", c.Key, r.BestChoice)
			}
			for _, o := range a.Choices {
				if o.Evaluation.EV > a.Choices[i].Evaluation.EV {
					t.Errorf("choice %s has higher EV than best %s", o.Key, c.Key)
				}
			}
		}
	}
	if bestCount != 1 {
		t.Errorf("expected exactly one best choice, got %d", bestCount)
	}
}

func TestBuildFirstRoll(t *testing.T) {
	r := Build(analyze(t, engine.State{Temp: engine.Progress{}}, nil))
	if !r.BustPercent.IsZero() {
		t.Errorf("expected zero bust on empty board, got %s", r.BustPercent)
	}
	if !r.EV.Heuristic || r.EV.Q.StringFixed(2) != "2.00" {
		t.Errorf("expected heuristic Q 2.00, got %+v", r.EV)
	}
	if len(r.Columns) != 0 {
		t.Errorf("expected no relevant columns, got %d", len(r.Columns))
	}
	if len(r.Active) != 0 {
		t.Errorf("expected no runners, got %v", r.Active)
	}
}

func TestRender(t *testing.T) {
	d := engine.Dice{1, 3, 4, 4}
	r := Build(analyze(t, engine.State{
		Active:    engine.MustColumnSet(6, 7),
		Temp:      engine.Progress{6: 1, 7: 1},
		Remaining: engine.Progress{6: 8, 7: 10},
	}, &d))

	out := Render(r)
	for _, want := range []string{"Bust odds", "Runners", "6, 7 (2/3)", "Expected value", "Choices", "0:4", "ROLL"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}
