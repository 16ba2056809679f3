package scripting

import "github.com/MJE43/cant-stop-odds/internal/report"

// reportObject flattens a report into plain values for the JS runtime.
// Percentages become numbers so rules can compare them directly.
func reportObject(r report.Report) map[string]interface{} {
	risk := make([]interface{}, len(r.BustRisk))
	for i, row := range r.BustRisk {
		risk[i] = row.Percent.InexactFloat64()
	}

	columns := make([]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		columns[i] = map[string]interface{}{
			"column":          c.Column,
			"active":          c.Active,
			"playable":        c.Playable,
			"steps_remaining": c.StepsRemaining,
			"advance":         c.AdvancePercent.InexactFloat64(),
			"completion":      c.CompletionPercent.InexactFloat64(),
		}
	}

	choices := make([]interface{}, len(r.Choices))
	for i, c := range r.Choices {
		cols := make([]interface{}, len(c.Columns))
		for j, col := range c.Columns {
			cols[j] = col
		}
		choices[i] = map[string]interface{}{
			"key":     c.Key,
			"pairing": c.Pairing,
			"columns": cols,
			"ev":      c.EV.InexactFloat64(),
			"bust":    c.BustPercent.InexactFloat64(),
			"best":    c.Best,
		}
	}

	return map[string]interface{}{
		"active":        ints(r.Active),
		"completed":     ints(r.Completed),
		"bust":          r.BustPercent.InexactFloat64(),
		"safe":          r.SafePercent.InexactFloat64(),
		"continue":      r.ContinuePercent.InexactFloat64(),
		"all_completed": r.AllCompletedPercent.InexactFloat64(),
		"blocked":       r.BlockedPercent.InexactFloat64(),
		"bust_risk":     risk,
		"columns":       columns,
		"choices":       choices,
		"best_choice":   r.BestChoice,
		"ev": map[string]interface{}{
			"ev":        r.EV.EV.InexactFloat64(),
			"q":         r.EV.Q.InexactFloat64(),
			"u":         r.EV.U,
			"heuristic": r.EV.Heuristic,
			"advice":    string(r.EV.Advice),
		},
	}
}

func ints(v []int) []interface{} {
	out := make([]interface{}, len(v))
	for i, n := range v {
		out[i] = n
	}
	return out
}
