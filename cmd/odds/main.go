// Command odds prints bust odds and roll-again advice for Can't Stop
// positions from the terminal.
//
// Usage:
//
//	odds analyze state.json
//	odds game <game-id> [-rules URL] [-save]
//	odds sweep [-completed 7,8] [-metric bust] [-op ge] [-val 0.5]
//	odds history [-game ID] [-n 20]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/MJE43/cant-stop-odds/internal/api"
	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/config"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/report"
	"github.com/MJE43/cant-stop-odds/internal/rules"
	"github.com/MJE43/cant-stop-odds/internal/scan"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

var errUsage = errors.New("usage")

const usage = `usage: odds <command> [flags]

commands:
  analyze <state.json>   analyze a saved rules-server snapshot
  game <id>              fetch a live game from the rules server and analyze it
  sweep                  list runner sets whose odds meet a condition
  history                list stored analyses
  version                print the engine version
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "analyze":
		err = runAnalyze(args[1:], stdout)
	case "game":
		err = runGame(ctx, args[1:], stdout)
	case "sweep":
		err = runSweep(ctx, args[1:], stdout)
	case "history":
		err = runHistory(args[1:], stdout)
	case "version":
		v := api.GetVersionInfo()
		fmt.Fprintf(stdout, "odds %s (%s, built %s)\n", v.EngineVersion, v.GitCommit, v.BuildTime)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "odds %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func runAnalyze(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	save := fs.Bool("save", false, "store the analysis in the local database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Output().Write([]byte("usage: odds analyze [-json] [-save] <state.json>\n"))
		return errUsage
	}

	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var gs board.GameState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return fmt.Errorf("decode %s: %w", fs.Arg(0), err)
	}
	return analyzeAndPrint("", &gs, *asJSON, *save, stdout)
}

func runGame(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	rulesURL := fs.String("rules", os.Getenv("ODDS_RULES_URL"), "rules server API root")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	save := fs.Bool("save", false, "store the analysis in the local database")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Output().Write([]byte("usage: odds game [-rules URL] [-json] [-save] <game-id>\n"))
		return errUsage
	}
	if *rulesURL == "" {
		return errors.New("no rules server: set -rules or ODDS_RULES_URL")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := rules.NewClient(rules.Config{BaseURL: *rulesURL, UserAgent: "odds/" + api.EngineVersion})
	gs, err := client.State(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return analyzeAndPrint(fs.Arg(0), gs, *asJSON, *save, stdout)
}

func analyzeAndPrint(gameID string, gs *board.GameState, asJSON, save bool, stdout io.Writer) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	st, err := gs.State()
	if err != nil {
		return err
	}
	candidates, err := gs.Candidates()
	if err != nil {
		return err
	}
	a, err := engine.Analyze(st, candidates)
	if err != nil {
		return err
	}
	rep := report.Build(a)

	if save {
		id, err := saveReport(gameID, st, rep)
		if err != nil {
			return err
		}
		defer fmt.Fprintf(stdout, "saved as %s\n", id)
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(stdout, "phase: %s\n", gs.Phase())
	fmt.Fprintln(stdout, report.Render(rep))
	return nil
}

func saveReport(gameID string, st engine.State, rep report.Report) (string, error) {
	db, err := openStore()
	if err != nil {
		return "", err
	}
	defer db.Close()

	rec, err := api.NewAnalysisRecord(gameID, st, rep)
	if err != nil {
		return "", err
	}
	if err := db.SaveAnalysis(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func runSweep(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	completed := fs.String("completed", "", "comma separated completed columns, e.g. 7,8")
	metric := fs.String("metric", string(scan.MetricBust), "bust, safe, continue, q or ev")
	op := fs.String("op", string(scan.OpGreaterEqual), "eq, gt, ge, lt, le, between or outside")
	val := fs.Float64("val", 0.5, "target value")
	val2 := fs.Float64("val2", 0, "upper bound for between and outside")
	minRunners := fs.Int("min", 0, "smallest runner set")
	maxRunners := fs.Int("max", engine.MaxRunners, "largest runner set")
	u := fs.Int("u", 0, "steps at stake for the ev metric")
	limit := fs.Int("limit", 0, "maximum hits to print, 0 for all")
	timeout := fs.Duration("timeout", 10*time.Second, "sweep timeout")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	done, err := parseColumns(*completed)
	if err != nil {
		return err
	}
	analyzer, err := engine.NewAnalyzer(engine.DefaultCacheSize)
	if err != nil {
		return err
	}

	result, err := scan.NewScanner(analyzer, api.EngineVersion).Sweep(ctx, scan.SweepRequest{
		Completed:  done,
		MinRunners: *minRunners,
		MaxRunners: *maxRunners,
		Metric:     scan.Metric(*metric),
		U:          *u,
		TargetOp:   scan.TargetOp(*op),
		TargetVal:  *val,
		TargetVal2: *val2,
		Limit:      *limit,
		TimeoutMs:  int(*timeout / time.Millisecond),
	})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	t := newTable("Runners", *metric)
	for _, h := range result.Hits {
		t.Row(h.Runners.String(), strconv.FormatFloat(h.Metric, 'f', 4, 64))
	}
	fmt.Fprintln(stdout, t.Render())
	s := result.Summary
	fmt.Fprintf(stdout, "%d of %d runner sets matched (min %.4f, mean %.4f, max %.4f)\n",
		s.HitsFound, s.TotalEvaluated, s.MinMetric, s.MeanMetric, s.MaxMetric)
	if s.TimedOut {
		fmt.Fprintln(stdout, "sweep timed out; results are partial")
	}
	return nil
}

func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	gameID := fs.String("game", "", "only analyses of this game")
	n := fs.Int("n", 20, "number of analyses to list")
	page := fs.Int("page", 1, "page of results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.ListAnalyses(store.AnalysesQuery{GameID: *gameID, Page: *page, PerPage: *n})
	if err != nil {
		return err
	}
	if len(list.Analyses) == 0 {
		fmt.Fprintln(stdout, "no stored analyses")
		return nil
	}

	t := newTable("ID", "Game", "Runners", "Bust", "EV", "Advice", "When")
	for _, a := range list.Analyses {
		t.Row(
			a.ID[:min(8, len(a.ID))],
			a.GameID,
			a.Active,
			strconv.FormatFloat(a.BustPercent, 'f', 1, 64)+"%",
			strconv.FormatFloat(a.EV, 'f', 2, 64),
			a.Advice,
			humanize.Time(a.CreatedAt),
		)
	}
	fmt.Fprintln(stdout, t.Render())
	fmt.Fprintf(stdout, "page %d of %d, %s analyses\n", list.Page, list.TotalPages, humanize.Comma(int64(list.TotalCount)))
	return nil
}

// openStore opens the database named by ODDS_DB_PATH, or the default one.
func openStore() (*store.SQLiteDB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// parseColumns reads a list like "7,8" or "7 8". Empty input is the empty set.
func parseColumns(s string) (engine.ColumnSet, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	cols := make([]int, 0, len(fields))
	for _, f := range fields {
		c, err := strconv.Atoi(f)
		if err != nil {
			return 0, fmt.Errorf("bad column %q", f)
		}
		cols = append(cols, c)
	}
	return engine.NewColumnSet(cols...)
}

func newTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}
