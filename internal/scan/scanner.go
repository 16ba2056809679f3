// Package scan sweeps every runner combination open on a board and reports
// the ones whose odds meet a target condition.
package scan

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/cant-stop-odds/internal/engine"
)

// TargetOp represents comparison operations for sweeping
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
)

// Metric selects which figure of a runner set is compared to the target.
type Metric string

const (
	MetricBust     Metric = "bust"     // bust probability
	MetricSafe     Metric = "safe"     // safe probability
	MetricContinue Metric = "continue" // probability of advancing a runner
	MetricQ        Metric = "q"        // expected steps if safe
	MetricEV       Metric = "ev"       // roll-again EV with U steps at stake
)

// DefaultTolerance is used when a request leaves Tolerance at zero.
const DefaultTolerance = 1e-9

// SweepRequest describes one sweep over runner sets.
type SweepRequest struct {
	Completed engine.ColumnSet `json:"completed"`
	// MinRunners and MaxRunners bound the size of the swept runner sets.
	// MaxRunners defaults to 3.
	MinRunners int      `json:"min_runners,omitempty"`
	MaxRunners int      `json:"max_runners,omitempty"`
	Metric     Metric   `json:"metric"`
	U          int      `json:"u,omitempty"` // steps at stake for MetricEV
	TargetOp   TargetOp `json:"target_op"`
	TargetVal  float64  `json:"target_val"`
	TargetVal2 float64  `json:"target_val2,omitempty"` // for "between" and "outside"
	Tolerance  float64  `json:"tolerance"`
	Limit      int      `json:"limit,omitempty"`
	TimeoutMs  int      `json:"timeout_ms,omitempty"`
}

// Validate checks the request before any work starts.
func (r *SweepRequest) Validate() error {
	switch r.Metric {
	case MetricBust, MetricSafe, MetricContinue, MetricQ, MetricEV:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMetric, r.Metric)
	}
	switch r.TargetOp {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
	case OpBetween, OpOutside:
		if r.TargetVal2 < r.TargetVal {
			return fmt.Errorf("%w: %v > %v", ErrInvalidRange, r.TargetVal, r.TargetVal2)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOp, r.TargetOp)
	}
	if r.MinRunners < 0 || r.MaxRunners < 0 || r.MaxRunners > engine.MaxRunners {
		return fmt.Errorf("%w: %d..%d", ErrInvalidSize, r.MinRunners, r.MaxRunners)
	}
	if r.MaxRunners > 0 && r.MinRunners > r.MaxRunners {
		return fmt.Errorf("%w: %d..%d", ErrInvalidSize, r.MinRunners, r.MaxRunners)
	}
	if r.U < 0 {
		return fmt.Errorf("%w: u=%d", engine.ErrNegativeProgress, r.U)
	}
	return nil
}

// Hit is one runner set meeting the target.
type Hit struct {
	Runners engine.ColumnSet `json:"runners"`
	Metric  float64          `json:"metric"`
}

// Summary contains aggregate statistics over every evaluated runner set.
type Summary struct {
	TotalEvaluated uint64  `json:"total_evaluated"`
	HitsFound      int     `json:"hits_found"`
	MinMetric      float64 `json:"min_metric"`
	MaxMetric      float64 `json:"max_metric"`
	MeanMetric     float64 `json:"mean_metric"`
	TimedOut       bool    `json:"timed_out,omitempty"`
}

// SweepResult contains the complete sweep results. Hits are ordered by
// metric, highest first, then by runner set.
type SweepResult struct {
	ID            string       `json:"id"`
	Hits          []Hit        `json:"hits"`
	Summary       Summary      `json:"summary"`
	EngineVersion string       `json:"engine_version"`
	Echo          SweepRequest `json:"echo"`
}

// StatsSource sweeps the outcome space for a position. *engine.Analyzer
// satisfies it.
type StatsSource interface {
	Stats(engine.Position) (engine.Stats, error)
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func(engine.Position) (engine.Stats, error)

// Stats calls f.
func (f StatsFunc) Stats(pos engine.Position) (engine.Stats, error) { return f(pos) }

// TargetEvaluator handles target condition evaluation with tolerance
type TargetEvaluator struct {
	op        TargetOp
	val1      float64
	val2      float64 // for "between" and "outside"
	tolerance float64
}

// NewTargetEvaluator creates a new target evaluator
func NewTargetEvaluator(op TargetOp, val1, val2, tolerance float64) *TargetEvaluator {
	return &TargetEvaluator{
		op:        op,
		val1:      val1,
		val2:      val2,
		tolerance: tolerance,
	}
}

// Matches checks if a metric matches the target criteria
func (te *TargetEvaluator) Matches(metric float64) bool {
	switch te.op {
	case OpEqual:
		return math.Abs(metric-te.val1) <= te.tolerance
	case OpGreater:
		return metric > te.val1+te.tolerance
	case OpGreaterEqual:
		return metric >= te.val1-te.tolerance
	case OpLess:
		return metric < te.val1-te.tolerance
	case OpLessEqual:
		return metric <= te.val1+te.tolerance
	case OpBetween:
		return metric >= te.val1-te.tolerance && metric <= te.val2+te.tolerance
	case OpOutside:
		return metric < te.val1-te.tolerance || metric > te.val2+te.tolerance
	default:
		return false
	}
}

// Scanner evaluates runner sets on a fixed worker pool.
type Scanner struct {
	workerCount int
	stats       StatsSource
	version     string
}

// NewScanner creates a scanner with one worker per CPU. version is echoed in
// every result.
func NewScanner(stats StatsSource, version string) *Scanner {
	return &Scanner{
		workerCount: runtime.GOMAXPROCS(0),
		stats:       stats,
		version:     version,
	}
}

type sample struct {
	runners engine.ColumnSet
	metric  float64
	hit     bool
}

// Sweep evaluates every runner set disjoint from req.Completed.
func (s *Scanner) Sweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MaxRunners == 0 {
		req.MaxRunners = engine.MaxRunners
	}
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	evaluator := NewTargetEvaluator(req.TargetOp, req.TargetVal, req.TargetVal2, tolerance)

	jobs := make(chan engine.ColumnSet, s.workerCount*2)
	samples := make(chan sample, s.workerCount*2)
	errs := make(chan error, 1)

	var evaluated uint64
	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runners := range jobs {
				if ctx.Err() != nil {
					return
				}
				st, err := s.stats.Stats(engine.Position{Active: runners, Completed: req.Completed})
				if err != nil {
					select {
					case errs <- fmt.Errorf("runners %s: %w", runners, err):
					default:
					}
					continue
				}
				atomic.AddUint64(&evaluated, 1)
				m := metricOf(st, req.Metric, req.U)
				select {
				case samples <- sample{runners: runners, metric: m, hit: evaluator.Matches(m)}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go generateRunnerSets(ctx, jobs, req.Completed, req.MinRunners, req.MaxRunners)
	go func() {
		wg.Wait()
		close(samples)
	}()

	result := collect(ctx, samples, req.Limit)
	select {
	case err := <-errs:
		return nil, err
	default:
	}

	result.Summary.TotalEvaluated = atomic.LoadUint64(&evaluated)
	result.ID = uuid.NewString()
	result.EngineVersion = s.version
	result.Echo = req
	return result, nil
}

func metricOf(st engine.Stats, m Metric, u int) float64 {
	switch m {
	case MetricSafe:
		return st.SafeProbability()
	case MetricContinue:
		return st.ContinueProbability()
	case MetricQ:
		return engine.EvaluateAtRisk(st, 0).Q
	case MetricEV:
		return engine.EvaluateAtRisk(st, u).EV
	default:
		return st.BustProbability()
	}
}

// generateRunnerSets emits every subset of the open columns with a size in
// [lo, hi], in ascending mask order.
func generateRunnerSets(ctx context.Context, jobs chan<- engine.ColumnSet, completed engine.ColumnSet, lo, hi int) {
	defer close(jobs)

	var open []int
	for c := engine.MinColumn; c <= engine.MaxColumn; c++ {
		if !completed.Has(c) {
			open = append(open, c)
		}
	}

	for bits := 0; bits < 1<<len(open); bits++ {
		var set engine.ColumnSet
		for i, c := range open {
			if bits&(1<<i) != 0 {
				set = set.With(c)
			}
		}
		if n := set.Len(); n < lo || n > hi {
			continue
		}
		select {
		case jobs <- set:
		case <-ctx.Done():
			return
		}
	}
}

// collect drains samples into hits and summary statistics. The limit is
// applied after ordering so results do not depend on worker scheduling.
func collect(ctx context.Context, samples <-chan sample, limit int) *SweepResult {
	result := &SweepResult{Hits: []Hit{}}
	var sum float64
	var count int
	minMetric, maxMetric := math.Inf(1), math.Inf(-1)

	for collecting := true; collecting; {
		select {
		case smp, ok := <-samples:
			if !ok {
				// Workers also stop on cancellation, closing samples early.
				result.Summary.TimedOut = ctx.Err() != nil
				collecting = false
				break
			}
			count++
			sum += smp.metric
			minMetric = math.Min(minMetric, smp.metric)
			maxMetric = math.Max(maxMetric, smp.metric)
			if smp.hit {
				result.Hits = append(result.Hits, Hit{Runners: smp.runners, Metric: smp.metric})
			}
		case <-ctx.Done():
			result.Summary.TimedOut = true
			collecting = false
		}
	}

	sort.Slice(result.Hits, func(i, j int) bool {
		if result.Hits[i].Metric != result.Hits[j].Metric {
			return result.Hits[i].Metric > result.Hits[j].Metric
		}
		return result.Hits[i].Runners < result.Hits[j].Runners
	})
	result.Summary.HitsFound = len(result.Hits)
	if limit > 0 && len(result.Hits) > limit {
		result.Hits = result.Hits[:limit]
	}

	if count > 0 {
		result.Summary.MinMetric = minMetric
		result.Summary.MaxMetric = maxMetric
		result.Summary.MeanMetric = sum / float64(count)
	}
	return result
}
