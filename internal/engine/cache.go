package engine

import (
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of positions an Analyzer remembers.
const DefaultCacheSize = 512

// Analyzer memoizes outcome sweeps by (active, completed). Temp progress
// only changes U, so one sweep serves every temp map on the same position.
// It is safe for concurrent use; concurrent misses on one position share a
// single sweep.
type Analyzer struct {
	cache  *lru.Cache[Position, Stats]
	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewAnalyzer creates an analyzer holding up to size positions. A size <= 0
// falls back to DefaultCacheSize.
func NewAnalyzer(size int) (*Analyzer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[Position, Stats](size)
	if err != nil {
		return nil, err
	}
	return &Analyzer{cache: cache}, nil
}

// Stats returns the sweep for a position, computing it at most once while it
// stays cached.
func (a *Analyzer) Stats(pos Position) (Stats, error) {
	if err := pos.Validate(); err != nil {
		return Stats{}, err
	}
	if st, ok := a.cache.Get(pos); ok {
		a.hits.Add(1)
		return st, nil
	}
	key := strconv.FormatUint(uint64(pos.Active), 16) + "/" + strconv.FormatUint(uint64(pos.Completed), 16)
	v, _, _ := a.group.Do(key, func() (interface{}, error) {
		if st, ok := a.cache.Get(pos); ok {
			return st, nil
		}
		a.misses.Add(1)
		st := sweep(pos)
		a.cache.Add(pos, st)
		return st, nil
	})
	return v.(Stats), nil
}

// Evaluate is the package-level Evaluate backed by the cache.
func (a *Analyzer) Evaluate(active ColumnSet, temp Progress, completed ColumnSet) (Evaluation, error) {
	s := State{Active: active, Completed: completed, Temp: temp}
	if err := s.Validate(); err != nil {
		return Evaluation{}, err
	}
	st, err := a.Stats(s.Position())
	if err != nil {
		return Evaluation{}, err
	}
	return evaluateWith(st, temp), nil
}

// Analyze is the package-level Analyze backed by the cache.
func (a *Analyzer) Analyze(s State, candidates []Candidate) (Analysis, error) {
	return analyze(s, candidates, a.Stats)
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CacheStats returns a snapshot of the cache counters.
func (a *Analyzer) CacheStats() CacheStats {
	return CacheStats{
		Entries: a.cache.Len(),
		Hits:    a.hits.Load(),
		Misses:  a.misses.Load(),
	}
}

// Purge drops every cached position.
func (a *Analyzer) Purge() {
	a.cache.Purge()
}
