package engine

import (
	"reflect"
	"sync"
	"testing"
)

func TestAnalyzerMatchesPureFunctions(t *testing.T) {
	a, err := NewAnalyzer(16)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	s := State{Active: MustColumnSet(6, 7), Temp: Progress{6: 1, 7: 1}}
	cands, _ := Candidates(Dice{1, 3, 4, 4}, s.Active, s.Completed)

	want, err := Analyze(s, cands)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	got, err := a.Analyze(s, cands)
	if err != nil {
		t.Fatalf("Analyzer.Analyze failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cached analysis differs from direct analysis")
	}

	ev, err := a.Evaluate(s.Active, s.Temp, s.Completed)
	if err != nil {
		t.Fatalf("Analyzer.Evaluate failed: %v", err)
	}
	if ev != want.Evaluation {
		t.Errorf("Expected %+v, got %+v", want.Evaluation, ev)
	}
}

func TestAnalyzerReusesSweepAcrossTemp(t *testing.T) {
	a, _ := NewAnalyzer(4)
	active := MustColumnSet(2, 3, 12)

	for i := 1; i <= 5; i++ {
		ev, err := a.Evaluate(active, Progress{2: i}, 0)
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if ev.U != i {
			t.Errorf("Expected U=%d, got %d", i, ev.U)
		}
	}

	cs := a.CacheStats()
	if cs.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", cs.Misses)
	}
	if cs.Hits != 4 {
		t.Errorf("Expected 4 hits, got %d", cs.Hits)
	}
	if cs.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", cs.Entries)
	}

	a.Purge()
	if a.CacheStats().Entries != 0 {
		t.Error("Expected empty cache after Purge")
	}
}

func TestAnalyzerEvicts(t *testing.T) {
	a, _ := NewAnalyzer(2)
	for _, c := range []int{4, 5, 6} {
		if _, err := a.Stats(Position{Active: MustColumnSet(c)}); err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
	}
	if n := a.CacheStats().Entries; n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestAnalyzerConcurrent(t *testing.T) {
	a, _ := NewAnalyzer(0)
	pos := Position{Active: MustColumnSet(6, 7, 8), Completed: MustColumnSet(2, 3, 4, 5, 9, 10, 11, 12)}

	var wg sync.WaitGroup
	results := make([]Stats, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := a.Stats(pos)
			if err != nil {
				t.Errorf("Stats failed: %v", err)
				return
			}
			results[i] = st
		}(i)
	}
	wg.Wait()

	for i, st := range results {
		if st.BustCount != 104 {
			t.Errorf("Goroutine %d: expected 104 busts, got %d", i, st.BustCount)
		}
	}
	if a.CacheStats().Entries != 1 {
		t.Errorf("Expected a single cached entry, got %d", a.CacheStats().Entries)
	}
}

func TestAnalyzerRejectsInvalidPosition(t *testing.T) {
	a, _ := NewAnalyzer(4)
	if _, err := a.Stats(Position{Active: MustColumnSet(2, 3, 4, 5)}); err == nil {
		t.Error("Expected error for four runners")
	}
	if a.CacheStats().Entries != 0 {
		t.Error("Invalid position was cached")
	}
}

func BenchmarkComputeStats(b *testing.B) {
	active := MustColumnSet(6, 7)
	for i := 0; i < b.N; i++ {
		if _, err := ComputeStats(active, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAnalyzeCached(b *testing.B) {
	a, _ := NewAnalyzer(DefaultCacheSize)
	s := State{Active: MustColumnSet(6, 7), Temp: Progress{6: 1, 7: 1}}
	cands, _ := Candidates(Dice{1, 3, 4, 4}, s.Active, s.Completed)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Analyze(s, cands); err != nil {
			b.Fatal(err)
		}
	}
}
