package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lipidquant/internal/chrom"
	"lipidquant/internal/lipid"
)

// FakeAnalyzer is an in-memory chrom.Opener. Searches return the canned hits
// of every targeted key whose retention time lies in the query window.
type FakeAnalyzer struct {
	Hits  map[lipid.Key][]lipid.Hit
	Fail  map[lipid.Key]error
	Delay time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	opened      int
	closed      int
	queries     []chrom.Query
}

// NewFakeAnalyzer returns an analyzer without canned hits.
func NewFakeAnalyzer() *FakeAnalyzer {
	return &FakeAnalyzer{Hits: make(map[lipid.Key][]lipid.Hit), Fail: make(map[lipid.Key]error)}
}

// Add registers a canned hit.
func (f *FakeAnalyzer) Add(hit lipid.Hit) {
	hit.RecomputeArea()
	f.Hits[hit.Key] = append(f.Hits[hit.Key], hit)
}

// Open implements chrom.Opener.
func (f *FakeAnalyzer) Open(_ context.Context, chromPath string, _ int) (chrom.SearchContext, error) {
	if chromPath == "" {
		return nil, fmt.Errorf("chromatogram path required")
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &fakeSearch{analyzer: f}, nil
}

// MaxInFlight is the largest number of concurrent searches observed.
func (f *FakeAnalyzer) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Opened and Closed count search contexts.
func (f *FakeAnalyzer) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *FakeAnalyzer) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Queries returns every query received, in arrival order.
func (f *FakeAnalyzer) Queries() []chrom.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chrom.Query(nil), f.queries...)
}

type fakeSearch struct {
	analyzer *FakeAnalyzer
	busy     bool
	closed   bool
}

func (s *fakeSearch) Search(ctx context.Context, q chrom.Query) ([]lipid.Hit, error) {
	f := s.analyzer
	if s.closed {
		return nil, fmt.Errorf("search context closed")
	}
	if s.busy {
		return nil, fmt.Errorf("search context shared between concurrent searches")
	}
	s.busy = true
	defer func() { s.busy = false }()

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	var out []lipid.Hit
	for _, target := range q.Targets {
		if err := f.Fail[target.Key]; err != nil {
			return nil, err
		}
		for _, hit := range f.Hits[target.Key] {
			if q.Window.Contains(hit.RT) {
				out = append(out, hit.Clone())
			}
		}
	}
	return out, nil
}

func (s *fakeSearch) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.analyzer.mu.Lock()
	s.analyzer.closed++
	s.analyzer.mu.Unlock()
	return nil
}

// PlainHit builds a hit with a single monoisotopic probe.
func PlainHit(key lipid.Key, rt, area float64) lipid.Hit {
	hit := lipid.Hit{
		Key:        key,
		RT:         rt,
		Confidence: 1,
		Probes: []lipid.Probe{{
			Isotope: 0,
			Start:   rt - 0.05,
			Apex:    rt,
			Stop:    rt + 0.05,
			Area:    area,
		}},
	}
	hit.RecomputeArea()
	return hit
}

// EvidenceHit builds a hit backed by fragment evidence.
func EvidenceHit(key lipid.Key, rt, area, coverage float64, chains ...string) lipid.Hit {
	hit := PlainHit(key, rt, area)
	hit.Confidence = 3
	hit.Evidence = &lipid.Evidence{Chains: chains, Coverage: coverage, Intensity: area / 10}
	return hit
}
