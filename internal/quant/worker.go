package quant

import (
	"context"
	"fmt"
	"math"
	"sort"

	"lipidquant/internal/chrom"
	"lipidquant/internal/lipid"
)

// round is the scheduling round of an assignment. Only the first round may
// defer items; the re-open round always resolves them.
type round uint8

const (
	firstRound round = iota + 1
	reopenRound
)

func (r round) canDefer() bool {
	return r == firstRound
}

func (r round) String() string {
	if r == reopenRound {
		return "reopen"
	}
	return "first"
}

// Assignment is one search pass handed to a slot.
type Assignment struct {
	Item             *lipid.Item
	Group            []*lipid.Item
	Window           lipid.Window
	RequireFragments bool
	round            round
}

// WorkResult is what a worker hands back to the scheduler.
type WorkResult struct {
	Assignment Assignment
	// Hits holds the ranked hits of every key searched in the pass.
	Hits map[lipid.Key][]lipid.Hit
	// Snapshots holds the unpartitioned originals of hits that were split.
	Snapshots map[lipid.Key][]lipid.Hit
}

// Worker searches one work item and its isobaric alternatives in a single
// pass over a slot's search context.
type Worker struct {
	Isotopes            int
	TolerancePPM        float64
	SamePeakRTTolerance float64
}

// Run performs the pass. An error means the search itself failed and the
// run cannot be trusted.
func (w Worker) Run(ctx context.Context, search chrom.SearchContext, a Assignment) (WorkResult, error) {
	query := chrom.Query{
		Targets:          chrom.TargetsFor(a.Group...),
		Window:           a.Window,
		Isotopes:         w.Isotopes,
		TolerancePPM:     w.TolerancePPM,
		RequireFragments: a.RequireFragments,
	}
	raw, err := search.Search(ctx, query)
	if err != nil {
		return WorkResult{}, err
	}

	requested := make(map[lipid.Key]struct{}, len(a.Group))
	for _, item := range a.Group {
		requested[item.Key] = struct{}{}
	}
	hits := make([]lipid.Hit, 0, len(raw))
	for _, hit := range raw {
		if _, ok := requested[hit.Key]; !ok {
			return WorkResult{}, fmt.Errorf("analyzer returned a hit for unrequested item %s", hit.Key)
		}
		if len(hit.Probes) == 0 || !a.Window.Contains(hit.RT) {
			continue
		}
		hit.RecomputeArea()
		hits = append(hits, hit)
	}

	result := WorkResult{
		Assignment: a,
		Hits:       make(map[lipid.Key][]lipid.Hit, len(a.Group)),
		Snapshots:  make(map[lipid.Key][]lipid.Hit),
	}
	for _, original := range splitSharedPeaks(hits, w.SamePeakRTTolerance) {
		result.Snapshots[original.Key] = append(result.Snapshots[original.Key], original)
	}
	for _, hit := range hits {
		result.Hits[hit.Key] = append(result.Hits[hit.Key], hit)
	}
	for key := range result.Hits {
		rankHits(result.Hits[key])
	}
	return result, nil
}

// rankHits orders hits of one key by area, largest first, then by time.
func rankHits(hits []lipid.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Area != hits[j].Area {
			return hits[i].Area > hits[j].Area
		}
		return hits[i].RT < hits[j].RT
	})
}

// splitSharedPeaks apportions a peak claimed by exactly two different keys,
// both backed by fragment evidence, in proportion to fragment intensity. The
// hits are modified in place and the unpartitioned originals are returned.
func splitSharedPeaks(hits []lipid.Hit, tolerance float64) []lipid.Hit {
	order := make([]int, len(hits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return hits[order[a]].RT < hits[order[b]].RT })

	var originals []lipid.Hit
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && hits[order[end]].RT-hits[order[end-1]].RT <= tolerance {
			end++
		}
		if end-start == 2 {
			a, b := &hits[order[start]], &hits[order[start+1]]
			if splittable(a, b) {
				originals = append(originals, a.Clone(), b.Clone())
				total := a.Evidence.Intensity + b.Evidence.Intensity
				partition(a, b.Key, a.Evidence.Intensity/total)
				partition(b, a.Key, b.Evidence.Intensity/total)
			}
		}
		start = end
	}
	return originals
}

func splittable(a, b *lipid.Hit) bool {
	if a.Key == b.Key || a.Split != nil || b.Split != nil {
		return false
	}
	if !a.HasEvidence() || !b.HasEvidence() {
		return false
	}
	return a.Evidence.Intensity > 0 && b.Evidence.Intensity > 0
}

func partition(hit *lipid.Hit, partner lipid.Key, fraction float64) {
	fraction = math.Round(fraction*1e6) / 1e6
	for i := range hit.Probes {
		hit.Probes[i].Area *= fraction
	}
	hit.RecomputeArea()
	hit.Split = &lipid.Split{Partner: partner, Fraction: fraction}
}
