package quant

import (
	"sort"

	"lipidquant/internal/lipid"
)

type hitTable map[lipid.Key]map[int64]lipid.Hit

func (t hitTable) put(hit lipid.Hit) {
	byRT, ok := t[hit.Key]
	if !ok {
		byRT = make(map[int64]lipid.Hit)
		t[hit.Key] = byRT
	}
	rt := hit.RTKey()
	if existing, ok := byRT[rt]; ok && existing.Area >= hit.Area {
		return
	}
	byRT[rt] = hit.Clone()
}

func (t hitTable) count() int {
	n := 0
	for _, byRT := range t {
		n += len(byRT)
	}
	return n
}

// sorted returns the hits of every key ordered by retention time.
func (t hitTable) sorted() map[lipid.Key][]lipid.Hit {
	out := make(map[lipid.Key][]lipid.Hit, len(t))
	for key, byRT := range t {
		hits := make([]lipid.Hit, 0, len(byRT))
		for _, hit := range byRT {
			hits = append(hits, hit.Clone())
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].RT < hits[j].RT })
		out[key] = hits
	}
	return out
}

// ReconciliationState holds the raw results of one run, keyed by work item
// and quantized retention time. It is written only by the scheduler loop and
// discarded once the run's results are assembled.
type ReconciliationState struct {
	accepted  hitTable
	rejected  hitTable
	snapshots hitTable
	basePeak  float64
}

func newReconciliationState() *ReconciliationState {
	return &ReconciliationState{
		accepted:  make(hitTable),
		rejected:  make(hitTable),
		snapshots: make(hitTable),
	}
}

func (s *ReconciliationState) observe(hit lipid.Hit) {
	if area := hit.MaxProbeArea(); area > s.basePeak {
		s.basePeak = area
	}
}

func (s *ReconciliationState) accept(hit lipid.Hit) {
	s.observe(hit)
	s.accepted.put(hit)
}

func (s *ReconciliationState) reject(hit lipid.Hit) {
	s.observe(hit)
	s.rejected.put(hit)
}

func (s *ReconciliationState) snapshot(hit lipid.Hit) {
	s.observe(hit)
	s.snapshots.put(hit)
}

// Accepted returns accepted hits per key, ordered by retention time.
func (s *ReconciliationState) Accepted() map[lipid.Key][]lipid.Hit {
	return s.accepted.sorted()
}

// Snapshots returns the unpartitioned originals of split hits, keyed by work
// item and quantized retention time.
func (s *ReconciliationState) Snapshots() map[lipid.Key]map[int64]lipid.Hit {
	out := make(map[lipid.Key]map[int64]lipid.Hit, len(s.snapshots))
	for key, byRT := range s.snapshots {
		copyRT := make(map[int64]lipid.Hit, len(byRT))
		for rt, hit := range byRT {
			copyRT[rt] = hit.Clone()
		}
		out[key] = copyRT
	}
	return out
}

// RejectedCount returns how many hits lacked required fragment evidence.
func (s *ReconciliationState) RejectedCount() int {
	return s.rejected.count()
}

// AcceptedCount returns the number of accepted hits.
func (s *ReconciliationState) AcceptedCount() int {
	return s.accepted.count()
}

// BasePeak is the largest probe area observed anywhere in the run, including
// rejected hits and pre-split snapshots.
func (s *ReconciliationState) BasePeak() float64 {
	return s.basePeak
}
