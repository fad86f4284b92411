package reconcile

import (
	"sort"

	"lipidquant/internal/lipid"
)

// State is the collection the rules operate on.
type State struct {
	// Items are the run's work items in insertion order.
	Items []*lipid.Item
	// Hits are the hits of every key, ordered by retention time.
	Hits map[lipid.Key][]lipid.Hit
	// Snapshots are unpartitioned originals of split hits by quantized RT.
	Snapshots map[lipid.Key]map[int64]lipid.Hit
	// BasePeak is the largest probe area observed in the run.
	BasePeak float64
}

// Clone deep-copies the hit collections. Items are shared; the rules never
// modify them.
func (s State) Clone() State {
	out := State{Items: s.Items, BasePeak: s.BasePeak}
	out.Hits = make(map[lipid.Key][]lipid.Hit, len(s.Hits))
	for key, hits := range s.Hits {
		if len(hits) == 0 {
			continue
		}
		out.Hits[key] = lipid.CloneHits(hits)
	}
	out.Snapshots = make(map[lipid.Key]map[int64]lipid.Hit, len(s.Snapshots))
	for key, byRT := range s.Snapshots {
		copyRT := make(map[int64]lipid.Hit, len(byRT))
		for rt, hit := range byRT {
			copyRT[rt] = hit.Clone()
		}
		out.Snapshots[key] = copyRT
	}
	return out
}

// Count returns the number of hits.
func (s State) Count() int {
	n := 0
	for _, hits := range s.Hits {
		n += len(hits)
	}
	return n
}

// ClassHits is the final hit list of one class.
type ClassHits struct {
	Class string      `json:"class"`
	Hits  []lipid.Hit `json:"hits"`
}

// Classes groups hits by class in first-appearance order of the items. Within
// a class hits follow item insertion order, then retention time. Classes
// without hits are omitted.
func (s State) Classes() []ClassHits {
	var out []ClassHits
	index := make(map[string]int)
	for _, item := range s.Items {
		hits := s.Hits[item.Key]
		if len(hits) == 0 {
			continue
		}
		pos, ok := index[item.Key.Class]
		if !ok {
			pos = len(out)
			index[item.Key.Class] = pos
			out = append(out, ClassHits{Class: item.Key.Class})
		}
		sorted := lipid.CloneHits(hits)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RT < sorted[j].RT })
		out[pos].Hits = append(out[pos].Hits, sorted...)
	}
	return out
}

func (s State) itemsByKey() map[lipid.Key]*lipid.Item {
	out := make(map[lipid.Key]*lipid.Item, len(s.Items))
	for _, item := range s.Items {
		out[item.Key] = item
	}
	return out
}

// sortedKeys returns the keys with hits in item insertion order, followed by
// unknown keys in lexical order.
func (s State) sortedKeys() []lipid.Key {
	byKey := s.itemsByKey()
	keys := make([]lipid.Key, 0, len(s.Hits))
	for key := range s.Hits {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aok := byKey[keys[i]]
		b, bok := byKey[keys[j]]
		switch {
		case aok && bok:
			return a.Index < b.Index
		case aok != bok:
			return aok
		default:
			return keys[i].Less(keys[j])
		}
	})
	return keys
}

func (s State) setHits(key lipid.Key, hits []lipid.Hit) {
	if len(hits) == 0 {
		delete(s.Hits, key)
		return
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].RT < hits[j].RT })
	s.Hits[key] = hits
}
