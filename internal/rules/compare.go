package rules

import "lipidquant/internal/lipid"

// Candidate is a hit competing for a shared peak together with the insertion
// index of its work item.
type Candidate struct {
	Hit   *lipid.Hit
	Index int
}

// MoreLikely reports whether a is a better explanation of the shared peak
// than b. Fragment evidence wins first; then the rule's preferred criterion,
// identification confidence, probe count, and area. Insertion order settles
// exact ties, so the comparison is a strict total order over distinct items.
func (r Rule) MoreLikely(a, b Candidate) bool {
	if a.Hit.HasEvidence() != b.Hit.HasEvidence() {
		return a.Hit.HasEvidence()
	}
	switch r.Prefer {
	case PreferArea:
		if a.Hit.Area != b.Hit.Area {
			return a.Hit.Area > b.Hit.Area
		}
		if a.Hit.Coverage() != b.Hit.Coverage() {
			return a.Hit.Coverage() > b.Hit.Coverage()
		}
	default:
		if a.Hit.Coverage() != b.Hit.Coverage() {
			return a.Hit.Coverage() > b.Hit.Coverage()
		}
	}
	if a.Hit.Confidence != b.Hit.Confidence {
		return a.Hit.Confidence > b.Hit.Confidence
	}
	if len(a.Hit.Probes) != len(b.Hit.Probes) {
		return len(a.Hit.Probes) > len(b.Hit.Probes)
	}
	if a.Hit.Area != b.Hit.Area {
		return a.Hit.Area > b.Hit.Area
	}
	return a.Index < b.Index
}
