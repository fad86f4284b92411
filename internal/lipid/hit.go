package lipid

import (
	"sort"
)

// Probe is one detected peak region for a single isotope of a hit.
type Probe struct {
	Isotope int     `json:"isotope"`
	Start   float64 `json:"start"`
	Apex    float64 `json:"apex"`
	Stop    float64 `json:"stop"`
	Area    float64 `json:"area"`
}

// Evidence is fragment-level support for a hit.
type Evidence struct {
	// Chains are the fatty acyl chains identified from fragments, e.g. "16:0".
	Chains []string `json:"chains,omitempty"`
	// Coverage is the fraction of expected fragments observed, 0..1.
	Coverage float64 `json:"coverage"`
	// Intensity is the summed fragment intensity, used to apportion split peaks.
	Intensity float64 `json:"intensity"`
}

// Split marks a hit that holds only a fraction of a shared chromatographic peak.
type Split struct {
	Partner  Key     `json:"partner"`
	Fraction float64 `json:"fraction"`
}

// Annotation is a double-bond position assignment attached to a hit.
type Annotation struct {
	Assignment string  `json:"assignment"`
	Accuracy   float64 `json:"accuracy"`
	Assigned   bool    `json:"assigned"`
}

// PositionEvidence is independent double-bond position information for an
// analyte, plausible only inside its retention-time window.
type PositionEvidence struct {
	Assignment string   `json:"assignment"`
	Chains     []string `json:"chains,omitempty"`
	Window     Window   `json:"window"`
	Accuracy   float64  `json:"accuracy"`
}

// Clone returns a deep copy.
func (p PositionEvidence) Clone() PositionEvidence {
	p.Chains = append([]string(nil), p.Chains...)
	return p
}

// Hit is a candidate result for one key at one retention time.
type Hit struct {
	Key         Key          `json:"key"`
	RT          float64      `json:"rt"`
	Probes      []Probe      `json:"probes"`
	Area        float64      `json:"area"`
	Confidence  int          `json:"confidence"`
	Evidence    *Evidence    `json:"evidence,omitempty"`
	Split       *Split       `json:"split,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// HasEvidence reports whether the hit is the evidence-backed variant.
func (h *Hit) HasEvidence() bool {
	return h != nil && h.Evidence != nil
}

// Coverage returns fragment coverage, zero for plain hits.
func (h *Hit) Coverage() float64 {
	if h.Evidence == nil {
		return 0
	}
	return h.Evidence.Coverage
}

// Chains returns the fragment-identified chains, nil for plain hits.
func (h *Hit) Chains() []string {
	if h.Evidence == nil {
		return nil
	}
	return h.Evidence.Chains
}

// RTKey returns the quantized retention time of the hit.
func (h *Hit) RTKey() int64 {
	return RTKey(h.RT)
}

// RecomputeArea sets Area to the sum of probe areas.
func (h *Hit) RecomputeArea() {
	var total float64
	for _, p := range h.Probes {
		total += p.Area
	}
	h.Area = total
}

// MaxProbeArea returns the largest single probe area.
func (h *Hit) MaxProbeArea() float64 {
	var best float64
	for _, p := range h.Probes {
		if p.Area > best {
			best = p.Area
		}
	}
	return best
}

// Clone returns a deep copy of the hit.
func (h Hit) Clone() Hit {
	out := h
	out.Probes = append([]Probe(nil), h.Probes...)
	if h.Evidence != nil {
		ev := *h.Evidence
		ev.Chains = append([]string(nil), h.Evidence.Chains...)
		out.Evidence = &ev
	}
	if h.Split != nil {
		split := *h.Split
		out.Split = &split
	}
	out.Annotations = append([]Annotation(nil), h.Annotations...)
	return out
}

// CloneHits deep-copies a hit slice.
func CloneHits(hits []Hit) []Hit {
	if hits == nil {
		return nil
	}
	out := make([]Hit, len(hits))
	for i := range hits {
		out[i] = hits[i].Clone()
	}
	return out
}

// SameChains reports whether two chain lists are equal as multisets.
func SameChains(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
