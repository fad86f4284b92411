package chrom

import (
	"lipidquant/internal/lipid"
)

type wireTarget struct {
	Class        string  `json:"class"`
	Analyte      string  `json:"analyte"`
	Modification string  `json:"modification"`
	Mz           float64 `json:"mz"`
	Charge       int     `json:"charge"`
}

type wireRequest struct {
	ID           uint64       `json:"id"`
	Targets      []wireTarget `json:"targets"`
	RTStart      float64      `json:"rt_start"`
	RTStop       float64      `json:"rt_stop"`
	Isotopes     int          `json:"isotopes"`
	TolerancePPM float64      `json:"tolerance_ppm"`
	Fragments    bool         `json:"fragments"`
}

type wireEvidence struct {
	Chains    []string `json:"chains"`
	Coverage  float64  `json:"coverage"`
	Intensity float64  `json:"intensity"`
}

type wireHit struct {
	Class        string        `json:"class"`
	Analyte      string        `json:"analyte"`
	Modification string        `json:"modification"`
	RT           float64       `json:"rt"`
	Confidence   int           `json:"confidence"`
	Probes       []lipid.Probe `json:"probes"`
	Evidence     *wireEvidence `json:"evidence"`
}

type wireResponse struct {
	ID    uint64    `json:"id"`
	Hits  []wireHit `json:"hits"`
	Error string    `json:"error"`
}

func encodeRequest(id uint64, q Query) wireRequest {
	req := wireRequest{
		ID:           id,
		Targets:      make([]wireTarget, 0, len(q.Targets)),
		RTStart:      q.Window.Start,
		RTStop:       q.Window.Stop,
		Isotopes:     q.Isotopes,
		TolerancePPM: q.TolerancePPM,
		Fragments:    q.RequireFragments,
	}
	for _, t := range q.Targets {
		req.Targets = append(req.Targets, wireTarget{
			Class:        t.Key.Class,
			Analyte:      t.Key.Analyte,
			Modification: t.Key.Modification,
			Mz:           t.Mz,
			Charge:       t.Charge,
		})
	}
	return req
}

// decodeHits converts wire hits. Area is always derived from the probes; the
// analyzer's own total is not trusted.
func decodeHits(in []wireHit) []lipid.Hit {
	out := make([]lipid.Hit, 0, len(in))
	for _, w := range in {
		hit := lipid.Hit{
			Key:        lipid.Key{Class: w.Class, Analyte: w.Analyte, Modification: w.Modification},
			RT:         w.RT,
			Probes:     append([]lipid.Probe(nil), w.Probes...),
			Confidence: w.Confidence,
		}
		if w.Evidence != nil {
			hit.Evidence = &lipid.Evidence{
				Chains:    append([]string(nil), w.Evidence.Chains...),
				Coverage:  w.Evidence.Coverage,
				Intensity: w.Evidence.Intensity,
			}
		}
		hit.RecomputeArea()
		out = append(out, hit)
	}
	return out
}
