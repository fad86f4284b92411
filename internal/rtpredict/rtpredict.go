// Package rtpredict fits a small linear retention-time model for one lipid
// class and modification from siblings that were confidently identified.
//
// Within a class, reversed-phase retention grows with total carbon number and
// falls with double bonds, so RT = a + b*C + d*DB is fitted by ordinary least
// squares. When the siblings do not vary in double bonds the model drops to
// RT = a + b*C.
package rtpredict

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficient is returned when the siblings cannot support a fit.
var ErrInsufficient = errors.New("insufficient siblings for retention time prediction")

// Point is one confidently identified sibling.
type Point struct {
	Carbon      int
	DoubleBonds int
	RT          float64
}

// Model predicts retention time from composition.
type Model struct {
	Intercept   float64
	CarbonSlope float64
	BondSlope   float64
	Siblings    int
}

// Predict returns the modelled retention time.
func (m Model) Predict(carbon, doubleBonds int) float64 {
	return m.Intercept + m.CarbonSlope*float64(carbon) + m.BondSlope*float64(doubleBonds)
}

// Usable reports whether a prediction lies inside [lo, hi].
func Usable(rt, lo, hi float64) bool {
	return !math.IsNaN(rt) && !math.IsInf(rt, 0) && rt >= lo && rt <= hi
}

// Fit estimates a model from at least minSiblings points.
func Fit(points []Point, minSiblings int) (Model, error) {
	if minSiblings < 2 {
		minSiblings = 2
	}
	if len(points) < minSiblings {
		return Model{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficient, len(points), minSiblings)
	}
	if !varies(points, func(p Point) int { return p.Carbon }) {
		return Model{}, fmt.Errorf("%w: all siblings share carbon number", ErrInsufficient)
	}
	if len(points) >= 3 && varies(points, func(p Point) int { return p.DoubleBonds }) {
		if model, ok := fitTwo(points); ok {
			return model, nil
		}
	}
	return fitOne(points), nil
}

func varies(points []Point, value func(Point) int) bool {
	first := value(points[0])
	for _, p := range points[1:] {
		if value(p) != first {
			return true
		}
	}
	return false
}

// fitOne solves RT = a + b*C.
func fitOne(points []Point) Model {
	n := float64(len(points))
	var sumC, sumY float64
	for _, p := range points {
		sumC += float64(p.Carbon)
		sumY += p.RT
	}
	meanC, meanY := sumC/n, sumY/n
	var sxx, sxy float64
	for _, p := range points {
		dc := float64(p.Carbon) - meanC
		sxx += dc * dc
		sxy += dc * (p.RT - meanY)
	}
	slope := sxy / sxx
	return Model{Intercept: meanY - slope*meanC, CarbonSlope: slope, Siblings: len(points)}
}

// fitTwo solves RT = a + b*C + d*DB from centred normal equations.
func fitTwo(points []Point) (Model, bool) {
	n := float64(len(points))
	var sumC, sumD, sumY float64
	for _, p := range points {
		sumC += float64(p.Carbon)
		sumD += float64(p.DoubleBonds)
		sumY += p.RT
	}
	meanC, meanD, meanY := sumC/n, sumD/n, sumY/n

	var scc, sdd, scd, scy, sdy float64
	for _, p := range points {
		dc := float64(p.Carbon) - meanC
		dd := float64(p.DoubleBonds) - meanD
		dy := p.RT - meanY
		scc += dc * dc
		sdd += dd * dd
		scd += dc * dd
		scy += dc * dy
		sdy += dd * dy
	}
	det := scc*sdd - scd*scd
	if math.Abs(det) < 1e-9 {
		return Model{}, false
	}
	b := (scy*sdd - sdy*scd) / det
	d := (sdy*scc - scy*scd) / det
	return Model{
		Intercept:   meanY - b*meanC - d*meanD,
		CarbonSlope: b,
		BondSlope:   d,
		Siblings:    len(points),
	}, true
}
