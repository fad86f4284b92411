package lipid

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Key identifies one search task: a lipid class, an analyte within it, and the
// adduct or chemical modification searched for.
type Key struct {
	Class        string `json:"class"`
	Analyte      string `json:"analyte"`
	Modification string `json:"modification"`
}

// String renders the key the way it appears in logs, e.g. "PC 34:1 [M+H]+".
func (k Key) String() string {
	return strings.TrimSpace(k.Class + " " + k.Analyte + " " + k.Modification)
}

// Less orders keys lexically; it is used only for deterministic tie-breaks
// where insertion order is unavailable.
func (k Key) Less(other Key) bool {
	if k.Class != other.Class {
		return k.Class < other.Class
	}
	if k.Analyte != other.Analyte {
		return k.Analyte < other.Analyte
	}
	return k.Modification < other.Modification
}

var sumComposition = regexp.MustCompile(`(\d+):(\d+)`)

// Composition extracts total carbon and double-bond counts from an analyte
// label such as "34:1", "O-36:2" or "16:0_18:1". For chain-resolved labels the
// chains are summed.
func Composition(analyte string) (carbon, doubleBonds int, ok bool) {
	matches := sumComposition.FindAllStringSubmatch(analyte, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	for _, m := range matches {
		c, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, false
		}
		db, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, false
		}
		carbon += c
		doubleBonds += db
	}
	return carbon, doubleBonds, true
}

// RTKey quantizes a retention time (minutes) for use as a map key.
func RTKey(rt float64) int64 {
	return int64(math.Round(rt * 1000))
}

// Window is a retention-time interval in minutes.
type Window struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

// Contains reports whether rt lies inside the window, bounds included.
func (w Window) Contains(rt float64) bool {
	return rt >= w.Start && rt <= w.Stop
}

// Overlaps reports whether two windows share any retention time.
func (w Window) Overlaps(other Window) bool {
	return w.Start <= other.Stop && other.Start <= w.Stop
}

// Union returns the smallest window covering both.
func (w Window) Union(other Window) Window {
	return Window{Start: math.Min(w.Start, other.Start), Stop: math.Max(w.Stop, other.Stop)}
}

// Around returns a window of half-width tolerance centred on rt, never
// starting before zero.
func Around(rt, tolerance float64) Window {
	return Window{Start: math.Max(0, rt-tolerance), Stop: rt + tolerance}
}

func (w Window) String() string {
	return fmt.Sprintf("%.2f-%.2f", w.Start, w.Stop)
}
