package chrom

import (
	"context"

	"lipidquant/internal/lipid"
)

// Target is one m/z searched in a pass.
type Target struct {
	Key    lipid.Key
	Mz     float64
	Charge int
}

// Query describes one search pass over a chromatogram.
type Query struct {
	Targets      []Target
	Window       lipid.Window
	Isotopes     int
	TolerancePPM float64
	// RequireFragments asks the analyzer to collect fragment evidence.
	RequireFragments bool
}

// SearchContext searches one chromatogram. Implementations are not safe for
// concurrent use.
type SearchContext interface {
	Search(ctx context.Context, q Query) ([]lipid.Hit, error)
	Close() error
}

// Opener binds a new SearchContext to a chromatogram for one slot.
type Opener interface {
	Open(ctx context.Context, chromPath string, slot int) (SearchContext, error)
}

// TargetsFor builds search targets for items in the given order.
func TargetsFor(items ...*lipid.Item) []Target {
	targets := make([]Target, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		targets = append(targets, Target{Key: item.Key, Mz: item.Mz, Charge: item.Charge})
	}
	return targets
}
