package masslist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lipidquant/internal/lipid"
	"lipidquant/internal/services"
	"lipidquant/internal/textutil"
)

// Options controls how a definition file is expanded into work items.
type Options struct {
	// IsobarTolerancePPM links items whose m/z differ by at most this much.
	IsobarTolerancePPM float64
}

// Definition is a parsed analyte-definition file.
type Definition struct {
	Path    string
	Name    string
	RTRange lipid.Window
	Classes []string
	items   []*lipid.Item
}

// Items returns a fresh copy of the work items in insertion order with every
// status reset to waiting. Each quantification run gets its own copy.
func (d *Definition) Items() []*lipid.Item {
	out := make([]*lipid.Item, len(d.items))
	for i, item := range d.items {
		clone := item.Clone()
		clone.Status = lipid.StatusWaiting
		out[i] = clone
	}
	return out
}

// Len returns the number of work items.
func (d *Definition) Len() int {
	return len(d.items)
}

type fileDoc struct {
	Name    string      `yaml:"name"`
	RTRange []float64   `yaml:"rt_range"`
	Classes []classSpec `yaml:"classes"`
}

type classSpec struct {
	Name     string        `yaml:"name"`
	Adducts  []adductSpec  `yaml:"adducts"`
	Analytes []analyteSpec `yaml:"analytes"`
}

type adductSpec struct {
	Name      string  `yaml:"name"`
	MassShift float64 `yaml:"mass_shift"`
	Charge    int     `yaml:"charge"`
}

type analyteSpec struct {
	Name        string         `yaml:"name"`
	NeutralMass float64        `yaml:"neutral_mass"`
	RT          *float64       `yaml:"rt"`
	RTTolerance float64        `yaml:"rt_tolerance"`
	Positions   []positionSpec `yaml:"positions"`
}

type positionSpec struct {
	Assignment string   `yaml:"assignment"`
	Chains     []string `yaml:"chains"`
	RTStart    float64  `yaml:"rt_start"`
	RTStop     float64  `yaml:"rt_stop"`
	Accuracy   float64  `yaml:"accuracy"`
}

const defaultRTTolerance = 0.5

var defaultRTRange = lipid.Window{Start: 0, Stop: 60}

// Load reads and expands a definition file. Every failure is a configuration
// error: a run cannot start without a usable definition.
func Load(path string, opts Options) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "masslist", "read", path, err)
	}
	def, err := Parse(data, opts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "masslist", "parse", path, err)
	}
	def.Path = path
	return def, nil
}

// Parse expands definition YAML into work items.
func Parse(data []byte, opts Options) (*Definition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc fileDoc
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("definition is empty")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	def := &Definition{Name: strings.TrimSpace(doc.Name), RTRange: defaultRTRange}
	if len(doc.RTRange) != 0 {
		if len(doc.RTRange) != 2 || doc.RTRange[1] <= doc.RTRange[0] || doc.RTRange[0] < 0 {
			return nil, fmt.Errorf("rt_range must be [start, stop] with 0 <= start < stop, got %v", doc.RTRange)
		}
		def.RTRange = lipid.Window{Start: doc.RTRange[0], Stop: doc.RTRange[1]}
	}

	seen := make(map[lipid.Key]struct{})
	for ci, class := range doc.Classes {
		className := textutil.NormalizeLabel(class.Name)
		if className == "" {
			return nil, fmt.Errorf("classes[%d]: name is required", ci)
		}
		if len(class.Adducts) == 0 {
			return nil, fmt.Errorf("class %s: at least one adduct is required", className)
		}
		def.Classes = append(def.Classes, className)

		for ai, analyte := range class.Analytes {
			analyteName := textutil.NormalizeLabel(analyte.Name)
			if analyteName == "" {
				return nil, fmt.Errorf("class %s analytes[%d]: name is required", className, ai)
			}
			if analyte.NeutralMass <= 0 {
				return nil, fmt.Errorf("class %s analyte %s: neutral_mass must be positive", className, analyteName)
			}
			window, err := analyteWindow(analyte, def.RTRange)
			if err != nil {
				return nil, fmt.Errorf("class %s analyte %s: %w", className, analyteName, err)
			}
			positions, err := positionEvidence(analyte.Positions)
			if err != nil {
				return nil, fmt.Errorf("class %s analyte %s: %w", className, analyteName, err)
			}
			carbon, doubleBonds, hasComposition := lipid.Composition(analyteName)

			for _, adduct := range class.Adducts {
				adductName := textutil.NormalizeLabel(adduct.Name)
				if adductName == "" {
					return nil, fmt.Errorf("class %s: adduct name is required", className)
				}
				if adduct.Charge == 0 {
					return nil, fmt.Errorf("class %s adduct %s: charge must be non-zero", className, adductName)
				}
				key := lipid.Key{Class: className, Analyte: analyteName, Modification: adductName}
				if _, dup := seen[key]; dup {
					return nil, fmt.Errorf("duplicate work item %s", key)
				}
				seen[key] = struct{}{}

				item := &lipid.Item{
					Key:            key,
					Index:          len(def.items),
					NeutralMass:    analyte.NeutralMass,
					Mz:             (analyte.NeutralMass + adduct.MassShift) / math.Abs(float64(adduct.Charge)),
					Charge:         adduct.Charge,
					Window:         window,
					Carbon:         carbon,
					DoubleBonds:    doubleBonds,
					HasComposition: hasComposition,
					Status:         lipid.StatusWaiting,
				}
				for _, p := range positions {
					item.Positions = append(item.Positions, p.Clone())
				}
				def.items = append(def.items, item)
			}
		}
	}

	if len(def.items) == 0 {
		return nil, errors.New("definition contains no analytes")
	}
	linkIsobars(def.items, opts.IsobarTolerancePPM)
	return def, nil
}

func analyteWindow(entry analyteSpec, rtRange lipid.Window) (lipid.Window, error) {
	if entry.RT == nil {
		return rtRange, nil
	}
	tolerance := entry.RTTolerance
	if tolerance < 0 {
		return lipid.Window{}, errors.New("rt_tolerance must be >= 0")
	}
	if tolerance == 0 {
		tolerance = defaultRTTolerance
	}
	if *entry.RT < 0 {
		return lipid.Window{}, errors.New("rt must be >= 0")
	}
	return lipid.Around(*entry.RT, tolerance), nil
}

func positionEvidence(specs []positionSpec) ([]lipid.PositionEvidence, error) {
	out := make([]lipid.PositionEvidence, 0, len(specs))
	for i, entry := range specs {
		assignment := textutil.NormalizeLabel(entry.Assignment)
		if assignment == "" {
			return nil, fmt.Errorf("positions[%d]: assignment is required", i)
		}
		if entry.RTStop < entry.RTStart {
			return nil, fmt.Errorf("positions[%d]: rt_stop before rt_start", i)
		}
		if entry.Accuracy < 0 || entry.Accuracy > 1 {
			return nil, fmt.Errorf("positions[%d]: accuracy must be between 0 and 1", i)
		}
		chains := make([]string, 0, len(entry.Chains))
		for _, c := range entry.Chains {
			chains = append(chains, textutil.NormalizeLabel(c))
		}
		out = append(out, lipid.PositionEvidence{
			Assignment: assignment,
			Chains:     chains,
			Window:     lipid.Window{Start: entry.RTStart, Stop: entry.RTStop},
			Accuracy:   entry.Accuracy,
		})
	}
	return out, nil
}

// linkIsobars records, for every item, the other items whose m/z lies within
// tolerancePPM and whose retention windows overlap. Alternatives keep
// insertion order.
func linkIsobars(items []*lipid.Item, tolerancePPM float64) {
	if tolerancePPM <= 0 {
		return
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return items[order[a]].Mz < items[order[b]].Mz })

	related := make([][]int, len(items))
	for a := 0; a < len(order); a++ {
		left := items[order[a]]
		for b := a + 1; b < len(order); b++ {
			right := items[order[b]]
			if (right.Mz-left.Mz)/left.Mz*1e6 > tolerancePPM {
				break
			}
			if (left.Charge > 0) != (right.Charge > 0) {
				continue
			}
			if !left.Window.Overlaps(right.Window) {
				continue
			}
			related[order[a]] = append(related[order[a]], order[b])
			related[order[b]] = append(related[order[b]], order[a])
		}
	}
	for i, others := range related {
		sort.Ints(others)
		for _, j := range others {
			items[i].Alternatives = append(items[i].Alternatives, items[j].Key)
		}
	}
}
