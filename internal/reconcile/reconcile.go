package reconcile

import (
	"log/slog"
	"math"
	"sort"

	"lipidquant/internal/config"
	"lipidquant/internal/lipid"
	"lipidquant/internal/logging"
	"lipidquant/internal/rules"
)

// Policy resolves rule metadata for a class and modification.
type Policy interface {
	Lookup(class, modification string) (rules.Rule, error)
}

// Options holds reconciliation thresholds.
type Options struct {
	CutoffPermille      float64
	SamePeakRTTolerance float64
}

// OptionsFromConfig maps the reconciliation section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CutoffPermille:      cfg.Reconciliation.BasePeakCutoffPermille,
		SamePeakRTTolerance: cfg.Reconciliation.SamePeakRTTolerance,
	}
}

// Skipped names a class left out of the result because its rules failed.
type Skipped struct {
	Class  string `json:"class"`
	Reason string `json:"reason"`
}

type classModification struct {
	class        string
	modification string
}

// Processor applies the reconciliation rules.
type Processor struct {
	opts   Options
	policy Policy
	logger *slog.Logger
}

// New constructs a processor.
func New(opts Options, policy Policy, logger *slog.Logger) *Processor {
	return &Processor{
		opts:   opts,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Apply runs the four rules over a copy of st. Classes whose rule metadata
// cannot be resolved are removed and reported; the rest proceed.
func (p *Processor) Apply(st State) (State, []Skipped) {
	out := st.Clone()
	resolved, skipped := p.resolveRules(out)
	for _, s := range skipped {
		for key := range out.Hits {
			if key.Class == s.Class {
				delete(out.Hits, key)
			}
		}
		logging.WarnWithContext(p.logger, "class skipped during reconciliation", "reconcile_skip",
			logging.String("class", s.Class),
			logging.String("reason", s.Reason),
			logging.String(logging.FieldErrorHint, "fix the class rule file in paths.rules_dir"),
			logging.String(logging.FieldImpact, "no hits are reported for this class"),
		)
	}

	before := out.Count()
	out = p.Cutoff(out)
	afterCutoff := out.Count()
	out = p.resolveIsobars(out, resolved)
	afterIsobars := out.Count()
	out = p.Reunify(out)
	out = p.annotate(out, resolved)

	p.logger.Debug("reconciliation finished",
		logging.Int("hits_in", before),
		logging.Int("cutoff_removed", before-afterCutoff),
		logging.Int("isobar_removed", afterCutoff-afterIsobars),
		logging.Int("hits_out", out.Count()),
		logging.Float64("base_peak", out.BasePeak),
	)
	return out, skipped
}

func (p *Processor) resolveRules(st State) (map[classModification]rules.Rule, []Skipped) {
	resolved := make(map[classModification]rules.Rule)
	failed := make(map[string]string)
	var order []string
	for _, key := range st.sortedKeys() {
		cm := classModification{key.Class, key.Modification}
		if _, ok := resolved[cm]; ok {
			continue
		}
		if _, bad := failed[key.Class]; bad {
			continue
		}
		rule := rules.Rule{Class: key.Class, Modification: key.Modification, Version: rules.BuiltinVersion, Prefer: rules.PreferCoverage}
		if p.policy != nil {
			r, err := p.policy.Lookup(key.Class, key.Modification)
			if err != nil {
				failed[key.Class] = err.Error()
				order = append(order, key.Class)
				continue
			}
			rule = r
		}
		resolved[cm] = rule
	}
	var skipped []Skipped
	for _, class := range order {
		skipped = append(skipped, Skipped{Class: class, Reason: failed[class]})
	}
	return resolved, skipped
}

// Threshold returns the minimum probe area kept by the cutoff rule.
func (p *Processor) Threshold(basePeak float64) float64 {
	return basePeak * p.opts.CutoffPermille / 1000
}

// Cutoff drops probes below the threshold and hits left without probes.
func (p *Processor) Cutoff(st State) State {
	out := st.Clone()
	threshold := p.Threshold(out.BasePeak)
	for _, key := range out.sortedKeys() {
		var kept []lipid.Hit
		for _, hit := range out.Hits[key] {
			if trimmed, ok := trimProbes(hit, threshold); ok {
				kept = append(kept, trimmed)
			}
		}
		out.setHits(key, kept)
	}
	return out
}

func trimProbes(hit lipid.Hit, threshold float64) (lipid.Hit, bool) {
	probes := make([]lipid.Probe, 0, len(hit.Probes))
	for _, probe := range hit.Probes {
		if probe.Area >= threshold {
			probes = append(probes, probe)
		}
	}
	if len(probes) == 0 {
		return hit, false
	}
	if len(probes) != len(hit.Probes) {
		hit.Probes = probes
		hit.RecomputeArea()
	}
	return hit, true
}

// ResolveIsobars keeps one explanation per shared peak, using the rules of
// the policy.
func (p *Processor) ResolveIsobars(st State) State {
	resolved, _ := p.resolveRules(st)
	return p.resolveIsobars(st.Clone(), resolved)
}

type entry struct {
	key  lipid.Key
	pos  int
	hit  *lipid.Hit
	item *lipid.Item
}

func (p *Processor) resolveIsobars(st State, resolved map[classModification]rules.Rule) State {
	out := st.Clone()
	byKey := out.itemsByKey()

	var entries []entry
	for _, key := range out.sortedKeys() {
		hits := out.Hits[key]
		for i := range hits {
			entries = append(entries, entry{key: key, pos: i, hit: &hits[i], item: byKey[key]})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].hit.RT < entries[j].hit.RT })

	uf := newUnionFind(len(entries))
	for i := range entries {
		for j := i + 1; j < len(entries) && entries[j].hit.RT-entries[i].hit.RT <= p.opts.SamePeakRTTolerance; j++ {
			if p.competes(entries[i], entries[j]) {
				uf.union(i, j)
			}
		}
	}

	removed := make(map[lipid.Key]map[int]bool)
	for _, component := range uf.components() {
		if len(component) < 2 {
			continue
		}
		members := make([]entry, 0, len(component))
		for _, idx := range component {
			members = append(members, entries[idx])
		}
		keep := p.survivors(members, resolved)
		for i, m := range members {
			if keep[i] {
				continue
			}
			if removed[m.key] == nil {
				removed[m.key] = make(map[int]bool)
			}
			removed[m.key][m.pos] = true
		}
	}

	for key, positions := range removed {
		var kept []lipid.Hit
		for i, hit := range out.Hits[key] {
			if !positions[i] {
				kept = append(kept, hit)
			}
		}
		out.setHits(key, kept)
	}
	return out
}

func isobaric(a, b entry) bool {
	if a.key == b.key {
		return false
	}
	return listsAlternative(a.item, b.key) || listsAlternative(b.item, a.key)
}

func listsAlternative(item *lipid.Item, key lipid.Key) bool {
	if item == nil {
		return false
	}
	for _, alt := range item.Alternatives {
		if alt == key {
			return true
		}
	}
	return false
}

// survivors resolves one group of linked hits. Units are taken from most to
// least likely; a unit is dropped only when a unit already kept competes
// with one of its members directly, so a chain A-B-C where C beats B keeps A.
func (p *Processor) survivors(members []entry, resolved map[classModification]rules.Rule) []bool {
	units := splitUnits(members)
	win := make([]bool, len(members))
	if len(units) == 1 {
		for i := range win {
			win[i] = true
		}
		return win
	}

	lowest := members[0]
	for _, m := range members[1:] {
		if itemIndex(m) < itemIndex(lowest) {
			lowest = m
		}
	}
	rule := resolved[classModification{lowest.key.Class, lowest.key.Modification}]

	candidates := make([]rules.Candidate, len(units))
	for u := range units {
		candidates[u] = unitCandidate(members, units[u])
	}
	taken := make([]bool, len(units))
	var kept []int
	for range units {
		best := -1
		for u := range units {
			if taken[u] {
				continue
			}
			if best < 0 || rule.MoreLikely(candidates[u], candidates[best]) {
				best = u
			}
		}
		taken[best] = true
		if p.beaten(members, units[best], kept) {
			continue
		}
		for _, idx := range units[best] {
			win[idx] = true
			kept = append(kept, idx)
		}
	}
	return win
}

// splitUnits groups members into competing units. Split partners present in
// the same group form one unit and stand or fall together.
func splitUnits(members []entry) [][]int {
	unitOf := make([]int, len(members))
	for i := range unitOf {
		unitOf[i] = -1
	}
	var units [][]int
	for i, m := range members {
		if unitOf[i] >= 0 {
			continue
		}
		unit := []int{i}
		if m.hit.Split != nil {
			for j := i + 1; j < len(members); j++ {
				other := members[j]
				if unitOf[j] < 0 && other.key == m.hit.Split.Partner && other.hit.Split != nil && other.hit.Split.Partner == m.key {
					unit = append(unit, j)
					break
				}
			}
		}
		for _, idx := range unit {
			unitOf[idx] = len(units)
		}
		units = append(units, unit)
	}
	return units
}

func (p *Processor) beaten(members []entry, unit, kept []int) bool {
	for _, i := range unit {
		for _, k := range kept {
			if p.competes(members[i], members[k]) {
				return true
			}
		}
	}
	return false
}

// competes reports whether two hits explain the same peak as isobaric
// alternatives.
func (p *Processor) competes(a, b entry) bool {
	return isobaric(a, b) && math.Abs(a.hit.RT-b.hit.RT) <= p.opts.SamePeakRTTolerance
}

func itemIndex(e entry) int {
	if e.item == nil {
		return math.MaxInt
	}
	return e.item.Index
}

// unitCandidate summarizes a unit for the rule comparison. A split pair
// competes as the whole peak it shares.
func unitCandidate(members []entry, unit []int) rules.Candidate {
	first := members[unit[0]]
	if len(unit) == 1 {
		return rules.Candidate{Hit: first.hit, Index: itemIndex(first)}
	}
	merged := first.hit.Clone()
	index := itemIndex(first)
	for _, idx := range unit[1:] {
		other := members[idx]
		merged.Area += other.hit.Area
		if other.hit.Confidence > merged.Confidence {
			merged.Confidence = other.hit.Confidence
		}
		if len(other.hit.Probes) > len(merged.Probes) {
			merged.Probes = other.hit.Probes
		}
		if other.hit.Coverage() > merged.Coverage() {
			merged.Evidence = other.hit.Clone().Evidence
		}
		if i := itemIndex(other); i < index {
			index = i
		}
	}
	return rules.Candidate{Hit: &merged, Index: index}
}

// Reunify restores the pre-split snapshot of every split hit whose partner
// no longer shares its peak. Restored probes are subject to the cutoff.
func (p *Processor) Reunify(st State) State {
	out := st.Clone()
	threshold := p.Threshold(out.BasePeak)
	for _, key := range out.sortedKeys() {
		hits := out.Hits[key]
		changed := false
		for i := range hits {
			split := hits[i].Split
			if split == nil || p.partnerPresent(out, key, hits[i]) {
				continue
			}
			changed = true
			snapshot, ok := out.Snapshots[key][hits[i].RTKey()]
			if !ok {
				hits[i].Split = nil
				continue
			}
			restored, kept := trimProbes(snapshot.Clone(), threshold)
			if !kept {
				restored = hits[i]
			}
			restored.Split = nil
			restored.Annotations = hits[i].Annotations
			hits[i] = restored
		}
		if changed {
			out.setHits(key, hits)
		}
	}
	return out
}

func (p *Processor) partnerPresent(st State, key lipid.Key, hit lipid.Hit) bool {
	for _, other := range st.Hits[hit.Split.Partner] {
		if other.Split == nil || other.Split.Partner != key {
			continue
		}
		if math.Abs(other.RT-hit.RT) <= p.opts.SamePeakRTTolerance {
			return true
		}
	}
	return false
}

// Annotate recomputes double-bond position annotations for every hit.
func (p *Processor) Annotate(st State) State {
	resolved, _ := p.resolveRules(st)
	return p.annotate(st, resolved)
}

func (p *Processor) annotate(st State, resolved map[classModification]rules.Rule) State {
	out := st.Clone()
	byKey := out.itemsByKey()
	for key, hits := range out.Hits {
		item := byKey[key]
		multiChain := resolved[classModification{key.Class, key.Modification}].Chains > 1
		for i := range hits {
			hits[i].Annotations = nil
			if item == nil {
				continue
			}
			hits[i].Annotations = annotations(hits[i], item.Positions, multiChain)
		}
	}
	return out
}

func annotations(hit lipid.Hit, positions []lipid.PositionEvidence, multiChain bool) []lipid.Annotation {
	best := make(map[string]float64)
	for _, pos := range positions {
		if !pos.Window.Contains(hit.RT) {
			continue
		}
		if multiChain && (!hit.HasEvidence() || len(pos.Chains) == 0 || !lipid.SameChains(pos.Chains, hit.Chains())) {
			continue
		}
		if acc, ok := best[pos.Assignment]; !ok || pos.Accuracy > acc {
			best[pos.Assignment] = pos.Accuracy
		}
	}
	if len(best) == 0 {
		return nil
	}
	out := make([]lipid.Annotation, 0, len(best))
	for assignment, accuracy := range best {
		out = append(out, lipid.Annotation{Assignment: assignment, Accuracy: accuracy})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		return out[i].Assignment < out[j].Assignment
	})
	for i := range out {
		out[i].Assigned = true
		for j := range out {
			if i != j && out[j].Accuracy >= out[i].Accuracy {
				out[i].Assigned = false
				break
			}
		}
	}
	return out
}
