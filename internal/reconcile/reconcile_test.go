package reconcile_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"lipidquant/internal/lipid"
	"lipidquant/internal/reconcile"
	"lipidquant/internal/rules"
	"lipidquant/internal/testsupport"
)

var (
	pc341 = lipid.Key{Class: "PC", Analyte: "34:1", Modification: "[M+H]+"}
	pe372 = lipid.Key{Class: "PE", Analyte: "37:2", Modification: "[M+H]+"}
	pc362 = lipid.Key{Class: "PC", Analyte: "36:2", Modification: "[M+H]+"}
	pc364 = lipid.Key{Class: "PC", Analyte: "36:4", Modification: "[M+H]+"}
)

type policy struct {
	rules map[string]rules.Rule
	fail  map[string]error
}

func (p policy) Lookup(class, modification string) (rules.Rule, error) {
	if err := p.fail[class]; err != nil {
		return rules.Rule{}, err
	}
	if r, ok := p.rules[class]; ok {
		r.Modification = modification
		return r, nil
	}
	return rules.Rule{Class: class, Modification: modification, Version: "1", Prefer: rules.PreferCoverage}, nil
}

func items() []*lipid.Item {
	window := lipid.Window{Start: 8, Stop: 11}
	return []*lipid.Item{
		{Key: pc341, Index: 0, Window: window, Alternatives: []lipid.Key{pe372}},
		{Key: pe372, Index: 1, Window: window, Alternatives: []lipid.Key{pc341}},
		{Key: pc362, Index: 2, Window: window},
		{Key: pc364, Index: 3, Window: window},
	}
}

func newProcessor(p reconcile.Policy) *reconcile.Processor {
	return reconcile.New(reconcile.Options{CutoffPermille: 10, SamePeakRTTolerance: 0.05}, p, nil)
}

var stateOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.EquateApprox(0, 1e-9),
}

func TestCutoffTrimsProbesAndIsIdempotent(t *testing.T) {
	wide := testsupport.PlainHit(pc362, 9, 500)
	wide.Probes = append(wide.Probes, lipid.Probe{Isotope: 1, Start: 8.95, Apex: 9, Stop: 9.05, Area: 5})
	wide.RecomputeArea()

	st := reconcile.State{
		Items:    items(),
		BasePeak: 1000,
		Hits: map[lipid.Key][]lipid.Hit{
			pc362: {wide},
			pc364: {testsupport.PlainHit(pc364, 10, 3)},
		},
	}
	p := newProcessor(policy{})

	once := p.Cutoff(st)
	require.Len(t, once.Hits[pc362], 1)
	require.Len(t, once.Hits[pc362][0].Probes, 1)
	require.InDelta(t, 500.0, once.Hits[pc362][0].Area, 1e-9)
	require.NotContains(t, once.Hits, pc364)
	require.Len(t, st.Hits[pc362][0].Probes, 2, "input state must not change")

	if diff := cmp.Diff(once, p.Cutoff(once), stateOpts); diff != "" {
		t.Fatalf("cutoff not idempotent (-once +twice):\n%s", diff)
	}
}

func TestCutoffNeverAddsHits(t *testing.T) {
	hits := map[lipid.Key][]lipid.Hit{
		pc341: {testsupport.PlainHit(pc341, 9, 40), testsupport.PlainHit(pc341, 10, 400)},
		pc362: {testsupport.PlainHit(pc362, 9.5, 4000)},
	}
	st := reconcile.State{Items: items(), Hits: hits, BasePeak: 4000}
	prev := st.Count()
	for _, permille := range []float64{0, 5, 10, 50, 200} {
		p := reconcile.New(reconcile.Options{CutoffPermille: permille, SamePeakRTTolerance: 0.05}, nil, nil)
		n := p.Cutoff(st).Count()
		require.LessOrEqual(t, n, prev, "permille %v", permille)
		prev = n
	}
	require.Equal(t, 1, prev)
}

func TestResolveIsobarsKeepsEvidenceBackedExplanation(t *testing.T) {
	st := reconcile.State{
		Items:    items(),
		BasePeak: 1000,
		Hits: map[lipid.Key][]lipid.Hit{
			pc341: {testsupport.PlainHit(pc341, 9, 900), testsupport.PlainHit(pc341, 10.5, 200)},
			pe372: {testsupport.EvidenceHit(pe372, 9.02, 300, 0.5, "18:1", "19:1")},
		},
	}
	out := newProcessor(policy{}).ResolveIsobars(st)

	require.Len(t, out.Hits[pe372], 1)
	require.Len(t, out.Hits[pc341], 1, "the hit at an unshared RT survives")
	require.InDelta(t, 10.5, out.Hits[pc341][0].RT, 1e-9)
}

func TestResolveIsobarsFallsBackToInsertionOrder(t *testing.T) {
	st := reconcile.State{
		Items: items(),
		Hits: map[lipid.Key][]lipid.Hit{
			pc341: {testsupport.PlainHit(pc341, 9, 100)},
			pe372: {testsupport.PlainHit(pe372, 9, 100)},
		},
		BasePeak: 100,
	}
	out := newProcessor(policy{}).ResolveIsobars(st)
	require.Contains(t, out.Hits, pc341)
	require.NotContains(t, out.Hits, pe372)
}

func TestResolveIsobarsKeepsSplitPairTogether(t *testing.T) {
	a := testsupport.EvidenceHit(pc341, 9, 750, 0.6, "16:0", "18:1")
	a.Split = &lipid.Split{Partner: pe372, Fraction: 0.75}
	b := testsupport.EvidenceHit(pe372, 9, 250, 0.4, "18:0", "19:2")
	b.Split = &lipid.Split{Partner: pc341, Fraction: 0.25}

	st := reconcile.State{
		Items:    items(),
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {a}, pe372: {b}},
	}
	out := newProcessor(policy{}).ResolveIsobars(st)
	require.Len(t, out.Hits[pc341], 1)
	require.Len(t, out.Hits[pe372], 1)
}

func TestResolveIsobarsChainKeepsHitsWithoutDirectWinner(t *testing.T) {
	window := lipid.Window{Start: 8, Stop: 11}
	chain := []*lipid.Item{
		{Key: pc362, Index: 0, Window: window, Alternatives: []lipid.Key{pc341}},
		{Key: pc341, Index: 1, Window: window, Alternatives: []lipid.Key{pc362, pc364}},
		{Key: pc364, Index: 2, Window: window, Alternatives: []lipid.Key{pc341}},
	}
	st := reconcile.State{
		Items:    chain,
		BasePeak: 1000,
		Hits: map[lipid.Key][]lipid.Hit{
			pc362: {testsupport.EvidenceHit(pc362, 10.00, 300, 0.3, "16:0", "20:2")},
			pc341: {testsupport.EvidenceHit(pc341, 10.04, 300, 0.5, "16:0", "18:1")},
			pc364: {testsupport.EvidenceHit(pc364, 10.08, 300, 0.9, "16:0", "20:4")},
		},
	}
	out := newProcessor(policy{}).ResolveIsobars(st)

	require.Len(t, out.Hits[pc364], 1, "most likely explanation survives")
	require.NotContains(t, out.Hits, pc341, "loses to the hit it competes with")
	require.Len(t, out.Hits[pc362], 1, "its only competitor was removed")
}

func splitState() (reconcile.State, lipid.Hit) {
	original := testsupport.EvidenceHit(pc341, 9, 1000, 0.6, "16:0", "18:1")

	a := original.Clone()
	a.Probes[0].Area = 996
	a.RecomputeArea()
	a.Split = &lipid.Split{Partner: pe372, Fraction: 0.996}
	b := testsupport.EvidenceHit(pe372, 9, 4, 0.4, "18:0", "19:2")
	b.Split = &lipid.Split{Partner: pc341, Fraction: 0.004}

	st := reconcile.State{
		Items:    items(),
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {a}, pe372: {b}},
		Snapshots: map[lipid.Key]map[int64]lipid.Hit{
			pc341: {original.RTKey(): original},
		},
	}
	return st, original
}

func TestReunifyRestoresOriginalHit(t *testing.T) {
	st, original := splitState()
	delete(st.Hits, pe372)

	out := newProcessor(policy{}).Reunify(st)
	require.Len(t, out.Hits[pc341], 1)
	if diff := cmp.Diff(original, out.Hits[pc341][0], stateOpts); diff != "" {
		t.Fatalf("reunified hit differs from the unsplit original (-want +got):\n%s", diff)
	}
}

func TestReunifyLeavesIntactPairs(t *testing.T) {
	st, _ := splitState()
	out := newProcessor(policy{}).Reunify(st)
	require.NotNil(t, out.Hits[pc341][0].Split)
	require.InDelta(t, 996.0, out.Hits[pc341][0].Area, 1e-9)
}

func TestReunifyWithoutSnapshotClearsMarker(t *testing.T) {
	st, _ := splitState()
	delete(st.Hits, pe372)
	st.Snapshots = nil

	out := newProcessor(policy{}).Reunify(st)
	require.Nil(t, out.Hits[pc341][0].Split)
	require.InDelta(t, 996.0, out.Hits[pc341][0].Area, 1e-9)
}

func TestApplyReunifiesWhenPartnerFallsBelowCutoff(t *testing.T) {
	st, original := splitState()
	out, skipped := newProcessor(policy{}).Apply(st)

	require.Empty(t, skipped)
	require.NotContains(t, out.Hits, pe372)
	require.Len(t, out.Hits[pc341], 1)
	require.Nil(t, out.Hits[pc341][0].Split)
	require.InDelta(t, original.Area, out.Hits[pc341][0].Area, 1e-9)
}

func positions() []lipid.PositionEvidence {
	window := lipid.Window{Start: 8.5, Stop: 9.5}
	return []lipid.PositionEvidence{
		{Assignment: "n-9", Accuracy: 0.9, Window: window, Chains: []string{"16:0", "18:1"}},
		{Assignment: "n-7", Accuracy: 0.6, Window: window, Chains: []string{"16:0", "18:1"}},
		{Assignment: "n-9", Accuracy: 0.5, Window: window, Chains: []string{"16:0", "18:1"}},
		{Assignment: "n-3", Accuracy: 0.95, Window: lipid.Window{Start: 12, Stop: 13}},
	}
}

func TestAnnotatePicksMostAccurateAssignment(t *testing.T) {
	its := items()
	its[0].Positions = positions()
	st := reconcile.State{
		Items:    its,
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {testsupport.PlainHit(pc341, 9, 500)}},
	}

	out := newProcessor(policy{}).Annotate(st)
	want := []lipid.Annotation{
		{Assignment: "n-9", Accuracy: 0.9, Assigned: true},
		{Assignment: "n-7", Accuracy: 0.6},
	}
	if diff := cmp.Diff(want, out.Hits[pc341][0].Annotations); diff != "" {
		t.Fatalf("annotations (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(out, newProcessor(policy{}).Annotate(out), stateOpts); diff != "" {
		t.Fatalf("annotate not idempotent:\n%s", diff)
	}
}

func TestAnnotateTiesAreNotAssigned(t *testing.T) {
	its := items()
	window := lipid.Window{Start: 8, Stop: 10}
	its[2].Positions = []lipid.PositionEvidence{
		{Assignment: "n-6", Accuracy: 0.7, Window: window},
		{Assignment: "n-9", Accuracy: 0.7, Window: window},
	}
	st := reconcile.State{
		Items:    its,
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc362: {testsupport.PlainHit(pc362, 9, 500)}},
	}
	out := newProcessor(policy{}).Annotate(st)
	anns := out.Hits[pc362][0].Annotations
	require.Len(t, anns, 2)
	for _, a := range anns {
		require.False(t, a.Assigned, a.Assignment)
	}
}

func TestAnnotateMultiChainRequiresMatchingEvidence(t *testing.T) {
	its := items()
	its[0].Positions = positions()
	p := policy{rules: map[string]rules.Rule{"PC": {Class: "PC", Version: "2", Chains: 2}}}

	plain := reconcile.State{
		Items:    its,
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {testsupport.PlainHit(pc341, 9, 500)}},
	}
	require.Empty(t, newProcessor(p).Annotate(plain).Hits[pc341][0].Annotations)

	mismatched := reconcile.State{
		Items:    its,
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {testsupport.EvidenceHit(pc341, 9, 500, 0.8, "16:1", "18:0")}},
	}
	require.Empty(t, newProcessor(p).Annotate(mismatched).Hits[pc341][0].Annotations)

	matched := reconcile.State{
		Items:    its,
		BasePeak: 1000,
		Hits:     map[lipid.Key][]lipid.Hit{pc341: {testsupport.EvidenceHit(pc341, 9, 500, 0.8, "18:1", "16:0")}},
	}
	anns := newProcessor(p).Annotate(matched).Hits[pc341][0].Annotations
	require.Len(t, anns, 2)
	require.True(t, anns[0].Assigned)
}

func TestApplySkipsClassWithBrokenRules(t *testing.T) {
	st := reconcile.State{
		Items:    items(),
		BasePeak: 1000,
		Hits: map[lipid.Key][]lipid.Hit{
			pc362: {testsupport.PlainHit(pc362, 9, 500)},
			pe372: {testsupport.PlainHit(pe372, 10.5, 500)},
		},
	}
	p := policy{fail: map[string]error{"PE": errors.New("parse PE.yaml: bad order")}}
	out, skipped := newProcessor(p).Apply(st)

	require.Equal(t, []reconcile.Skipped{{Class: "PE", Reason: "parse PE.yaml: bad order"}}, skipped)
	require.NotContains(t, out.Hits, pe372)
	require.Contains(t, out.Hits, pc362)
}

func TestApplyIsAFixedPoint(t *testing.T) {
	its := items()
	its[0].Positions = positions()
	st, _ := splitState()
	st.Items = its
	st.Hits[pc362] = []lipid.Hit{
		testsupport.PlainHit(pc362, 9.6, 300),
		testsupport.PlainHit(pc362, 10.2, 2),
	}
	st.Hits[pc364] = []lipid.Hit{testsupport.EvidenceHit(pc364, 10.8, 120, 0.7, "16:0", "20:4")}

	p := newProcessor(policy{})
	once, _ := p.Apply(st)
	twice, _ := p.Apply(once)
	if diff := cmp.Diff(once, twice, stateOpts); diff != "" {
		t.Fatalf("apply not a fixed point (-once +twice):\n%s", diff)
	}
	require.Equal(t, 3, once.Count())
}

func TestClassesOrdering(t *testing.T) {
	st := reconcile.State{
		Items: items(),
		Hits: map[lipid.Key][]lipid.Hit{
			pc364: {testsupport.PlainHit(pc364, 10, 1)},
			pe372: {testsupport.PlainHit(pe372, 9, 1)},
			pc341: {testsupport.PlainHit(pc341, 10, 1), testsupport.PlainHit(pc341, 8.5, 1)},
		},
	}
	classes := st.Classes()
	require.Len(t, classes, 2)
	require.Equal(t, "PC", classes[0].Class)
	require.Equal(t, "PE", classes[1].Class)
	var order []lipid.Key
	for _, h := range classes[0].Hits {
		order = append(order, h.Key)
	}
	require.Equal(t, []lipid.Key{pc341, pc341, pc364}, order)
	require.InDelta(t, 8.5, classes[0].Hits[0].RT, 1e-9)
}
