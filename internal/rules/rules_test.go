package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lipidquant/internal/lipid"
	"lipidquant/internal/services"
)

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLookupDefaultsWithoutFile(t *testing.T) {
	book := NewBook(t.TempDir())
	rule, err := book.Lookup("TG", "[M+NH4]+")
	require.NoError(t, err)
	require.Equal(t, lipid.OrderMS1First, rule.Order)
	require.Equal(t, BuiltinVersion, rule.Version)
	require.Equal(t, "TG", rule.Class)
	require.Equal(t, "[M+NH4]+", rule.Modification)
}

func TestLookupAppliesModificationOverride(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "pc.yaml", `
class: PC
version: "2024.1"
chains: 2
order: msn_first
modifications:
  "[M+Na]+":
    order: ms1_first
  "[M+HCOO]-":
    order: msn_only
    chains: 1
`)
	book := NewBook(dir)

	rule, err := book.Lookup("PC", "[M+H]+")
	require.NoError(t, err)
	require.Equal(t, lipid.OrderMSnFirst, rule.Order)
	require.Equal(t, 2, rule.Chains)
	require.Equal(t, "2024.1", rule.Version)

	rule, err = book.Lookup("pc", "[m+na]+")
	require.NoError(t, err)
	require.Equal(t, lipid.OrderMS1First, rule.Order)

	rule, err = book.Lookup("PC", "[M+HCOO]-")
	require.NoError(t, err)
	require.Equal(t, lipid.OrderMSnOnly, rule.Order)
	require.Equal(t, 1, rule.Chains)

	require.Equal(t, map[string]string{"PC": "2024.1"}, book.Versions())
}

func TestMalformedRuleIsScopedToClass(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "pe.yaml", "class: PE\nversion: 1\norder: sideways\n")
	writeRule(t, dir, "ps.yaml", "class: PS\nversion: 3\n")
	book := NewBook(dir)

	_, err := book.Lookup("PE", "[M+H]+")
	require.Error(t, err)
	require.True(t, errors.Is(err, services.ErrReconciliation))

	rule, err := book.Lookup("PS", "[M+H]+")
	require.NoError(t, err)
	require.Equal(t, "3", rule.Version)

	require.Error(t, book.Check([]string{"PS", "PE"}))
	require.NoError(t, book.Check([]string{"PS", "TG"}))
	require.NotContains(t, book.Versions(), "PE")
}

func TestRuleFileValidation(t *testing.T) {
	tests := map[string]string{
		"missing version": "class: PC\n",
		"wrong class":     "class: PE\nversion: 1\n",
		"negative chains": "version: 1\nchains: -1\n",
		"bad prefer":      "version: 1\nprefer: vibes\n",
		"unknown field":   "version: 1\ncolour: red\n",
		"bad override":    "version: 1\nmodifications:\n  H:\n    order: nope\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseClassFile("PC", []byte(body))
			require.Error(t, err)
		})
	}
}

func TestMoreLikely(t *testing.T) {
	plain := &lipid.Hit{Area: 1000, Confidence: 3, Probes: make([]lipid.Probe, 3)}
	backed := &lipid.Hit{Area: 10, Confidence: 1, Probes: make([]lipid.Probe, 1), Evidence: &lipid.Evidence{Coverage: 0.2}}
	better := &lipid.Hit{Area: 5, Evidence: &lipid.Evidence{Coverage: 0.7}}

	rule := Rule{Prefer: PreferCoverage}
	require.True(t, rule.MoreLikely(Candidate{Hit: backed, Index: 5}, Candidate{Hit: plain, Index: 0}))
	require.False(t, rule.MoreLikely(Candidate{Hit: plain, Index: 0}, Candidate{Hit: backed, Index: 5}))
	require.True(t, rule.MoreLikely(Candidate{Hit: better, Index: 9}, Candidate{Hit: backed, Index: 1}))

	areaRule := Rule{Prefer: PreferArea}
	require.True(t, areaRule.MoreLikely(Candidate{Hit: backed, Index: 1}, Candidate{Hit: better, Index: 0}))

	twinA := &lipid.Hit{Area: 7}
	twinB := &lipid.Hit{Area: 7}
	require.True(t, rule.MoreLikely(Candidate{Hit: twinA, Index: 1}, Candidate{Hit: twinB, Index: 2}))
	require.False(t, rule.MoreLikely(Candidate{Hit: twinB, Index: 2}, Candidate{Hit: twinA, Index: 1}))
}
