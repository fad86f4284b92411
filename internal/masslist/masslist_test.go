package masslist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lipidquant/internal/lipid"
	"lipidquant/internal/services"
)

const sampleDefinition = `
name: plasma panel
rt_range: [0, 30]
classes:
  - name: PC
    adducts:
      - {name: "[M+H]+", mass_shift: 1.007276, charge: 1}
      - {name: "[M+Na]+", mass_shift: 22.989218, charge: 1}
    analytes:
      - name: "34:1"
        neutral_mass: 759.5778
        rt: 12.4
        rt_tolerance: 0.4
        positions:
          - assignment: "PC 16:0_18:1(9Z)"
            chains: ["16:0", "18:1"]
            rt_start: 12.2
            rt_stop: 12.6
            accuracy: 0.9
      - name: "36:2"
        neutral_mass: 785.5935
  - name: PE
    adducts:
      - {name: "[M+H]+", mass_shift: 1.007276, charge: 1}
    analytes:
      - name: "37:1"
        neutral_mass: 759.5778
        rt: 12.6
`

func TestParseExpandsInInsertionOrder(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition), Options{IsobarTolerancePPM: 5})
	require.NoError(t, err)
	require.Equal(t, "plasma panel", def.Name)
	require.Equal(t, []string{"PC", "PE"}, def.Classes)
	require.Equal(t, 5, def.Len())

	items := def.Items()
	want := []lipid.Key{
		{Class: "PC", Analyte: "34:1", Modification: "[M+H]+"},
		{Class: "PC", Analyte: "34:1", Modification: "[M+Na]+"},
		{Class: "PC", Analyte: "36:2", Modification: "[M+H]+"},
		{Class: "PC", Analyte: "36:2", Modification: "[M+Na]+"},
		{Class: "PE", Analyte: "37:1", Modification: "[M+H]+"},
	}
	for i, item := range items {
		require.Equal(t, want[i], item.Key)
		require.Equal(t, i, item.Index)
		require.Equal(t, lipid.StatusWaiting, item.Status)
	}

	require.InDelta(t, 760.585076, items[0].Mz, 1e-6)
	require.Equal(t, lipid.Window{Start: 12.0, Stop: 12.8}, roundWindow(items[0].Window))
	require.Equal(t, lipid.Window{Start: 0, Stop: 30}, items[2].Window)
	require.Equal(t, 34, items[0].Carbon)
	require.Equal(t, 1, items[0].DoubleBonds)
	require.Len(t, items[0].Positions, 1)
	require.Equal(t, []string{"16:0", "18:1"}, items[0].Positions[0].Chains)
}

func TestParseLinksIsobars(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition), Options{IsobarTolerancePPM: 5})
	require.NoError(t, err)
	items := def.Items()

	pc := items[0]
	pe := items[4]
	require.Equal(t, []lipid.Key{pe.Key}, pc.Alternatives)
	require.Equal(t, []lipid.Key{pc.Key}, pe.Alternatives)
	require.Empty(t, items[1].Alternatives)

	def, err = Parse([]byte(sampleDefinition), Options{})
	require.NoError(t, err)
	require.Empty(t, def.Items()[0].Alternatives)
}

func TestItemsReturnsIndependentCopies(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition), Options{IsobarTolerancePPM: 5})
	require.NoError(t, err)
	first := def.Items()
	first[0].Status = lipid.StatusFinished
	first[0].Window = lipid.Window{Start: 1, Stop: 2}
	second := def.Items()
	require.Equal(t, lipid.StatusWaiting, second[0].Status)
	require.NotEqual(t, first[0].Window, second[0].Window)
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"no analytes":  "classes:\n  - name: PC\n    adducts: [{name: H, mass_shift: 1, charge: 1}]\n",
		"no adducts":   "classes:\n  - name: PC\n    analytes: [{name: '34:1', neutral_mass: 700}]\n",
		"zero charge":  "classes:\n  - name: PC\n    adducts: [{name: H, mass_shift: 1, charge: 0}]\n    analytes: [{name: '34:1', neutral_mass: 700}]\n",
		"bad mass":     "classes:\n  - name: PC\n    adducts: [{name: H, mass_shift: 1, charge: 1}]\n    analytes: [{name: '34:1', neutral_mass: 0}]\n",
		"unknown key":  "classes:\n  - name: PC\n    colour: red\n",
		"duplicate":    "classes:\n  - name: PC\n    adducts: [{name: H, mass_shift: 1, charge: 1}]\n    analytes: [{name: '34:1', neutral_mass: 700}, {name: '34:1', neutral_mass: 700}]\n",
		"bad rt range": "rt_range: [10, 5]\nclasses: []\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), Options{})
			require.Error(t, err)
		})
	}
}

func TestLoadWrapsConfigurationError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, services.ErrConfiguration))

	path := filepath.Join(t.TempDir(), "lipids.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinition), 0o644))
	def, err := Load(path, Options{})
	require.NoError(t, err)
	require.Equal(t, path, def.Path)
}

func roundWindow(w lipid.Window) lipid.Window {
	round := func(v float64) float64 { return float64(int64(v*1000+0.5)) / 1000 }
	return lipid.Window{Start: round(w.Start), Stop: round(w.Stop)}
}
