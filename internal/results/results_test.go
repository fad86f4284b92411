package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lipidquant/internal/lipid"
	"lipidquant/internal/quant"
	"lipidquant/internal/reconcile"
	"lipidquant/internal/services"
	"lipidquant/internal/testsupport"
)

func sampleInput() Input {
	pc := lipid.Key{Class: "PC", Analyte: "34:1", Modification: "[M+H]+"}
	pe := lipid.Key{Class: "PE", Analyte: "36:2", Modification: "[M+H]+"}
	return Input{
		RunID:        "run-1",
		Source:       "/data/sample_01.raw",
		Chrom:        "/work/sample_01.chrom",
		Definition:   "/defs/panel.yaml",
		Settings:     Settings{Parallelism: 2, Isotopes: 2, CutoffPermille: 10},
		RuleVersions: map[string]string{"PC": "3", "PE": "builtin"},
		Items:        4,
		Rejected:     1,
		Stats:        quant.Stats{Passes: 5, Deferred: 1, Reopened: 1},
		State: reconcile.State{
			Items: []*lipid.Item{{Key: pc, Index: 0}, {Key: pe, Index: 1}},
			Hits: map[lipid.Key][]lipid.Hit{
				pe: {testsupport.PlainHit(pe, 10, 50)},
				pc: {testsupport.EvidenceHit(pc, 9, 500, 0.7, "16:0", "18:1")},
			},
			BasePeak: 500,
		},
		Skipped: []reconcile.Skipped{{Class: "SM", Reason: "bad rule"}},
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	a := New(dir, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	path, err := a.Write(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "sample_01"+Ext), path)

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "run-1", got.RunID)
	require.True(t, fixed.Equal(got.GeneratedAt))
	require.Equal(t, "3", got.RuleVersions["PC"])
	require.Equal(t, Statistics{Items: 4, Passes: 5, Deferred: 1, Reopened: 1, Rejected: 1, Hits: 2, Skipped: 1}, got.Statistics)
	require.Len(t, got.Classes, 2)
	require.Equal(t, "PC", got.Classes[0].Class)
	require.True(t, got.Classes[0].Hits[0].HasEvidence())
	require.Equal(t, []string{"16:0", "18:1"}, got.Classes[0].Hits[0].Chains())
	require.Equal(t, "PE", got.Classes[1].Class)
	require.Len(t, got.SkippedClasses, 1)
}

func TestWriteReplacesPreviousArtifact(t *testing.T) {
	a := New(t.TempDir(), nil)
	in := sampleInput()
	_, err := a.Write(context.Background(), in)
	require.NoError(t, err)

	in.RunID = "run-2"
	in.State.Hits = nil
	path, err := a.Write(context.Background(), in)
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, "run-2", got.RunID)
	require.Empty(t, got.Classes)
	require.NotNil(t, got.Classes)
}

func TestWriteRequiresDirectory(t *testing.T) {
	_, err := New("", nil).Write(context.Background(), sampleInput())
	require.True(t, errors.Is(err, services.ErrConfiguration))
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"+Ext))
	require.True(t, errors.Is(err, services.ErrNotFound))
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallelism(3))
	s := SettingsFromConfig(cfg)
	require.Equal(t, 3, s.Parallelism)
	require.Equal(t, cfg.Reconciliation.BasePeakCutoffPermille, s.CutoffPermille)
}
