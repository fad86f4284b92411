package quantify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lipidquant/internal/lipid"
	"lipidquant/internal/quantify"
	"lipidquant/internal/results"
	"lipidquant/internal/services"
	"lipidquant/internal/testsupport"
)

func key(analyte, adduct string) lipid.Key {
	return lipid.Key{Class: "PC", Analyte: analyte, Modification: adduct}
}

func TestExecuteWritesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallelism(2))
	def := testsupport.WriteDefinition(t, testsupport.BaseDir(cfg))
	analyzer := testsupport.NewFakeAnalyzer()
	analyzer.Add(testsupport.EvidenceHit(key("34:1", "[M+H]+"), 9, 1000, 0.8, "16:0", "18:1"))
	analyzer.Add(testsupport.PlainHit(key("36:2", "[M+H]+"), 10, 400))
	analyzer.Add(testsupport.PlainHit(key("36:2", "[M+Na]+"), 10.2, 0.5))

	runner := quantify.New(cfg, nil, quantify.WithOpener(analyzer))
	res, err := runner.Execute(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      filepath.Join(cfg.Paths.WorkDir, "sample.chrom"),
		Definition: def,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 10, res.Items)
	require.Equal(t, 2, res.Hits, "the tiny sodium adduct falls under the base-peak cutoff")
	require.Equal(t, filepath.Join(cfg.Paths.ResultsDir, "sample"+results.Ext), res.ArtifactPath)

	artifact, err := results.Read(res.ArtifactPath)
	require.NoError(t, err)
	require.Equal(t, res.RunID, artifact.RunID)
	require.Equal(t, "test panel", artifact.DefinitionName)
	require.Equal(t, "builtin", artifact.RuleVersions["PC"])
	require.Len(t, artifact.Classes, 1)
	require.Len(t, artifact.Classes[0].Hits, 2)
	require.Equal(t, analyzer.Opened(), analyzer.Closed())
}

func TestWorkerFaultProducesNoArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	def := testsupport.WriteDefinition(t, testsupport.BaseDir(cfg))
	analyzer := testsupport.NewFakeAnalyzer()
	analyzer.Fail[key("36:2", "[M+H]+")] = errors.New("segmentation fault")

	runner := quantify.New(cfg, nil, quantify.WithOpener(analyzer))
	_, err := runner.Execute(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      "/work/sample.chrom",
		Definition: def,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, services.ErrScheduling))

	entries, readErr := os.ReadDir(cfg.Paths.ResultsDir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestMissingDefinitionIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := quantify.New(cfg, nil, quantify.WithOpener(testsupport.NewFakeAnalyzer()))
	_, err := runner.Execute(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      "/work/sample.chrom",
		Definition: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	require.True(t, errors.Is(err, services.ErrConfiguration))
}

func TestMissingAnalyzerIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tools.Analyzer = filepath.Join(t.TempDir(), "absent-analyzer")
	def := testsupport.WriteDefinition(t, testsupport.BaseDir(cfg))
	_, err := quantify.New(cfg, nil).Execute(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      "/work/sample.chrom",
		Definition: def,
	})
	require.True(t, errors.Is(err, services.ErrConfiguration))
}

func TestStartIsPollable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallelism(3))
	def := testsupport.WriteDefinition(t, testsupport.BaseDir(cfg))
	analyzer := testsupport.NewFakeAnalyzer()
	analyzer.Delay = 5 * time.Millisecond

	run := quantify.New(cfg, nil, quantify.WithOpener(analyzer)).Start(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      "/work/sample.chrom",
		Definition: def,
	})
	require.Eventually(t, run.Finished, 5*time.Second, 5*time.Millisecond)
	_, err := run.Result()
	require.NoError(t, err)

	progress := run.Progress()
	require.Equal(t, 10, progress.Total)
	require.Equal(t, 10, progress.Finished)
	require.InDelta(t, 100.0, progress.Percent(), 1e-9)
	require.LessOrEqual(t, analyzer.MaxInFlight(), 3)
}

func TestCancelStopsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithParallelism(1))
	def := testsupport.WriteDefinition(t, testsupport.BaseDir(cfg))
	analyzer := testsupport.NewFakeAnalyzer()
	analyzer.Delay = time.Second

	run := quantify.New(cfg, nil, quantify.WithOpener(analyzer)).Start(context.Background(), quantify.Request{
		Source:     "/data/sample.raw",
		Chrom:      "/work/sample.chrom",
		Definition: def,
	})
	require.Eventually(t, func() bool { return run.Progress().Running == 1 }, 5*time.Second, 2*time.Millisecond)
	run.Cancel()
	require.Eventually(t, run.Finished, 5*time.Second, 5*time.Millisecond)
	_, err := run.Result()
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, analyzer.Opened(), analyzer.Closed())
}
