package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lipidquant/internal/config"
	"lipidquant/internal/queue"
	"lipidquant/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	cfg        *config.Config
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("LIPIDQUANT_MSCONVERT", "")
	t.Setenv("LIPIDQUANT_ANALYZER", "")

	base := t.TempDir()
	bin := filepath.Join(base, "bin")
	content := fmt.Sprintf(`[paths]
work_dir = %q
results_dir = %q
log_dir = %q
rules_dir = %q

[tools]
msconvert = %q
chrom_translator = %q
analyzer = %q

[workflow]
poll_interval_ms = 5

[logging]
level = "error"
`,
		filepath.Join(base, "work"),
		filepath.Join(base, "results"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "rules"),
		testsupport.WriteExecutable(t, filepath.Join(bin, "msconvert"), "exit 0"),
		testsupport.WriteExecutable(t, filepath.Join(bin, "lipidquant-chrom"), "exit 0"),
		testsupport.WriteExecutable(t, filepath.Join(bin, "lipidquant-analyzer"), "exit 0"),
	)
	configPath := testsupport.WriteFile(t, filepath.Join(base, "config.toml"), content)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath, cfg: cfg}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[reconciliation]")
	requireContains(t, out, env.cfg.Paths.ResultsDir)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestJobsListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No jobs")

	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	done := testsupport.NewJob(t, store, "/data/alpha.raw", "/data/panel.yaml", queue.StatusDone)
	done.ProgressMessage = "12 hits from 40 work items"
	if err := store.Update(context.Background(), done); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	failed := testsupport.NewJob(t, store, "/data/beta.wiff", "/data/panel.yaml", queue.StatusError)
	failed.ErrorMessage = "msconvert exited 1"
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	store.Close()

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "alpha.raw")
	requireContains(t, out, "msconvert exited 1")

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "error"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	if strings.Contains(out, "alpha.raw") {
		t.Fatalf("status filter leaked done job: %s", out)
	}

	out, _, err = runCLI(t, []string{"jobs", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs status: %v", err)
	}
	requireContains(t, out, "done")
	requireContains(t, out, "error")

	if _, _, err := runCLI(t, []string{"jobs", "list", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, []string{"jobs", "clear", "--status", "error"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 job(s)")

	out, _, err = runCLI(t, []string{"jobs", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --json: %v", err)
	}
	requireContains(t, out, `"SourcePath": "/data/alpha.raw"`)
}

func TestDepsReportsTools(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	requireContains(t, out, "msconvert")
	requireContains(t, out, "Analyzer")
	requireContains(t, out, "Work directory")

	if err := os.Remove(env.cfg.Tools.Analyzer); err != nil {
		t.Fatalf("remove analyzer stub: %v", err)
	}
	out, _, err = runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatalf("expected deps to fail without the analyzer:\n%s", out)
	}
	requireContains(t, err.Error(), "1 required tool(s) missing")
}

func TestRunReportsRejectedInput(t *testing.T) {
	env := setupCLITestEnv(t)
	definition := testsupport.WriteDefinition(t, env.baseDir)
	input := testsupport.WriteFile(t, filepath.Join(env.baseDir, "inputs", "notes.txt"), "not an acquisition")

	out, _, err := runCLI(t, []string{"run", "--definition", definition, input}, env.configPath)
	if err == nil {
		t.Fatal("expected run to report the failed job")
	}
	requireContains(t, err.Error(), "1 of 1 jobs failed")
	requireContains(t, out, "notes.txt")
	requireContains(t, out, "unsupported input format")
}

func TestRunRequiresDefinition(t *testing.T) {
	env := setupCLITestEnv(t)
	input := testsupport.WriteFile(t, filepath.Join(env.baseDir, "sample.mzML"), "spectra")

	_, _, err := runCLI(t, []string{"run", input}, env.configPath)
	if err == nil {
		t.Fatal("expected run without a definition to fail")
	}
	requireContains(t, err.Error(), "no analyte definition")
}

func TestParseSources(t *testing.T) {
	dir := t.TempDir()
	sources, err := parseSources([]string{
		filepath.Join(dir, "a.raw"),
		filepath.Join(dir, "b.mzML") + "=" + filepath.Join(dir, "neg.yaml"),
	}, filepath.Join(dir, "panel.yaml"))
	if err != nil {
		t.Fatalf("parseSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Definition != filepath.Join(dir, "panel.yaml") {
		t.Fatalf("fallback definition not applied: %+v", sources[0])
	}
	if sources[1].Path != filepath.Join(dir, "b.mzML") || sources[1].Definition != filepath.Join(dir, "neg.yaml") {
		t.Fatalf("override not parsed: %+v", sources[1])
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, filepath.Join(t.TempDir(), "missing", "config.toml"))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "lipidquant ")
}
