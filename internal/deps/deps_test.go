package deps

import (
	"os"
	"path/filepath"
	"testing"

	"lipidquant/internal/config"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "lq-present")
	t.Setenv("PATH", dir)

	statuses := CheckBinaries([]Requirement{
		{Name: "present", Command: "lq-present"},
		{Name: "absent", Command: "lq-absent"},
		{Name: "blank", Command: "  ", Optional: true},
	})
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Available || statuses[0].Command != filepath.Join(dir, "lq-present") {
		t.Fatalf("expected present binary resolved, got %+v", statuses[0])
	}
	if statuses[1].Available || statuses[1].Detail == "" {
		t.Fatalf("expected absent binary reported missing, got %+v", statuses[1])
	}
	if statuses[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", statuses[2].Detail)
	}

	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "absent" {
		t.Fatalf("expected only required absent binary, got %+v", missing)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.MSConvert = ""
	cfg.Tools.Analyzer = "/opt/analyzer"

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "" || !reqs[0].Optional {
		t.Fatalf("expected optional unconfigured msconvert, got %+v", reqs[0])
	}
	if reqs[2].Command != "/opt/analyzer" {
		t.Fatalf("expected analyzer override, got %q", reqs[2].Command)
	}
}
