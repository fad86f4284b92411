package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStem(t *testing.T) {
	tests := map[string]string{
		"/data/run01.raw":   "run01",
		"/data/run01.d/":    "run01",
		"sample.mzML":       "sample",
		"archive.tar.mzXML": "archive.tar",
		"noext":             "noext",
		"/work/.hidden":     ".hidden",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchesStem(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sample.mzML", true},
		{"sample.MZML", true},
		{"sample_positive.mzML", true},
		{"sample_.mzML", false},
		{"sample2.mzML", false},
		{"sample.mzXML", false},
		{"other_sample.mzML", false},
	}
	for _, tc := range tests {
		if got := MatchesStem(tc.name, "sample", ".mzML"); got != tc.want {
			t.Errorf("MatchesStem(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestListAndRemoveByStem(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"run_negative.mzML", "run_positive.mzML", "run2.mzML", "run.chrom"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ListByStem(dir, "run", ".mzML")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "run_negative.mzML"), filepath.Join(dir, "run_positive.mzML")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListByStem = %v, want %v", got, want)
	}

	if err := RemoveByStem(dir, "run", ".mzML"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run2.mzML")); err != nil {
		t.Fatalf("unrelated file removed: %v", err)
	}
	left, _ := ListByStem(dir, "run", ".mzML")
	if len(left) != 0 {
		t.Fatalf("expected stale outputs removed, got %v", left)
	}
}

func TestListByStemMissingDir(t *testing.T) {
	got, err := ListByStem(filepath.Join(t.TempDir(), "nope"), "run", ".mzML")
	if err != nil || got != nil {
		t.Fatalf("ListByStem on missing dir = %v, %v", got, err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	content := []byte(`{"ok":true}`)

	digest, err := WriteFileAtomic(path, content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(content)
	if digest != hex.EncodeToString(sum[:]) {
		t.Fatalf("digest mismatch: %s", digest)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleaned up, found %d entries", len(entries))
	}
}
