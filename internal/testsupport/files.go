package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteExecutable writes a /bin/sh script with the given body.
func WriteExecutable(t testing.TB, path, body string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
	return path
}

// MakeDir creates a directory input such as a Waters ".raw" or a ".d" folder.
func MakeDir(t testing.TB, path string) string {
	t.Helper()

	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	return path
}

// Definition is a small analyte-definition file with one class, two adducts
// and five analytes.
const Definition = `name: test panel
rt_range: [0, 20]
classes:
  - name: PC
    adducts:
      - {name: "[M+H]+", mass_shift: 1.00728, charge: 1}
      - {name: "[M+Na]+", mass_shift: 22.98922, charge: 1}
    analytes:
      - {name: "32:0", neutral_mass: 733.5622, rt: 8.0}
      - {name: "34:1", neutral_mass: 759.5778, rt: 9.0}
      - {name: "36:2", neutral_mass: 785.5935, rt: 10.0}
      - {name: "38:4", neutral_mass: 809.5935, rt: 10.5}
      - {name: "40:6", neutral_mass: 833.5935, rt: 11.0}
`

// WriteDefinition writes Definition to dir and returns its path.
func WriteDefinition(t testing.TB, dir string) string {
	t.Helper()
	return WriteFile(t, filepath.Join(dir, "panel.yaml"), Definition)
}
