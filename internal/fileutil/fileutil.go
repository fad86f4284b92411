package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stem returns the base name of path without its final extension. Vendor
// acquisitions stored as directories (".d", ".raw") are handled the same way.
func Stem(path string) string {
	base := filepath.Base(strings.TrimRight(path, string(filepath.Separator)))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// MatchesStem reports whether name is "<stem><ext>" or "<stem>_<suffix><ext>".
// The extension comparison ignores case.
func MatchesStem(name, stem, ext string) bool {
	if !strings.EqualFold(filepath.Ext(name), ext) {
		return false
	}
	trimmed := name[:len(name)-len(filepath.Ext(name))]
	if trimmed == stem {
		return true
	}
	return strings.HasPrefix(trimmed, stem+"_") && len(trimmed) > len(stem)+1
}

// ListByStem returns the entries of dir that match stem and ext, sorted by
// name. A missing directory yields no entries.
func ListByStem(dir, stem, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if MatchesStem(entry.Name(), stem, ext) {
			out = append(out, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// RemoveByStem deletes every entry ListByStem would return.
func RemoveByStem(dir, stem, ext string) error {
	paths, err := ListByStem(dir, stem, ext)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file beside path, syncs it, and
// renames it into place. It returns the SHA256 of the written bytes.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	hasher.Write(data)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
