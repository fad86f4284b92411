package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"lipidquant/internal/lipid"
	"lipidquant/internal/services"
	"lipidquant/internal/textutil"
)

// BuiltinVersion labels rules synthesized for classes without a rule file.
const BuiltinVersion = "builtin"

// Preference selects the primary criterion of the "more likely" comparison
// after fragment evidence.
type Preference string

const (
	PreferCoverage Preference = "coverage"
	PreferArea     Preference = "area"
)

// Rule is the resolved metadata for one (class, modification).
type Rule struct {
	Class        string
	Modification string
	Version      string
	Chains       int
	Order        lipid.Order
	Prefer       Preference
}

type classFile struct {
	Class         string                      `yaml:"class"`
	Version       string                      `yaml:"version"`
	Chains        int                         `yaml:"chains"`
	Order         string                      `yaml:"order"`
	Prefer        string                      `yaml:"prefer"`
	Modifications map[string]modificationFile `yaml:"modifications"`
}

type modificationFile struct {
	Order  string `yaml:"order"`
	Chains *int   `yaml:"chains"`
}

type classRules struct {
	base          Rule
	modifications map[string]modificationFile
}

type cacheEntry struct {
	rules *classRules
	err   error
}

// Book resolves rules from a directory. It is safe for concurrent use.
type Book struct {
	dir string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewBook returns a rule book reading from dir. An empty or missing directory
// yields built-in defaults for every class.
func NewBook(dir string) *Book {
	return &Book{dir: strings.TrimSpace(dir), cache: make(map[string]cacheEntry)}
}

// Lookup returns the rule for a class and modification. Errors wrap
// services.ErrReconciliation and are scoped to the class.
func (b *Book) Lookup(class, modification string) (Rule, error) {
	entry := b.load(class)
	if entry.err != nil {
		return Rule{}, entry.err
	}
	rule := entry.rules.base
	rule.Modification = textutil.NormalizeLabel(modification)
	for label, override := range entry.rules.modifications {
		if !textutil.EqualLabels(label, modification) {
			continue
		}
		if strings.TrimSpace(override.Order) != "" {
			order, err := lipid.ParseOrder(override.Order)
			if err != nil {
				return Rule{}, services.Wrap(services.ErrReconciliation, "rules", "lookup", class+" "+modification, err)
			}
			rule.Order = order
		}
		if override.Chains != nil {
			rule.Chains = *override.Chains
		}
		break
	}
	return rule, nil
}

// Versions returns the version of every class rule loaded so far, keyed by
// class label. Classes whose rules failed to load are omitted.
func (b *Book) Versions() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.cache))
	for _, entry := range b.cache {
		if entry.err != nil || entry.rules == nil {
			continue
		}
		out[entry.rules.base.Class] = entry.rules.base.Version
	}
	return out
}

// Check parses the rule files for the given classes and returns the first
// error encountered, in class order.
func (b *Book) Check(classes []string) error {
	sorted := append([]string(nil), classes...)
	sort.Strings(sorted)
	for _, class := range sorted {
		if entry := b.load(class); entry.err != nil {
			return entry.err
		}
	}
	return nil
}

func (b *Book) load(class string) cacheEntry {
	label := textutil.NormalizeLabel(class)
	key := textutil.FoldLabel(label)

	b.mu.Lock()
	defer b.mu.Unlock()
	if entry, ok := b.cache[key]; ok {
		return entry
	}
	rules, err := b.read(label)
	entry := cacheEntry{rules: rules, err: err}
	b.cache[key] = entry
	return entry
}

func (b *Book) read(class string) (*classRules, error) {
	defaults := &classRules{base: Rule{
		Class:   class,
		Version: BuiltinVersion,
		Order:   lipid.OrderMS1First,
		Prefer:  PreferCoverage,
	}}
	if b.dir == "" {
		return defaults, nil
	}
	path := filepath.Join(b.dir, textutil.SanitizeToken(class)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults, nil
		}
		return nil, services.Wrap(services.ErrReconciliation, "rules", "read", path, err)
	}
	parsed, err := parseClassFile(class, data)
	if err != nil {
		return nil, services.Wrap(services.ErrReconciliation, "rules", "parse", path, err)
	}
	return parsed, nil
}

func parseClassFile(class string, data []byte) (*classRules, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var file classFile
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("rule file is empty")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if declared := strings.TrimSpace(file.Class); declared != "" && !textutil.EqualLabels(declared, class) {
		return nil, fmt.Errorf("rule file declares class %q, expected %q", declared, class)
	}
	if file.Chains < 0 {
		return nil, errors.New("chains must be >= 0")
	}
	order, err := lipid.ParseOrder(file.Order)
	if err != nil {
		return nil, err
	}
	prefer := Preference(strings.ToLower(strings.TrimSpace(file.Prefer)))
	switch prefer {
	case "":
		prefer = PreferCoverage
	case PreferCoverage, PreferArea:
	default:
		return nil, fmt.Errorf("unknown prefer value %q", file.Prefer)
	}
	version := strings.TrimSpace(file.Version)
	if version == "" {
		return nil, errors.New("version is required")
	}
	for label, override := range file.Modifications {
		if _, err := lipid.ParseOrder(override.Order); err != nil {
			return nil, fmt.Errorf("modification %s: %w", label, err)
		}
		if override.Chains != nil && *override.Chains < 0 {
			return nil, fmt.Errorf("modification %s: chains must be >= 0", label)
		}
	}
	return &classRules{
		base: Rule{
			Class:   class,
			Version: version,
			Chains:  file.Chains,
			Order:   order,
			Prefer:  prefer,
		},
		modifications: file.Modifications,
	}, nil
}
