package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeLabel returns the display form of a label: NFC composed, trimmed,
// with internal whitespace runs collapsed to a single space.
func NormalizeLabel(value string) string {
	value = norm.NFC.String(value)
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

// FoldLabel returns the lookup form of a label. Two labels that differ only in
// case, Unicode composition, or whitespace fold to the same value.
func FoldLabel(value string) string {
	return folder.String(NormalizeLabel(value))
}

// EqualLabels reports whether two labels refer to the same thing.
func EqualLabels(a, b string) bool {
	return FoldLabel(a) == FoldLabel(b)
}

// SanitizeToken converts a label to a lowercase filesystem-safe token.
// Letters and digits are kept, hyphens and underscores survive, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = FoldLabel(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '+':
			b.WriteString("plus")
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
