package attendance

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel normalises a class code or subject: surrounding whitespace
// trimmed, inner whitespace collapsed, Unicode NFC, upper case.
// "  cs 101 " and "CS  101" produce the same key component.
func NormalizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// A Caser is stateful, so build a fresh chain per call.
	t := transform.Chain(norm.NFC, cases.Upper(language.Und))
	result, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToUpper(norm.NFC.String(s))
	}
	return result
}

// NormalizeIdentity trims surrounding whitespace from a roll number.
func NormalizeIdentity(s string) string {
	return strings.TrimSpace(s)
}
