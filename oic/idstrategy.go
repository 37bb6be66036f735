package oic

import (
	"golang.org/x/text/cases"
)

// IdStrategy is the host's identity-equality rule: it decides whether
// two user names refer to the same account, which matters when a
// refresh response reports the name with different casing.
type IdStrategy interface {
	// Equals reports whether a and b name the same identity.
	Equals(a, b string) bool

	// Key normalizes a name to its canonical storage key.
	Key(name string) string
}

type caseInsensitiveStrategy struct {
	folder cases.Caser
}

// CaseInsensitiveIdStrategy matches identities ignoring case, using
// Unicode case folding. This is the realm default.
func CaseInsensitiveIdStrategy() IdStrategy {
	return &caseInsensitiveStrategy{folder: cases.Fold()}
}

func (s *caseInsensitiveStrategy) Equals(a, b string) bool {
	return s.Key(a) == s.Key(b)
}

func (s *caseInsensitiveStrategy) Key(name string) string {
	return s.folder.String(name)
}

type caseSensitiveStrategy struct{}

// CaseSensitiveIdStrategy matches identities byte for byte.
func CaseSensitiveIdStrategy() IdStrategy {
	return caseSensitiveStrategy{}
}

func (caseSensitiveStrategy) Equals(a, b string) bool { return a == b }
func (caseSensitiveStrategy) Key(name string) string  { return name }
