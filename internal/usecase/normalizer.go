package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizerConfig holds configuration for the normalizer
type NormalizerConfig struct {
	// FoldDiacritics strips combining marks (ă -> a, ș -> s). Off by default.
	// The Candidate Source must index with the same setting or exact matches are missed.
	FoldDiacritics bool
}

// Normalizer canonicalizes catalog names, typed queries and OCR lines into comparison keys
type Normalizer struct {
	foldDiacritics bool
}

// NewNormalizer creates a normalizer with the given configuration
func NewNormalizer(config NormalizerConfig) *Normalizer {
	return &Normalizer{foldDiacritics: config.FoldDiacritics}
}

// Key returns the comparison key for text: trim, case-fold, collapse whitespace runs.
// Pure and deterministic.
func (n *Normalizer) Key(text string) string {
	s := norm.NFKC.String(text)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	if n.foldDiacritics {
		s = foldMarks(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// Equivalent reports whether two texts share a normalized key
func (n *Normalizer) Equivalent(a, b string) bool {
	return n.Key(a) == n.Key(b)
}

// KeyLength returns the number of characters in the normalized key
func (n *Normalizer) KeyLength(text string) int {
	return utf8.RuneCountInString(n.Key(text))
}

// FoldsDiacritics reports whether this normalizer strips combining marks
func (n *Normalizer) FoldsDiacritics() bool {
	return n.foldDiacritics
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
