package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const defaultMaxDetectedLines = 20

// Compiled regex patterns for OCR line cleanup
var (
	// Bullets, list numbering and stray punctuation at the start: "1) ", "- ", "• ", "2. "
	leadingMarkerPattern = regexp.MustCompile(`^[-•*\d.)\s]+`)

	// Result values or notes after a colon or equals sign: "Glicemie: 95 mg/dl"
	trailingValuePattern = regexp.MustCompile(`\s*[:=].*$`)

	// Value after a spaced dash: "TSH - 2.1". "Anti-HCV" is kept intact.
	trailingDashPattern = regexp.MustCompile(`\s+[-–]\s+.*$`)

	// Parenthesized notes: "Hemoleucograma (HLG)"
	parenthesizedPattern = regexp.MustCompile(`\s*\([^)]*\)\s*`)

	// Header and footer lines of lab forms and recommendations
	skipLinePattern = regexp.MustCompile(`(?i)\b(pacient|doctor|medic|data|ora|spital|clinica|laborator|rezultat|valori|normale|referinta|unitate|metoda|pagina|semnatura|parafa|cnp)`)

	// A run of at least four letters, the weakest sign of a test name
	wordPattern = regexp.MustCompile(`\p{L}{4,}`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// shortTestNames are acronyms that are valid lines on their own despite being short
var shortTestNames = map[string]bool{
	"tsh": true, "ft3": true, "ft4": true, "t3": true, "t4": true,
	"pcr": true, "vsh": true, "alt": true, "ast": true, "ggt": true,
	"hdl": true, "ldl": true, "fsh": true, "lh": true, "hiv": true,
	"cbc": true, "hlg": true, "hba1c": true, "psa": true, "inr": true,
}

// LinePreprocessor turns raw OCR output into candidate test names
type LinePreprocessor struct {
	maxLines int
	logger   zerolog.Logger
}

// NewLinePreprocessor creates a preprocessor keeping at most maxLines lines
func NewLinePreprocessor(maxLines int, logger zerolog.Logger) *LinePreprocessor {
	if maxLines <= 0 {
		maxLines = defaultMaxDetectedLines
	}
	return &LinePreprocessor{
		maxLines: maxLines,
		logger:   logger.With().Str("component", "ocr_lines").Logger(),
	}
}

// Preprocess cleans, filters and de-duplicates recognized lines, keeping their order.
// Entries containing newlines are split first.
func (p *LinePreprocessor) Preprocess(lines []string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, raw := range lines {
		for _, line := range strings.Split(raw, "\n") {
			if len(out) >= p.maxLines {
				return out
			}

			cleaned := CleanDetectedLine(line)
			if !isLikelyTestLine(cleaned) {
				if strings.TrimSpace(line) != "" {
					p.logger.Debug().Str("line", line).Msg("skipped")
				}
				continue
			}

			key := strings.ToLower(cleaned)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, cleaned)
		}
	}

	return out
}

// CleanDetectedLine strips list markers, trailing values and parenthesized notes
func CleanDetectedLine(line string) string {
	// Step 1: Remove leading bullets and numbering
	cleaned := leadingMarkerPattern.ReplaceAllString(strings.TrimSpace(line), "")

	// Step 2: Remove trailing values
	cleaned = trailingValuePattern.ReplaceAllString(cleaned, "")
	cleaned = trailingDashPattern.ReplaceAllString(cleaned, "")

	// Step 3: Remove parenthesized notes
	cleaned = parenthesizedPattern.ReplaceAllString(cleaned, " ")

	// Step 4: Normalize whitespace
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// isLikelyTestLine decides whether a cleaned line may name a medical test
func isLikelyTestLine(line string) bool {
	if shortTestNames[strings.ToLower(line)] {
		return true
	}

	n := utf8.RuneCountInString(line)
	if n < 3 || n > 100 {
		return false
	}

	// Lines that are mostly digits are values, dates or phone numbers
	digits := 0
	for _, r := range line {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if float64(digits) > float64(n)*0.3 {
		return false
	}

	// "Colesterol total" is a test; a bare "Total" is a footer
	if skipLinePattern.MatchString(line) || strings.EqualFold(line, "total") {
		return false
	}

	return wordPattern.MatchString(line)
}
