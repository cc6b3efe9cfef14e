package catalogdb

import (
	"regexp"
	"sort"
	"strings"

	"github.com/medicompare/backend/internal/domain"
)

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// score rates how well a candidate covers the query, 0-100.
// The best of the canonical name and each alternative name counts.
func (s *Store) score(query string, c domain.Candidate) float64 {
	best := nameScore(query, s.key(c.Name))
	for _, alt := range c.AlternativeNames {
		// alternative names rank slightly below an equally good canonical name
		if sc := nameScore(query, s.key(alt)) * 0.95; sc > best {
			best = sc
		}
	}
	return best
}

// nameScore is a weighted combination of:
//   - query token coverage: what share of the query tokens appear in the name (most important)
//   - name token coverage: what share of the name tokens appear in the query
//   - Jaccard similarity of the two token sets
//
// plus a bonus when one string contains the other and a full score on equality.
func nameScore(query, name string) float64 {
	if query == "" || name == "" {
		return 0
	}
	if query == name {
		return 100
	}

	queryTokens := unique(tokenize(query))
	nameTokens := unique(tokenize(name))
	if len(queryTokens) == 0 || len(nameTokens) == 0 {
		return 0
	}

	queryMatched := countShared(queryTokens, nameTokens)
	nameMatched := countShared(nameTokens, queryTokens)
	union := len(unique(append(append([]string(nil), queryTokens...), nameTokens...)))

	queryCoverage := float64(queryMatched) / float64(len(queryTokens))
	nameCoverage := float64(nameMatched) / float64(len(nameTokens))
	jaccard := float64(queryMatched) / float64(union)

	score := (queryCoverage*0.60 + nameCoverage*0.20 + jaccard*0.20) * 100

	if strings.Contains(name, query) || strings.Contains(query, name) {
		score += 10
	}

	// equality already returned 100
	if score > 99 {
		score = 99
	}
	return score
}

// tokenize splits a key into tokens, dropping punctuation.
// Tokens match by prefix so that "glic" still covers "glicemie".
func tokenize(s string) []string {
	return strings.Fields(punctuationRegex.ReplaceAllString(s, " "))
}

func countShared(from, in []string) int {
	n := 0
	for _, a := range unique(from) {
		for _, b := range in {
			if a == b || (len([]rune(a)) >= 3 && strings.HasPrefix(b, a)) {
				n++
				break
			}
		}
	}
	return n
}

func unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// rankCandidates orders by descending score, then shorter names, then name
func rankCandidates(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := len([]rune(a.Name)), len([]rune(b.Name)); la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}
