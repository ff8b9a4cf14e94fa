// Package fuzzy provides lexical string similarity scores on a 0-100 scale.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Scorer returns the similarity of two strings on a 0-100 scale.
type Scorer func(a, b string) float64

// Ratio is the normalized Indel similarity of a and b: 100 * 2*LCS / (len(a)+len(b)),
// measured in runes. Two empty strings are identical.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la+lb == 0 {
		return 100
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return 100 * float64(2*edlib.LCS(a, b)) / float64(la+lb)
}

// PartialRatio is the best Ratio of the shorter string against every
// same-length window of the longer one, plus the shorter windows at either
// edge of it. Equal-length strings are compared in both directions.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 100
		}
		return 0
	}
	best := partialRatio(ra, rb)
	if len(ra) == len(rb) && best < 100 {
		best = max(best, partialRatio(rb, ra))
	}
	return best
}

func partialRatio(short, long []rune) float64 {
	s := string(short)
	n, m := len(short), len(long)
	best := 0.0
	try := func(window []rune) bool {
		if r := Ratio(s, string(window)); r > best {
			best = r
		}
		return best == 100
	}
	for i := 1; i < n; i++ {
		if try(long[:i]) {
			return best
		}
	}
	for i := 0; i+n <= m; i++ {
		if try(long[i : i+n]) {
			return best
		}
	}
	for i := m - n + 1; i < m; i++ {
		if try(long[i:]) {
			return best
		}
	}
	return best
}

// TokenSortRatio compares the strings after sorting their whitespace-separated tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared tokens of a and b against each side's
// remainder and returns the best of the three pairings.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var inter, onlyA, onlyB []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(inter, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(combinedA, combinedB)
	if base != "" {
		best = max(best, Ratio(base, combinedA), Ratio(base, combinedB))
	}
	return best
}

// PartialTokenRatio is 100 when a and b share a token and otherwise the
// PartialRatio of their sorted tokens.
func PartialTokenRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	for t := range ta {
		if _, ok := tb[t]; ok {
			return 100
		}
	}
	return PartialRatio(sortedTokens(a), sortedTokens(b))
}

// WRatio is a weighted combination of the scorers above, applied to
// processed (lowercased, punctuation-free) strings. It favors whole-string
// agreement and discounts partial and token-reordered matches.
func WRatio(a, b string) float64 {
	a, b = Process(a), Process(b)
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}

	const unbaseScale = 0.95
	best := Ratio(a, b)
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	if lenRatio < 1.5 {
		return max(best,
			TokenSortRatio(a, b)*unbaseScale,
			TokenSetRatio(a, b)*unbaseScale)
	}

	partialScale := 0.9
	if lenRatio > 8 {
		partialScale = 0.6
	}
	return max(best,
		PartialRatio(a, b)*partialScale,
		PartialTokenRatio(a, b)*unbaseScale*partialScale)
}

// Process lowercases s, replaces non-alphanumeric characters with spaces
// and collapses whitespace.
func Process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Match is the result of ExtractOne.
type Match struct {
	Choice string
	Score  float64
	Index  int
}

// ExtractOne returns the choice scoring highest against query. The first
// choice reaching the maximum wins. ok is false when choices is empty.
func ExtractOne(query string, choices []string, scorer Scorer) (m Match, ok bool) {
	if scorer == nil {
		scorer = WRatio
	}
	m.Index = -1
	for i, c := range choices {
		score := scorer(query, c)
		if m.Index < 0 || score > m.Score {
			m = Match{Choice: c, Score: score, Index: i}
		}
	}
	return m, m.Index >= 0
}

func sortedTokens(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
