package validation

import (
	"strings"

	"github.com/refmatch/refmatch/internal/model"
)

// institutionStopwords are generic tokens stripped before comparing
// institution names, so "Test University" and "Test University Medical
// Center" compare on their distinctive parts.
var institutionStopwords = map[string]bool{
	"university": true,
	"college":    true,
	"institute":  true,
	"hospital":   true,
	"medical":    true,
	"center":     true,
}

// levenshtein computes the edit distance between two strings by rune.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// NameSimilarity returns 1 - levenshtein/max(len) over the normalized
// forms of two names. Two empty names are fully similar.
func NameSimilarity(a, b string) float64 {
	na, nb := model.NormalizeName(a), model.NormalizeName(b)
	longest := max(len([]rune(na)), len([]rune(nb)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(na, nb))/float64(longest)
}

// InstitutionSimilarity compares institution names after case-folding and
// stopword removal.
func InstitutionSimilarity(a, b string) float64 {
	return NameSimilarity(stripInstitutionStopwords(a), stripInstitutionStopwords(b))
}

func stripInstitutionStopwords(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	kept := fields[:0]
	for _, f := range fields {
		if !institutionStopwords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}
