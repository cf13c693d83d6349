package sources

import (
	"fmt"
	"strings"

	"github.com/refmatch/refmatch/internal/model"
)

// BuildQuery synthesizes the source-specific boolean query for terms.
// A caller-supplied boolean query for the source takes precedence. Empty
// terms produce the empty string.
func BuildQuery(source model.SourceID, terms model.SearchTerms) string {
	if q, ok := terms.BooleanQueries[source]; ok && strings.TrimSpace(q) != "" {
		return q
	}
	switch source {
	case model.SourcePubMed:
		return buildPubMedQuery(terms)
	case model.SourceElsevier:
		return buildScopusQuery(terms)
	case model.SourceWiley, model.SourceTaylorFrancis:
		return buildCrossrefQuery(terms)
	default:
		return ""
	}
}

// buildPubMedQuery uses E-utilities field hints:
// (kw[Title/Abstract] OR ...) OR (mesh[MeSH Terms] OR ...).
func buildPubMedQuery(terms model.SearchTerms) string {
	var groups []string
	if kw := joinFielded(terms.Keywords, "[Title/Abstract]"); kw != "" {
		groups = append(groups, kw)
	}
	if mesh := joinFielded(terms.MeshTerms, "[MeSH Terms]"); mesh != "" {
		groups = append(groups, mesh)
	}
	return strings.Join(groups, " OR ")
}

func joinFielded(terms []string, field string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, t+field)
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// buildScopusQuery wraps each term in TITLE-ABS-KEY(...).
func buildScopusQuery(terms model.SearchTerms) string {
	all := append(append([]string{}, terms.Keywords...), terms.MeshTerms...)
	parts := make([]string, 0, len(all))
	for _, t := range all {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("TITLE-ABS-KEY(%s)", t))
	}
	return strings.Join(parts, " OR ")
}

// buildCrossrefQuery produces title:<term> OR abstract:<term> pairs; the
// member filter is a query parameter, not part of the boolean query.
func buildCrossrefQuery(terms model.SearchTerms) string {
	all := append(append([]string{}, terms.Keywords...), terms.MeshTerms...)
	parts := make([]string, 0, len(all)*2)
	for _, t := range all {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("title:%s OR abstract:%s", t, t))
	}
	return strings.Join(parts, " OR ")
}
