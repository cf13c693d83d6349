package sources

import "github.com/refmatch/refmatch/internal/model"

// accumulator merges author mentions within a single adapter response.
// The same name across multiple publications of one query accumulates
// publicationCount and unions research areas and affiliations. Merging
// across adapters is the aggregator's job, never the adapter's.
type accumulator struct {
	source model.SourceID
	order  []string
	byKey  map[string]*model.Author
}

func newAccumulator(source model.SourceID) *accumulator {
	return &accumulator{source: source, byKey: make(map[string]*model.Author)}
}

// add records one author mention on one publication.
func (ac *accumulator) add(name, externalID, email string, affs []model.Affiliation, areas, mesh []string) {
	key := model.NormalizeName(name)
	if key == "" {
		return
	}

	if a, ok := ac.byKey[key]; ok {
		a.PublicationCount++
		a.Affiliations = model.MergeAffiliations(a.Affiliations, affs)
		a.ResearchAreas = model.MergeStringSets(a.ResearchAreas, areas)
		a.MeshTerms = model.MergeStringSets(a.MeshTerms, mesh)
		if a.Email == "" {
			a.Email = email
		}
		return
	}

	ac.byKey[key] = &model.Author{
		ID:               SyntheticAuthorID(ac.source, name, externalID),
		Name:             name,
		Email:            email,
		Affiliations:     model.MergeAffiliations(nil, affs),
		PublicationCount: 1,
		ResearchAreas:    model.MergeStringSets(nil, areas),
		MeshTerms:        model.MergeStringSets(nil, mesh),
	}
	ac.order = append(ac.order, key)
}

// authors returns the accumulated records in first-seen order.
func (ac *accumulator) authors() []model.Author {
	out := make([]model.Author, 0, len(ac.order))
	for _, key := range ac.order {
		out = append(out, *ac.byKey[key])
	}
	return out
}
