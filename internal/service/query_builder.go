package service

import (
	"github.com/snp-search-service/internal/domain"
)

// BuildQuery converts an annotation filter into an engine query. Every input
// mode currently yields the same base query: the projected fields, an exact
// chromosome term and an inclusive position range.
func BuildQuery(mode domain.InputMode, filter domain.AnnotationQuery) domain.EngineQuery {
	query := baseQuery(filter)

	switch mode {
	case domain.ByChromosome:
	case domain.ByVariantList:
	case domain.ByGeneProduct:
	case domain.ByRsID:
	}

	return query
}

func baseQuery(filter domain.AnnotationQuery) domain.EngineQuery {
	source := make([]string, len(filter.Source))
	copy(source, filter.Source)

	return domain.EngineQuery{
		Source: source,
		Query: domain.BoolQuery{
			Bool: domain.BoolClause{
				Filter: []domain.FilterClause{
					{Term: map[string]string{domain.ChromosomeField: filter.Chrom}},
					{Range: map[string]domain.RangeBounds{
						domain.PositionField: {GTE: filter.Start, LTE: filter.End},
					}},
				},
			},
		},
	}
}
