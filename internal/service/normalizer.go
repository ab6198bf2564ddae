package service

import (
	"encoding/json"

	"github.com/snp-search-service/internal/domain"
)

// Normalize maps an engine envelope to a result page. A zero total yields
// nil, which callers publish to clear any previously displayed page.
func Normalize(envelope *domain.ResultEnvelope, query domain.EngineQuery, pageSize int) *domain.ResultPage {
	total := envelope.TotalMatches()
	if total <= 0 {
		return nil
	}

	snps := make([]json.RawMessage, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		snps = append(snps, hit.Source)
	}

	return &domain.ResultPage{
		Query:  query,
		Total:  total,
		Size:   pageSize,
		Snps:   snps,
		Source: query.ProjectionFields(),
	}
}
