package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Field names of the indexed SNP documents used by the base filter.
const (
	ChromosomeField = "chr"
	PositionField   = "pos"
)

// AnnotationQuery is the user-level filter for a SNP search.
// Start and End are inclusive genomic coordinates; Start <= End is expected
// but left to the engine.
type AnnotationQuery struct {
	Source []string `json:"source"`
	Chrom  string   `json:"chrom"`
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
}

// Validate checks the constraints the query builder relies on.
func (q AnnotationQuery) Validate() error {
	if q.Chrom == "" {
		return NewValidationError("chrom", "chromosome is required", q.Chrom)
	}
	return nil
}

// EngineQuery is the engine-native search body.
type EngineQuery struct {
	Source []string  `json:"_source"`
	Query  BoolQuery `json:"query"`
}

// BoolQuery wraps a bool clause.
type BoolQuery struct {
	Bool BoolClause `json:"bool"`
}

// BoolClause holds non-scoring filter clauses that must all match.
type BoolClause struct {
	Filter []FilterClause `json:"filter"`
}

// FilterClause is either a term or a range clause.
type FilterClause struct {
	Term  map[string]string      `json:"term,omitempty"`
	Range map[string]RangeBounds `json:"range,omitempty"`
}

// RangeBounds is an inclusive numeric range.
type RangeBounds struct {
	GTE int64 `json:"gte"`
	LTE int64 `json:"lte"`
}

// ProjectionFields returns the fields the query projects.
func (q EngineQuery) ProjectionFields() []string {
	return q.Source
}

// SearchRequest is a single paged call against the engine.
type SearchRequest struct {
	From int         `json:"from"`
	Size int         `json:"size"`
	Body EngineQuery `json:"body"`
}

// ResultEnvelope is the raw engine response.
type ResultEnvelope struct {
	Hits EnvelopeHits `json:"hits"`
}

// EnvelopeHits holds the total and the matched documents.
type EnvelopeHits struct {
	Total HitsTotal `json:"total"`
	Hits  []Hit     `json:"hits"`
}

// Hit is one matched document.
type Hit struct {
	ID     string          `json:"_id,omitempty"`
	Source json.RawMessage `json:"_source"`
}

// HitsTotal is the engine-reported match count. The Elasticsearch client
// sends {"value": n, "relation": "eq"}; other SearchEngine implementations
// and recorded fixtures may carry a bare integer.
type HitsTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation,omitempty"`
}

// UnmarshalJSON accepts both total encodings.
func (t *HitsTotal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = HitsTotal{}
		return nil
	}
	if data[0] != '{' {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid hits total: %w", err)
		}
		*t = HitsTotal{Value: n, Relation: "eq"}
		return nil
	}
	type plain HitsTotal
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid hits total: %w", err)
	}
	*t = HitsTotal(p)
	return nil
}

// TotalMatches returns the engine-reported total.
func (e *ResultEnvelope) TotalMatches() int64 {
	if e == nil {
		return 0
	}
	return e.Hits.Total.Value
}

// ResultPage is one normalized page of search results.
type ResultPage struct {
	Query     EngineQuery       `json:"query"`
	Total     int64             `json:"total"`
	Size      int               `json:"size"`
	Page      int               `json:"page"`
	Snps      []json.RawMessage `json:"snps"`
	Source    []string          `json:"source"`
	RequestID uint64            `json:"request_id"`
}

// DownloadState is the opaque readiness payload of an export job.
type DownloadState struct {
	DownloadID string          `json:"download_id"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// OutcomeStatus classifies how a search resolved.
type OutcomeStatus string

const (
	OutcomePublished OutcomeStatus = "published"
	OutcomeEmpty     OutcomeStatus = "empty"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeStale     OutcomeStatus = "stale"
)

// SearchOutcome is the typed result of a search. Page is set only for
// published outcomes, Err only for failed ones.
type SearchOutcome struct {
	Status     OutcomeStatus `json:"status"`
	RequestID  uint64        `json:"request_id"`
	Page       *ResultPage   `json:"page,omitempty"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	ResolvedAt time.Time     `json:"resolved_at"`
}
