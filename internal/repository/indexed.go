package repository

import (
	"context"
	"fmt"
	"time"
)

// Hit is a single match returned by a VectorIndex
type Hit struct {
	ID       string
	Distance float64
}

// IndexPoint is a row's embedding plus the payload a VectorIndex needs to
// apply Filter without a round trip to the record store.
type IndexPoint struct {
	ID          string
	Vector      []float32
	SourceID    string
	ReportID    string
	PublishedAt *time.Time
}

// VectorIndex answers nearest-neighbour queries with ids only.
// It must apply q.Filter itself, including the date filter.
type VectorIndex interface {
	Nearest(ctx context.Context, kind EntityKind, q VectorQuery) ([]Hit, error)
}

// RecordLookup is a RecordStore that can also hydrate rows by id
type RecordLookup interface {
	RecordStore

	// ExcerptsByIDs returns the excerpts with the given ids in any order.
	// Unknown ids are skipped.
	ExcerptsByIDs(ctx context.Context, ids []string) ([]ExcerptRecord, error)

	// ReportsByIDs returns the reports with the given ids in any order.
	ReportsByIDs(ctx context.Context, ids []string) ([]ReportRecord, error)
}

// Indexed serves vector queries from a dedicated VectorIndex and everything
// else, including hydration of the index hits, from the underlying store.
type Indexed struct {
	RecordLookup
	index VectorIndex
}

// NewIndexed wraps base so that NearestExcerpts and NearestReports go through index
func NewIndexed(base RecordLookup, index VectorIndex) *Indexed {
	return &Indexed{RecordLookup: base, index: index}
}

// NearestExcerpts queries the index and hydrates the hits in index order
func (s *Indexed) NearestExcerpts(ctx context.Context, q VectorQuery) ([]ExcerptRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	hits, err := s.index.Nearest(ctx, KindExcerpt, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query excerpt index: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	records, err := s.ExcerptsByIDs(ctx, hitIDs(hits))
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate excerpt hits: %w", err)
	}
	byID := make(map[string]ExcerptRecord, len(records))
	for _, r := range records {
		byID[r.Excerpt.ID] = r
	}

	// Hits missing from the record store are stale index entries.
	out := make([]ExcerptRecord, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			continue
		}
		r.Distance = h.Distance
		out = append(out, r)
	}
	return out, nil
}

// NearestReports queries the index and hydrates the hits in index order
func (s *Indexed) NearestReports(ctx context.Context, q VectorQuery) ([]ReportRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	hits, err := s.index.Nearest(ctx, KindReport, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query report index: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	records, err := s.ReportsByIDs(ctx, hitIDs(hits))
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate report hits: %w", err)
	}
	byID := make(map[string]ReportRecord, len(records))
	for _, r := range records {
		byID[r.Report.ID] = r
	}

	out := make([]ReportRecord, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.ID]
		if !ok {
			continue
		}
		r.Distance = h.Distance
		out = append(out, r)
	}
	return out, nil
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

var _ RecordStore = (*Indexed)(nil)
