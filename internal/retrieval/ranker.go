package retrieval

import (
	"context"
	"fmt"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// Ranker orders rows by ascending cosine distance to a query vector.
// Ties keep the store's natural row order.
type Ranker struct {
	store repository.RecordStore
}

// NewRanker creates a ranker over store
func NewRanker(store repository.RecordStore) *Ranker {
	return &Ranker{store: store}
}

// Excerpts returns the limit excerpts closest to vec that pass f
func (r *Ranker) Excerpts(ctx context.Context, vec []float32, f repository.Filter, limit int) ([]repository.ExcerptRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	records, err := r.store.NearestExcerpts(ctx, repository.VectorQuery{Vector: vec, Filter: f, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to rank excerpts: %w", err)
	}
	return records, nil
}

// Reports returns the limit reports closest to vec that pass f
func (r *Ranker) Reports(ctx context.Context, vec []float32, f repository.Filter, limit int) ([]repository.ReportRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	records, err := r.store.NearestReports(ctx, repository.VectorQuery{Vector: vec, Filter: f, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to rank reports: %w", err)
	}
	return records, nil
}
