package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/knoguchi/kgsearch/internal/repository"
	"golang.org/x/sync/errgroup"
)

// MinPerGroup is the smallest per-source sample size
const MinPerGroup = 2

// groupQuery fetches up to n rows of one partition
type groupQuery[T any] func(ctx context.Context, group string, n int) ([]T, error)

// Sampler runs one independent top-N query per group on a bounded pool.
// Each query acquires its own store connection.
type Sampler struct {
	maxParallel int
	logger      *slog.Logger
}

// NewSampler creates a sampler running at most maxParallel queries at once
func NewSampler(maxParallel int, logger *slog.Logger) *Sampler {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{maxParallel: maxParallel, logger: logger}
}

// sampleResult holds the per-group output of a fan-out
type sampleResult[T any] struct {
	// Groups holds the rows of each group, indexed like the input groups.
	// A group dropped by the deadline has a nil entry.
	Groups [][]T

	// Partial is set when the deadline cut off at least one group
	Partial bool
}

// Flatten concatenates the groups in input order
func (r sampleResult[T]) Flatten() []T {
	var out []T
	for _, g := range r.Groups {
		out = append(out, g...)
	}
	return out
}

// fanOut runs query once per group. A group that fails because the caller's
// deadline passed is dropped and marks the result partial; any other error
// cancels the remaining groups and is returned.
func fanOut[T any](ctx context.Context, s *Sampler, groups []string, n int, query groupQuery[T]) (sampleResult[T], error) {
	res := sampleResult[T]{Groups: make([][]T, len(groups))}
	if len(groups) == 0 || n <= 0 {
		return res, nil
	}

	dropped := make([]bool, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(groups), s.maxParallel))

	for i, group := range groups {
		g.Go(func() error {
			rows, err := query(gctx, group, n)
			if err != nil {
				if deadlineExceeded(ctx, err) {
					s.logger.Warn("group query cut off by deadline", "group", group)
					dropped[i] = true
					return nil
				}
				return fmt.Errorf("group %s: %w", group, err)
			}
			res.Groups[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sampleResult[T]{}, err
	}

	for _, d := range dropped {
		res.Partial = res.Partial || d
	}
	return res, nil
}

// Sources samples the n closest excerpts from each source independently and
// returns them globally re-sorted by ascending distance. The constraints in f
// apply inside every group, with f.SourceID replaced per group. n is raised
// to MinPerGroup.
func (s *Sampler) Sources(ctx context.Context, store repository.RecordStore, vec []float32, f repository.Filter, sourceIDs []string, n int) ([]repository.ExcerptRecord, bool, error) {
	n = max(n, MinPerGroup)
	res, err := fanOut[repository.ExcerptRecord](ctx, s, sourceIDs, n, func(ctx context.Context, sourceID string, n int) ([]repository.ExcerptRecord, error) {
		gf := f
		gf.SourceID = sourceID
		return store.NearestExcerpts(ctx, repository.VectorQuery{Vector: vec, Filter: gf, Limit: n})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to sample sources: %w", err)
	}
	records := res.Flatten()
	sortByDistance(records)
	return records, res.Partial, nil
}

// Children fetches up to n excerpts of every report, each report's excerpts
// ordered by excerpt_index, concatenated in report order.
func (s *Sampler) Children(ctx context.Context, store repository.RecordStore, reportIDs []string, n int) ([]repository.ExcerptRecord, bool, error) {
	res, err := fanOut[repository.ExcerptRecord](ctx, s, reportIDs, n, store.ReportExcerpts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch child excerpts: %w", err)
	}
	return res.Flatten(), res.Partial, nil
}

// sortByDistance sorts records ascending by distance, keeping the input
// order among ties.
func sortByDistance(records []repository.ExcerptRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Distance < records[j].Distance })
}

// deadlineExceeded reports whether err should be treated as the request
// deadline expiring rather than a store failure.
func deadlineExceeded(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
