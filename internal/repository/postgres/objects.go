package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/knoguchi/kgsearch/internal/repository"
)

const reportCountsQuery = `SELECT source_id, COUNT(*) FROM report GROUP BY source_id`

// Overview counts reports per source and rows per table
func (r *RecordRepo) Overview(ctx context.Context) (*repository.Overview, error) {
	rows, err := r.db.Pool.Query(ctx, reportCountsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sourceID string
		var n int
		if err := rows.Scan(&sourceID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan report count: %w", err)
		}
		counts[sourceID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report counts: %w", err)
	}

	sizes := make([]int, len(overviewKinds))
	dest := make([]any, len(sizes))
	for i := range sizes {
		dest[i] = &sizes[i]
	}
	if err := r.db.Pool.QueryRow(ctx, tableSizesQuery()).Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to count tables: %w", err)
	}

	o := &repository.Overview{
		ReportCounts: counts,
		TableSizes:   make(map[repository.EntityKind]int, len(overviewKinds)),
	}
	for i, kind := range overviewKinds {
		o.TableSizes[kind] = sizes[i]
	}
	return o, nil
}

// Object returns the row of kind with id and its parents
func (r *RecordRepo) Object(ctx context.Context, kind repository.EntityKind, id string) (*repository.Object, error) {
	obj := &repository.Object{Kind: kind}
	switch kind {
	case repository.KindSource:
		src, err := r.source(ctx, id)
		if err != nil {
			return nil, err
		}
		obj.Source = src

	case repository.KindReport:
		qb := newReportQuery()
		qb.addEquals("id", id)
		query, args := qb.build(1)
		records, err := r.queryReports(ctx, query, args, false)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, repository.ErrNotFound
		}
		obj.Report, obj.Source = records[0].Report, records[0].Source

	case repository.KindExcerpt:
		rec, err := r.excerpt(ctx, id)
		if err != nil {
			return nil, err
		}
		obj.Excerpt, obj.Report, obj.Source = rec.Excerpt, rec.Report, rec.Source

	case repository.KindUniqueEntity:
		u, err := r.uentity(ctx, id)
		if err != nil {
			return nil, err
		}
		obj.UniqueEntity = u

	case repository.KindEntity:
		qb := newQueryBuilder(repository.KindEntity, entityColumns)
		qb.addEquals("id", id)
		query, args := qb.build(1)

		var e repository.Entity
		err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
			&e.ID, &e.UniqueEntityID, &e.ReportID, &e.SourceID, &e.ExcerptID,
			&e.Title, &e.EntityType, &e.AddedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, repository.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get entity: %w", err)
		}
		obj.Entity = &e

		if obj.UniqueEntity, err = r.uentity(ctx, e.UniqueEntityID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		rec, err := r.excerpt(ctx, e.ExcerptID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			obj.Excerpt, obj.Report, obj.Source = rec.Excerpt, rec.Report, rec.Source
		}

	default:
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownKind, kind)
	}
	return obj, nil
}

func (r *RecordRepo) source(ctx context.Context, id string) (*repository.Source, error) {
	qb := newQueryBuilder(repository.KindSource, sourceColumns)
	qb.addEquals("id", id)
	query, args := qb.build(1)

	var src repository.Source
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(sourceDest(&src)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}

func (r *RecordRepo) excerpt(ctx context.Context, id string) (*repository.ExcerptRecord, error) {
	qb := newExcerptQuery()
	qb.addEquals("id", id)
	query, args := qb.build(1)
	records, err := r.queryExcerpts(ctx, query, args, false)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, repository.ErrNotFound
	}
	return &records[0], nil
}

func (r *RecordRepo) uentity(ctx context.Context, id string) (*repository.UniqueEntity, error) {
	qb := newQueryBuilder(repository.KindUniqueEntity, uentityColumns)
	qb.addEquals("id", id)
	query, args := qb.build(1)

	var u repository.UniqueEntity
	if err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Title, &u.EntityType, &u.AddedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get uentity: %w", err)
	}
	return &u, nil
}
