package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/pgvector/pgvector-go"
)

// RecordRepo implements repository.RecordStore over the knowledge-store tables
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new record repository
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

var (
	_ repository.RecordStore  = (*RecordRepo)(nil)
	_ repository.RecordLookup = (*RecordRepo)(nil)
)

// Sources returns all sources ordered by id
func (r *RecordRepo) Sources(ctx context.Context) ([]*repository.Source, error) {
	qb := newQueryBuilder(repository.KindSource, sourceColumns)
	qb.orderBy("s.id")
	query, args := qb.build(0)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*repository.Source
	for rows.Next() {
		var src repository.Source
		if err := rows.Scan(sourceDest(&src)...); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// SourceIDs returns all source ids, sorted
func (r *RecordRepo) SourceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id FROM source ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan source ids: %w", err)
	}
	return ids, nil
}

// SourceByAbbreviation looks up a source by abbreviation
func (r *RecordRepo) SourceByAbbreviation(ctx context.Context, abbreviation string) (*repository.Source, error) {
	qb := newQueryBuilder(repository.KindSource, sourceColumns)
	qb.conditions = append(qb.conditions, fmt.Sprintf("UPPER(s.abbreviation) = %s",
		qb.addArg(strings.ToUpper(strings.TrimSpace(abbreviation)))))
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

// NearestExcerpts ranks excerpts by cosine distance
func (r *RecordRepo) NearestExcerpts(ctx context.Context, q repository.VectorQuery) ([]repository.ExcerptRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	qb := newExcerptQuery()
	qb.addVectorOrder(q.Vector)
	if err := qb.addFilter(q.Filter); err != nil {
		return nil, err
	}
	query, args := qb.build(q.Limit)
	return r.queryExcerpts(ctx, query, args, true)
}

// NearestReports ranks reports by cosine distance
func (r *RecordRepo) NearestReports(ctx context.Context, q repository.VectorQuery) ([]repository.ReportRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	qb := newReportQuery()
	qb.addVectorOrder(q.Vector)
	if err := qb.addFilter(q.Filter); err != nil {
		return nil, err
	}
	query, args := qb.build(q.Limit)
	return r.queryReports(ctx, query, args, true)
}

// MatchReports returns reports whose title or identifier contains q.Text
func (r *RecordRepo) MatchReports(ctx context.Context, q repository.TextQuery) ([]repository.ReportRecord, error) {
	if q.Limit <= 0 || q.Text == "" {
		return nil, nil
	}
	qb := newReportQuery()
	qb.addTitleMatch(q.Text)
	if err := qb.addFilter(q.Filter); err != nil {
		return nil, err
	}
	qb.orderBy("r.added_at, r.id")
	query, args := qb.build(q.Limit)
	return r.queryReports(ctx, query, args, false)
}

// ReportExcerpts returns up to limit excerpts of a report ordered by excerpt_index
func (r *RecordRepo) ReportExcerpts(ctx context.Context, reportID string, limit int) ([]repository.ExcerptRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	qb := newExcerptQuery()
	qb.addEquals("report_id", reportID)
	qb.orderBy("e.excerpt_index, e.id")
	query, args := qb.build(limit)
	return r.queryExcerpts(ctx, query, args, false)
}

// ExcerptsByIDs hydrates excerpts by id
func (r *RecordRepo) ExcerptsByIDs(ctx context.Context, ids []string) ([]repository.ExcerptRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	qb := newExcerptQuery()
	qb.addIDFilter(ids)
	query, args := qb.build(0)
	return r.queryExcerpts(ctx, query, args, false)
}

// ReportsByIDs hydrates reports by id
func (r *RecordRepo) ReportsByIDs(ctx context.Context, ids []string) ([]repository.ReportRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	qb := newReportQuery()
	qb.addIDFilter(ids)
	query, args := qb.build(0)
	return r.queryReports(ctx, query, args, false)
}

// Ping verifies the database is reachable
func (r *RecordRepo) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// Close closes the underlying pool
func (r *RecordRepo) Close() {
	r.db.Close()
}

// EmbeddingPage returns up to limit embedded rows of kind with id greater
// than afterID, ordered by id. It pages through a table for index sync.
func (r *RecordRepo) EmbeddingPage(ctx context.Context, kind repository.EntityKind, afterID string, limit int) ([]repository.IndexPoint, error) {
	var columns string
	switch kind {
	case repository.KindExcerpt:
		columns = "e.id, e.embedding, e.source_id, e.report_id, r.published_at"
	case repository.KindReport:
		columns = "r.id, r.embedding, r.source_id, r.id, r.published_at"
	default:
		return nil, fmt.Errorf("%w: %s has no vector index", repository.ErrUnknownKind, kind)
	}

	qb := newQueryBuilder(kind, columns)
	qb.joinReport("report_id")
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s.embedding IS NOT NULL", qb.alias))
	if afterID != "" {
		qb.conditions = append(qb.conditions, fmt.Sprintf("%s.id > %s", qb.alias, qb.addArg(afterID)))
	}
	qb.orderBy(qb.alias + ".id")
	query, args := qb.build(limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to page %s embeddings: %w", kind, err)
	}
	defer rows.Close()

	var points []repository.IndexPoint
	for rows.Next() {
		var p repository.IndexPoint
		var vec pgvector.Vector
		if err := rows.Scan(&p.ID, &vec, &p.SourceID, &p.ReportID, &p.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s embedding: %w", kind, err)
		}
		p.Vector = vec.Slice()
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *RecordRepo) queryExcerpts(ctx context.Context, query string, args []any, withDistance bool) ([]repository.ExcerptRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query excerpts: %w", err)
	}
	defer rows.Close()

	var records []repository.ExcerptRecord
	for rows.Next() {
		var (
			e         repository.Excerpt
			rep       repository.Report
			src       repository.Source
			rec       repository.ExcerptRecord
			jsonBytes []byte
			metaBytes []byte
		)
		dest := excerptDest(&e, &jsonBytes)
		dest = append(dest, reportDest(&rep, &metaBytes)...)
		dest = append(dest, sourceDest(&src)...)
		if withDistance {
			dest = append(dest, &rec.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan excerpt: %w", err)
		}
		if err := decodeJSON(jsonBytes, &e.JSONContent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal excerpt %s json_content: %w", e.ID, err)
		}
		if err := decodeJSON(metaBytes, &rep.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %s metadata: %w", rep.ID, err)
		}
		rec.Excerpt, rec.Report, rec.Source = &e, &rep, &src
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read excerpts: %w", err)
	}
	return records, nil
}

func (r *RecordRepo) queryReports(ctx context.Context, query string, args []any, withDistance bool) ([]repository.ReportRecord, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var records []repository.ReportRecord
	for rows.Next() {
		var (
			rep       repository.Report
			src       repository.Source
			rec       repository.ReportRecord
			metaBytes []byte
		)
		dest := reportDest(&rep, &metaBytes)
		dest = append(dest, sourceDest(&src)...)
		if withDistance {
			dest = append(dest, &rec.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := decodeJSON(metaBytes, &rep.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %s metadata: %w", rep.ID, err)
		}
		rec.Report, rec.Source = &rep, &src
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return records, nil
}

// Scan destinations, in the order of the column lists in query.go.

func sourceDest(s *repository.Source) []any {
	return []any{&s.ID, &s.Title, &s.Description, &s.Abbreviation, &s.URI, &s.AddedAt}
}

func reportDest(r *repository.Report, metadata *[]byte) []any {
	return []any{
		&r.ID, &r.SourceID, &r.Identifier, &r.Title, &r.ReportType, &r.URI,
		metadata, &r.NExcerpts, &r.Description, &r.SHA256Hash,
		&r.Version, &r.PublishedAt, &r.AddedAt,
	}
}

func excerptDest(e *repository.Excerpt, jsonContent *[]byte) []any {
	return []any{
		&e.ID, &e.ReportID, &e.SourceID, &e.Title, &e.ContentType, jsonContent,
		&e.Description, &e.ExcerptIndex, &e.TextContent, &e.AddedAt,
	}
}

func decodeJSON(data []byte, out *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
