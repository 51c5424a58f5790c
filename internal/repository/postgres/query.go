package postgres

import (
	"fmt"
	"strings"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/pgvector/pgvector-go"
)

// Hydrated column lists. Text columns are nullable in the schema, so they are
// coalesced to keep the scan targets plain strings.
const (
	sourceColumns = `s.id, COALESCE(s.title, ''), COALESCE(s.description, ''), COALESCE(s.abbreviation, ''), s.uri, s.added_at`

	reportColumns = `r.id, r.source_id, COALESCE(r.identifier, ''), COALESCE(r.title, ''), COALESCE(r.report_type, ''), r.uri,
		r.report_metadata, COALESCE(r.n_excerpts, 0), COALESCE(r.description, ''), COALESCE(r.sha256hash, ''),
		COALESCE(r.version, 0), r.published_at, r.added_at`

	excerptColumns = `e.id, e.report_id, e.source_id, COALESCE(e.title, ''), COALESCE(e.content_type, ''), e.json_content,
		COALESCE(e.description, ''), COALESCE(e.excerpt_index, 0), e.text_content, e.added_at`

	uentityColumns = `u.id, COALESCE(u.title, ''), COALESCE(u.entity_type, ''), u.added_at`

	entityColumns = `en.id, en.uentity_id, en.report_id, en.source_id, en.excerpt_id,
		COALESCE(en.title, ''), COALESCE(en.entity_type, ''), en.added_at`
)

// overviewKinds lists the tables counted by the overview, in column order
var overviewKinds = []repository.EntityKind{
	repository.KindSource,
	repository.KindReport,
	repository.KindExcerpt,
	repository.KindUniqueEntity,
	repository.KindEntity,
}

var tableAlias = map[repository.EntityKind]string{
	repository.KindSource:       "s",
	repository.KindReport:       "r",
	repository.KindExcerpt:      "e",
	repository.KindUniqueEntity: "u",
	repository.KindEntity:       "en",
}

// queryBuilder assembles SELECT statements with positional arguments.
// Everything caller-supplied goes through args; only identifiers derived
// from EntityKind are formatted into the SQL text.
type queryBuilder struct {
	kind         repository.EntityKind
	alias        string
	selectClause string
	joins        []string
	joined       map[string]bool
	conditions   []string
	args         []any
	argIndex     int
	orderClause  string
}

func newQueryBuilder(kind repository.EntityKind, selectClause string) *queryBuilder {
	return &queryBuilder{
		kind:         kind,
		alias:        tableAlias[kind],
		selectClause: selectClause,
		joined:       make(map[string]bool),
		conditions:   []string{"1=1"},
		argIndex:     1,
	}
}

// newExcerptQuery selects excerpts hydrated with their report and source.
func newExcerptQuery() *queryBuilder {
	qb := newQueryBuilder(repository.KindExcerpt, excerptColumns+", "+reportColumns+", "+sourceColumns)
	qb.joinReport("report_id")
	qb.joinSource()
	return qb
}

// newReportQuery selects reports hydrated with their source.
func newReportQuery() *queryBuilder {
	qb := newQueryBuilder(repository.KindReport, reportColumns+", "+sourceColumns)
	qb.joinSource()
	return qb
}

func (qb *queryBuilder) addArg(v any) string {
	qb.args = append(qb.args, v)
	placeholder := fmt.Sprintf("$%d", qb.argIndex)
	qb.argIndex++
	return placeholder
}

func (qb *queryBuilder) joinReport(reportKey string) {
	if qb.kind == repository.KindReport || qb.joined["r"] {
		return
	}
	qb.joins = append(qb.joins, fmt.Sprintf("JOIN report r ON r.id = %s.%s", qb.alias, reportKey))
	qb.joined["r"] = true
}

func (qb *queryBuilder) joinSource() {
	if qb.kind == repository.KindSource || qb.joined["s"] {
		return
	}
	qb.joins = append(qb.joins, fmt.Sprintf("JOIN source s ON s.id = %s.source_id", qb.alias))
	qb.joined["s"] = true
}

// addVectorOrder ranks rows by ascending cosine distance to vec.
// Rows without an embedding are never ranked.
func (qb *queryBuilder) addVectorOrder(vec []float32) {
	placeholder := qb.addArg(pgvector.NewVector(vec))
	qb.selectClause = fmt.Sprintf("%s, %s.embedding <=> %s AS distance", qb.selectClause, qb.alias, placeholder)
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s.embedding IS NOT NULL", qb.alias))
	qb.orderClause = fmt.Sprintf("ORDER BY distance, %s.id", qb.alias)
}

func (qb *queryBuilder) addSourceFilter(sourceID string) {
	if sourceID == "" {
		return
	}
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s.source_id = %s", qb.alias, qb.addArg(sourceID)))
}

// addDateFilter keeps rows whose report was published on or after January 1
// of f.EarliestYear. Reports with a null published_at are excluded.
func (qb *queryBuilder) addDateFilter(f repository.Filter) error {
	cutoff, ok := f.EarliestDate()
	if !ok {
		return nil
	}
	join, err := repository.DateJoinFor(qb.kind)
	if err != nil {
		return err
	}
	if !join.Direct() {
		qb.joinReport(join.ReportKey)
	}
	placeholder := qb.addArg(cutoff)
	qb.conditions = append(qb.conditions,
		"r.published_at IS NOT NULL",
		fmt.Sprintf("r.published_at >= %s", placeholder),
	)
	return nil
}

func (qb *queryBuilder) addFilter(f repository.Filter) error {
	qb.addSourceFilter(f.SourceID)
	return qb.addDateFilter(f)
}

// addTitleMatch keeps reports whose title or identifier contains text, case-insensitively.
func (qb *queryBuilder) addTitleMatch(text string) {
	placeholder := qb.addArg("%" + escapeLike(text) + "%")
	qb.conditions = append(qb.conditions,
		fmt.Sprintf(`(r.title ILIKE %s ESCAPE '\' OR r.identifier ILIKE %s ESCAPE '\')`, placeholder, placeholder))
}

func (qb *queryBuilder) addEquals(column string, v any) {
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s.%s = %s", qb.alias, column, qb.addArg(v)))
}

func (qb *queryBuilder) addIDFilter(ids []string) {
	qb.conditions = append(qb.conditions, fmt.Sprintf("%s.id = ANY(%s)", qb.alias, qb.addArg(ids)))
}

func (qb *queryBuilder) orderBy(clause string) {
	qb.orderClause = "ORDER BY " + clause
}

// build renders the statement. A limit of zero or less means no LIMIT clause.
func (qb *queryBuilder) build(limit int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s %s", qb.selectClause, qb.kind, qb.alias)
	for _, j := range qb.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(qb.conditions, " AND "))
	if qb.orderClause != "" {
		sb.WriteString(" ")
		sb.WriteString(qb.orderClause)
	}
	args := qb.args
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", qb.addArg(limit))
		args = qb.args
	}
	return sb.String(), args
}

// tableSizesQuery counts every table of overviewKinds in a single row
func tableSizesQuery() string {
	counts := make([]string, len(overviewKinds))
	for i, kind := range overviewKinds {
		counts[i] = fmt.Sprintf("(SELECT COUNT(*) FROM %s)", kind)
	}
	return "SELECT " + strings.Join(counts, ", ")
}

// escapeLike escapes LIKE wildcards so the text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
