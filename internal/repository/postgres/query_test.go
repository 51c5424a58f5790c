package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcerptVectorQuery(t *testing.T) {
	tests := []struct {
		name             string
		filter           repository.Filter
		limit            int
		expectedContains []string
		expectedMissing  []string
		expectedLen      int
	}{
		{
			name:   "no_filter",
			filter: repository.Filter{},
			limit:  15,
			expectedContains: []string{
				"FROM excerpt e",
				"JOIN report r ON r.id = e.report_id",
				"JOIN source s ON s.id = e.source_id",
				"e.embedding <=> $1 AS distance",
				"e.embedding IS NOT NULL",
				"ORDER BY distance, e.id LIMIT $2",
			},
			expectedMissing: []string{"published_at >=", "e.source_id ="},
			expectedLen:     2,
		},
		{
			name:   "source_filter",
			filter: repository.Filter{SourceID: "src-cisa"},
			limit:  4,
			expectedContains: []string{
				"e.source_id = $2",
				"LIMIT $3",
			},
			expectedMissing: []string{"published_at >="},
			expectedLen:     3,
		},
		{
			name:   "source_and_date_filter",
			filter: repository.Filter{SourceID: "src-eia", EarliestYear: 2023},
			limit:  4,
			expectedContains: []string{
				"e.source_id = $2",
				"r.published_at IS NOT NULL",
				"r.published_at >= $3",
				"LIMIT $4",
			},
			expectedLen: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := newExcerptQuery()
			qb.addVectorOrder([]float32{0.1, 0.2, 0.3})
			require.NoError(t, qb.addFilter(tt.filter))
			sql, args := qb.build(tt.limit)

			for _, s := range tt.expectedContains {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.expectedMissing {
				assert.NotContains(t, sql, s)
			}
			require.Len(t, args, tt.expectedLen)
			assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2, 0.3}), args[0])
			assert.Equal(t, tt.limit, args[len(args)-1])
		})
	}
}

func TestDateFilterCutoff(t *testing.T) {
	qb := newReportQuery()
	require.NoError(t, qb.addDateFilter(repository.Filter{EarliestYear: 2023}))
	sql, args := qb.build(0)

	assert.Contains(t, sql, "r.published_at >= $1")
	// reports carry published_at themselves, so no extra join is added
	assert.Equal(t, 1, strings.Count(sql, "JOIN"))
	require.Len(t, args, 1)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), args[0])
}

func TestDateFilterJoinPaths(t *testing.T) {
	f := repository.Filter{EarliestYear: 2020}

	t.Run("entity joins report", func(t *testing.T) {
		qb := newQueryBuilder(repository.KindEntity, "en.id")
		require.NoError(t, qb.addDateFilter(f))
		sql, _ := qb.build(0)
		assert.Contains(t, sql, "FROM entity en JOIN report r ON r.id = en.report_id")
	})

	t.Run("source has no join path", func(t *testing.T) {
		qb := newQueryBuilder(repository.KindSource, sourceColumns)
		err := qb.addDateFilter(f)
		assert.ErrorIs(t, err, repository.ErrNoDateJoin)
	})

	t.Run("uentity has no join path", func(t *testing.T) {
		qb := newQueryBuilder(repository.KindUniqueEntity, "u.id")
		err := qb.addDateFilter(f)
		assert.ErrorIs(t, err, repository.ErrNoDateJoin)
	})

	t.Run("no year is a no-op even without a join path", func(t *testing.T) {
		qb := newQueryBuilder(repository.KindSource, sourceColumns)
		require.NoError(t, qb.addDateFilter(repository.Filter{}))
		_, args := qb.build(0)
		assert.Empty(t, args)
	})
}

func TestTitleMatchQuery(t *testing.T) {
	qb := newReportQuery()
	qb.addTitleMatch("ICSA-25_056%")
	require.NoError(t, qb.addFilter(repository.Filter{SourceID: "src-cisa"}))
	qb.orderBy("r.added_at, r.id")
	sql, args := qb.build(5)

	assert.Contains(t, sql, `(r.title ILIKE $1 ESCAPE '\' OR r.identifier ILIKE $1 ESCAPE '\')`)
	assert.Contains(t, sql, "r.source_id = $2")
	assert.Contains(t, sql, "ORDER BY r.added_at, r.id LIMIT $3")
	require.Len(t, args, 3)
	assert.Equal(t, `%ICSA-25\_056\%%`, args[0])
}

func TestChildExcerptQuery(t *testing.T) {
	qb := newExcerptQuery()
	qb.addEquals("report_id", "rep-1")
	qb.orderBy("e.excerpt_index, e.id")
	sql, args := qb.build(30)

	assert.Contains(t, sql, "e.report_id = $1")
	assert.Contains(t, sql, "ORDER BY e.excerpt_index, e.id LIMIT $2")
	assert.Equal(t, []any{"rep-1", 30}, args)
}

func TestIDFilterQuery(t *testing.T) {
	qb := newReportQuery()
	qb.addIDFilter([]string{"a", "b"})
	sql, args := qb.build(0)

	assert.Contains(t, sql, "r.id = ANY($1)")
	assert.NotContains(t, sql, "LIMIT")
	assert.Equal(t, []any{[]string{"a", "b"}}, args)
}

func TestTableSizesQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT (SELECT COUNT(*) FROM source), (SELECT COUNT(*) FROM report), (SELECT COUNT(*) FROM excerpt), "+
			"(SELECT COUNT(*) FROM uentity), (SELECT COUNT(*) FROM entity)",
		tableSizesQuery())
}

func TestObjectQueries(t *testing.T) {
	tests := []struct {
		kind     repository.EntityKind
		columns  string
		expected string
	}{
		{repository.KindSource, sourceColumns, "FROM source s WHERE 1=1 AND s.id = $1 LIMIT $2"},
		{repository.KindUniqueEntity, uentityColumns, "FROM uentity u WHERE 1=1 AND u.id = $1 LIMIT $2"},
		{repository.KindEntity, entityColumns, "FROM entity en WHERE 1=1 AND en.id = $1 LIMIT $2"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			qb := newQueryBuilder(tt.kind, tt.columns)
			qb.addEquals("id", "obj-1")
			sql, args := qb.build(1)

			assert.Contains(t, sql, tt.expected)
			assert.Equal(t, []any{"obj-1", 1}, args)
		})
	}

	qb := newExcerptQuery()
	qb.addEquals("id", "ex-1")
	sql, _ := qb.build(1)
	assert.Contains(t, sql, "JOIN report r ON r.id = e.report_id")
	assert.Contains(t, sql, "e.id = $1")
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain":    "plain",
		"50%":      `50\%`,
		"a_b":      `a\_b`,
		`back\sl`:  `back\\sl`,
		`%_\`:      `\%\_\\`,
		"CVE-2024": "CVE-2024",
	}
	for in, want := range tests {
		assert.Equal(t, want, escapeLike(in), in)
	}
}
