package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for kind, name := range kindNames {
		got, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, kind, got)
		assert.Equal(t, name, kind.String())
	}

	got, err := ParseKind("  Excerpt ")
	require.NoError(t, err)
	assert.Equal(t, KindExcerpt, got)

	_, err = ParseKind("chunks")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDateJoinFor(t *testing.T) {
	tests := []struct {
		kind    EntityKind
		direct  bool
		key     string
		wantErr error
	}{
		{kind: KindReport, direct: true},
		{kind: KindExcerpt, key: "report_id"},
		{kind: KindEntity, key: "report_id"},
		{kind: KindSource, wantErr: ErrNoDateJoin},
		{kind: KindUniqueEntity, wantErr: ErrNoDateJoin},
		{kind: EntityKind(42), wantErr: ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			join, err := DateJoinFor(tt.kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.direct, join.Direct())
			assert.Equal(t, tt.key, join.ReportKey)
		})
	}
}

func TestFilterEarliestDate(t *testing.T) {
	_, ok := Filter{}.EarliestDate()
	assert.False(t, ok)

	_, ok = Filter{EarliestYear: -1}.EarliestDate()
	assert.False(t, ok)

	cutoff, ok := Filter{EarliestYear: 2023}.EarliestDate()
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cutoff)
}
