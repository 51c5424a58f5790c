package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNPerGroup(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		maxCount int
		sources  int
		expected int
	}{
		{"full 30 over 9", ModeFull, 30, 9, 4},
		{"partial 30 over 9", ModePartial, 30, 9, 2},
		{"partial 15 over 3", ModePartial, 15, 3, 3},
		{"full floor of two", ModeFull, 15, 20, 2},
		{"full exact split", ModeFull, 20, 5, 4},
		{"none", ModeNone, 30, 9, 0},
		{"no sources", ModeFull, 30, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NPerGroup(tt.mode, tt.maxCount, tt.sources))
		})
	}
}

func TestBlendFullDiversityNineSources(t *testing.T) {
	store := nineSources(t)
	b := NewBlender(store, NewSampler(4, nil), nil)

	blend, err := b.Blend(context.Background(), queryVec, repository.Filter{}, 1.0, 30)
	require.NoError(t, err)

	assert.Equal(t, ModeFull, blend.Mode)
	assert.Equal(t, 4, blend.NPerGroup)
	assert.Empty(t, blend.Ranked)
	require.Len(t, blend.Sampled, 36)
	assert.False(t, blend.Partial)

	perSource := make(map[string]int)
	for _, r := range blend.Sampled {
		perSource[r.Excerpt.SourceID]++
	}
	assert.Len(t, perSource, 9)
	for src, n := range perSource {
		assert.Equal(t, 4, n, src)
	}
	for i := 1; i < len(blend.Sampled); i++ {
		assert.LessOrEqual(t, blend.Sampled[i-1].Distance, blend.Sampled[i].Distance)
	}

	selected := blend.Select(30)
	require.Len(t, selected, 30)
	ids := make([]string, len(selected))
	perSource = make(map[string]int)
	for i, r := range selected {
		ids[i] = r.Excerpt.ID
		perSource[r.Excerpt.SourceID]++
	}
	requireUnique(t, ids)
	assert.Equal(t, map[string]int{
		"src-0": 4, "src-1": 4, "src-2": 4,
		"src-3": 3, "src-4": 3, "src-5": 3, "src-6": 3, "src-7": 3, "src-8": 3,
	}, perSource)
}

func TestBlendPartialDiversity(t *testing.T) {
	store := nineSources(t)
	b := NewBlender(store, NewSampler(16, nil), nil)

	blend, err := b.Blend(context.Background(), queryVec, repository.Filter{}, 0.5, 10)
	require.NoError(t, err)

	assert.Equal(t, ModePartial, blend.Mode)
	assert.Equal(t, 2, blend.NPerGroup)
	require.Len(t, blend.Ranked, 5)
	assert.Len(t, blend.Sampled, 18)
	assert.Len(t, blend.Concat(), 23)

	selected := blend.Select(10)
	ids := make([]string, len(selected))
	for i, r := range selected {
		ids[i] = r.Excerpt.ID
	}
	assert.Equal(t, []string{
		"ex-0-0", "ex-1-0", "ex-2-0", "ex-3-0", "ex-4-0",
		"ex-5-0", "ex-6-0", "ex-7-0", "ex-8-0", "ex-0-1",
	}, ids)
}

func TestBlendSourceFilterForcesNone(t *testing.T) {
	store := nineSources(t)
	b := NewBlender(store, NewSampler(16, nil), nil)

	blend, err := b.Blend(context.Background(), queryVec, repository.Filter{SourceID: "src-3"}, 1.0, 4)
	require.NoError(t, err)

	assert.Equal(t, ModeNone, blend.Mode)
	assert.Empty(t, blend.Sampled)
	require.Len(t, blend.Ranked, 4)
	for _, r := range blend.Ranked {
		assert.Equal(t, "src-3", r.Excerpt.SourceID)
	}
}

func TestBlendWithoutSources(t *testing.T) {
	store := newTestStore(t)
	b := NewBlender(store, NewSampler(16, nil), nil)

	blend, err := b.Blend(context.Background(), queryVec, repository.Filter{}, 1.0, 10)
	require.NoError(t, err)
	assert.Equal(t, ModeNone, blend.Mode)
	assert.Empty(t, blend.Select(10))
}

func TestBlendPartialOnDeadline(t *testing.T) {
	store := &slowStore{Store: nineSources(t).Store, slowSource: "src-4"}
	b := NewBlender(store, NewSampler(16, nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	blend, err := b.Blend(ctx, queryVec, repository.Filter{}, 1.0, 30)
	require.NoError(t, err)
	assert.True(t, blend.Partial)
	assert.Len(t, blend.Sampled, 32)
	for _, r := range blend.Sampled {
		assert.NotEqual(t, "src-4", r.Excerpt.SourceID)
	}
}

func TestBlendStoreErrorFails(t *testing.T) {
	store := &failingStore{Store: nineSources(t).Store, badSource: "src-2"}
	b := NewBlender(store, NewSampler(16, nil), nil)

	_, err := b.Blend(context.Background(), queryVec, repository.Filter{}, 1.0, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestRoundRobin(t *testing.T) {
	rec := func(id, src string, d float64) repository.ExcerptRecord {
		return repository.ExcerptRecord{Excerpt: &repository.Excerpt{ID: id, SourceID: src}, Distance: d}
	}
	records := []repository.ExcerptRecord{
		rec("a1", "A", 0.1),
		rec("a2", "A", 0.2),
		rec("b1", "B", 0.3),
		rec("a3", "A", 0.4),
		rec("c1", "C", 0.5),
		rec("b2", "B", 0.6),
	}

	ids := func(rs []repository.ExcerptRecord) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Excerpt.ID
		}
		return out
	}

	assert.Equal(t, []string{"a1", "b1", "c1"}, ids(roundRobin(records, 3)))
	assert.Equal(t, []string{"a1", "a2", "b1", "c1"}, ids(roundRobin(records, 4)))
	assert.Equal(t, []string{"a1", "a2", "b1", "c1", "b2"}, ids(roundRobin(records, 5)))
	assert.Len(t, roundRobin(records, 10), 6)
	assert.Empty(t, roundRobin(records, 0))
}

func TestDedupeIsIdempotent(t *testing.T) {
	in := []string{"a", "b", "a", "c", "b", "d"}
	key := func(s string) string { return s }

	once := Dedupe(in, key)
	assert.Equal(t, []string{"a", "b", "c", "d"}, once)
	assert.Equal(t, once, Dedupe(once, key))
	assert.Empty(t, Dedupe([]string(nil), key))
}
