package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pagedSource struct {
	points []repository.IndexPoint
	calls  int
}

func (s *pagedSource) EmbeddingPage(_ context.Context, _ repository.EntityKind, afterID string, limit int) ([]repository.IndexPoint, error) {
	s.calls++
	i := sort.Search(len(s.points), func(i int) bool { return s.points[i].ID > afterID })
	end := min(i+limit, len(s.points))
	return s.points[i:end], nil
}

type recordingStore struct {
	dimension int
	ensured   int
	upserts   [][]string
	err       error
}

func (s *recordingStore) Nearest(context.Context, repository.EntityKind, repository.VectorQuery) ([]repository.Hit, error) {
	return nil, nil
}

func (s *recordingStore) EnsureCollection(_ context.Context, _ repository.EntityKind, dimension int) error {
	s.ensured++
	s.dimension = dimension
	return nil
}

func (s *recordingStore) Upsert(_ context.Context, _ repository.EntityKind, points []repository.IndexPoint) error {
	if s.err != nil {
		return s.err
	}
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	s.upserts = append(s.upserts, ids)
	return nil
}

func (s *recordingStore) Close() error { return nil }

func points(n int) []repository.IndexPoint {
	out := make([]repository.IndexPoint, n)
	for i := range out {
		out[i] = repository.IndexPoint{ID: fmt.Sprintf("e%02d", i), Vector: []float32{1, 0, 0}, SourceID: "s1", ReportID: "r1"}
	}
	return out
}

func TestSyncPagesByID(t *testing.T) {
	src := &pagedSource{points: points(5)}
	dst := &recordingStore{}

	n, err := Sync(context.Background(), src, dst, repository.KindExcerpt, SyncOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, dst.ensured)
	assert.Equal(t, 3, dst.dimension)
	assert.Equal(t, [][]string{{"e00", "e01"}, {"e02", "e03"}, {"e04"}}, dst.upserts)
	assert.Equal(t, 3, src.calls)
}

func TestSyncExactPageBoundary(t *testing.T) {
	src := &pagedSource{points: points(4)}
	dst := &recordingStore{}

	n, err := Sync(context.Background(), src, dst, repository.KindReport, SyncOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 3, src.calls, "a full last page needs one more call to see the end")
}

func TestSyncEmptyTable(t *testing.T) {
	dst := &recordingStore{}
	n, err := Sync(context.Background(), &pagedSource{}, dst, repository.KindExcerpt, SyncOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, dst.ensured)
}

func TestSyncRejectsWrongDimension(t *testing.T) {
	src := &pagedSource{points: points(2)}
	_, err := Sync(context.Background(), src, &recordingStore{}, repository.KindExcerpt, SyncOptions{Dimension: 384})
	assert.ErrorContains(t, err, "want 384")
}

func TestSyncErrors(t *testing.T) {
	_, err := Sync(context.Background(), &pagedSource{}, &recordingStore{}, repository.KindSource, SyncOptions{})
	assert.ErrorIs(t, err, repository.ErrUnknownKind)

	boom := errors.New("qdrant unavailable")
	n, err := Sync(context.Background(), &pagedSource{points: points(3)}, &recordingStore{err: boom}, repository.KindExcerpt, SyncOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}
