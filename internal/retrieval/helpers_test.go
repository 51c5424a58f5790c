package retrieval

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

var queryVec = []float32{1, 0}

// near returns a unit vector at cosine distance d from queryVec
func near(d float64) []float32 {
	c := 1 - d
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func year(y int) *time.Time {
	t := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

type testStore struct {
	*memory.Store
	t *testing.T
}

func newTestStore(t *testing.T) *testStore {
	return &testStore{Store: memory.New(), t: t}
}

func (s *testStore) source(id, abbr string) {
	s.AddSource(&repository.Source{ID: id, Abbreviation: abbr, Title: abbr})
}

func (s *testStore) report(id, sourceID, title string, published *time.Time, d float64) {
	require.NoError(s.t, s.AddReport(&repository.Report{
		ID:          id,
		SourceID:    sourceID,
		Identifier:  id,
		Title:       title,
		PublishedAt: published,
		Embedding:   near(d),
	}))
}

func (s *testStore) excerpt(id, reportID string, idx int, d float64) {
	require.NoError(s.t, s.AddExcerpt(&repository.Excerpt{
		ID:           id,
		ReportID:     reportID,
		ExcerptIndex: idx,
		Embedding:    near(d),
	}))
}

// nineSources builds 9 sources with one report and 6 excerpts each.
// Excerpt j of source i sits at distance 0.01*i + 0.1*j.
func nineSources(t *testing.T) *testStore {
	s := newTestStore(t)
	for i := range 9 {
		src := fmt.Sprintf("src-%d", i)
		rep := fmt.Sprintf("rep-%d", i)
		s.source(src, fmt.Sprintf("S%d", i))
		s.report(rep, src, fmt.Sprintf("Report %d", i), year(2024), 0.5)
		for j := range 6 {
			s.excerpt(fmt.Sprintf("ex-%d-%d", i, j), rep, j, 0.01*float64(i)+0.1*float64(j))
		}
	}
	return s
}

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   [][]string
	err     error

	// failOn fails any batch containing this text
	failOn string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && slices.Contains(texts, f.failOn) {
		return nil, fmt.Errorf("cannot embed %q", f.failOn)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			out[i] = queryVec
		}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 2 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

// slowStore blocks vector queries of one source until the context ends
type slowStore struct {
	*memory.Store
	slowSource string
}

func (s *slowStore) NearestExcerpts(ctx context.Context, q repository.VectorQuery) ([]repository.ExcerptRecord, error) {
	if q.Filter.SourceID == s.slowSource {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.NearestExcerpts(ctx, q)
}

// failingStore fails vector queries of one source
type failingStore struct {
	*memory.Store
	badSource string
}

func (s *failingStore) NearestExcerpts(ctx context.Context, q repository.VectorQuery) ([]repository.ExcerptRecord, error) {
	if q.Filter.SourceID == s.badSource {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return s.Store.NearestExcerpts(ctx, q)
}

func excerptIDs(docs []*ExcerptDoc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func reportIDs(docs []*ReportDoc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func requireUnique(t *testing.T, ids []string) {
	t.Helper()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
