// Package memory provides an in-process RecordStore, used for local development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// Ensure Store implements the interfaces.
var (
	_ repository.RecordStore  = (*Store)(nil)
	_ repository.RecordLookup = (*Store)(nil)
)

// Store keeps sources, reports and excerpts in insertion order.
// Insertion order is the natural row order used to break distance ties.
type Store struct {
	mu         sync.RWMutex
	sources    []*repository.Source
	reports    []*repository.Report
	excerpts   []*repository.Excerpt
	sourceByID map[string]*repository.Source
	reportByID map[string]*repository.Report
	excerptIdx map[string]int
	uentities  map[string]*repository.UniqueEntity
	entities   map[string]*repository.Entity
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sourceByID: make(map[string]*repository.Source),
		reportByID: make(map[string]*repository.Report),
		excerptIdx: make(map[string]int),
		uentities:  make(map[string]*repository.UniqueEntity),
		entities:   make(map[string]*repository.Entity),
	}
}

// AddSource stores a source. A source with the same id is replaced.
func (s *Store) AddSource(src *repository.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sourceByID[src.ID]; !ok {
		s.sources = append(s.sources, src)
	} else {
		for i, existing := range s.sources {
			if existing.ID == src.ID {
				s.sources[i] = src
			}
		}
	}
	s.sourceByID[src.ID] = src
}

// AddReport stores a report. Its source must already exist.
func (s *Store) AddReport(r *repository.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sourceByID[r.SourceID]; !ok {
		return fmt.Errorf("report %s: unknown source %s", r.ID, r.SourceID)
	}
	if _, ok := s.reportByID[r.ID]; ok {
		return fmt.Errorf("report %s already exists", r.ID)
	}
	s.reports = append(s.reports, r)
	s.reportByID[r.ID] = r
	return nil
}

// AddExcerpt stores an excerpt. Its report and source must already exist.
func (s *Store) AddExcerpt(e *repository.Excerpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reportByID[e.ReportID]
	if !ok {
		return fmt.Errorf("excerpt %s: unknown report %s", e.ID, e.ReportID)
	}
	if e.SourceID == "" {
		e.SourceID = report.SourceID
	}
	if e.SourceID != report.SourceID {
		return fmt.Errorf("excerpt %s: source %s does not match report source %s", e.ID, e.SourceID, report.SourceID)
	}
	if _, ok := s.excerptIdx[e.ID]; ok {
		return fmt.Errorf("excerpt %s already exists", e.ID)
	}
	s.excerptIdx[e.ID] = len(s.excerpts)
	s.excerpts = append(s.excerpts, e)
	return nil
}

// AddUniqueEntity stores a unique entity. One with the same id is replaced.
func (s *Store) AddUniqueEntity(u *repository.UniqueEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uentities[u.ID] = u
}

// AddEntity stores an entity mention. Its unique entity and excerpt must
// already exist; report and source ids are taken from the excerpt.
func (s *Store) AddEntity(e *repository.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uentities[e.UniqueEntityID]; !ok {
		return fmt.Errorf("entity %s: unknown uentity %s", e.ID, e.UniqueEntityID)
	}
	idx, ok := s.excerptIdx[e.ExcerptID]
	if !ok {
		return fmt.Errorf("entity %s: unknown excerpt %s", e.ID, e.ExcerptID)
	}
	if _, ok := s.entities[e.ID]; ok {
		return fmt.Errorf("entity %s already exists", e.ID)
	}
	excerpt := s.excerpts[idx]
	e.ReportID = excerpt.ReportID
	e.SourceID = excerpt.SourceID
	s.entities[e.ID] = e
	return nil
}

// Fixture is the on-disk JSON layout accepted by Load.
type Fixture struct {
	Sources   []*repository.Source       `json:"sources"`
	Reports   []fixtureReport            `json:"reports"`
	Excerpts  []fixtureExcerpt           `json:"excerpts"`
	UEntities []*repository.UniqueEntity `json:"uentities"`
	Entities  []*repository.Entity       `json:"entities"`
}

type fixtureReport struct {
	repository.Report
	Embedding []float32 `json:"embedding"`
}

type fixtureExcerpt struct {
	repository.Excerpt
	Embedding []float32 `json:"embedding"`
}

// Load reads a JSON fixture file into a new store.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return LoadFrom(f)
}

// LoadFrom reads a JSON fixture into a new store.
func LoadFrom(r io.Reader) (*Store, error) {
	var fx Fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}

	s := New()
	for _, src := range fx.Sources {
		s.AddSource(src)
	}
	for i := range fx.Reports {
		report := fx.Reports[i].Report
		report.Embedding = fx.Reports[i].Embedding
		if err := s.AddReport(&report); err != nil {
			return nil, err
		}
	}
	for i := range fx.Excerpts {
		excerpt := fx.Excerpts[i].Excerpt
		excerpt.Embedding = fx.Excerpts[i].Embedding
		if err := s.AddExcerpt(&excerpt); err != nil {
			return nil, err
		}
	}
	for _, u := range fx.UEntities {
		s.AddUniqueEntity(u)
	}
	for _, e := range fx.Entities {
		if err := s.AddEntity(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Sources returns all sources ordered by id.
func (s *Store) Sources(_ context.Context) ([]*repository.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*repository.Source, len(s.sources))
	copy(out, s.sources)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SourceIDs returns all source ids, sorted.
func (s *Store) SourceIDs(ctx context.Context) ([]string, error) {
	sources, _ := s.Sources(ctx)
	ids := make([]string, len(sources))
	for i, src := range sources {
		ids[i] = src.ID
	}
	return ids, nil
}

// SourceByAbbreviation looks up a source by abbreviation.
func (s *Store) SourceByAbbreviation(_ context.Context, abbreviation string) (*repository.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := strings.ToUpper(strings.TrimSpace(abbreviation))
	for _, src := range s.sources {
		if strings.ToUpper(src.Abbreviation) == want {
			return src, nil
		}
	}
	return nil, repository.ErrNotFound
}

// NearestExcerpts ranks excerpts by cosine distance to q.Vector.
func (s *Store) NearestExcerpts(ctx context.Context, q repository.VectorQuery) ([]repository.ExcerptRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []repository.ExcerptRecord
	for _, e := range s.excerpts {
		if q.Filter.SourceID != "" && e.SourceID != q.Filter.SourceID {
			continue
		}
		report := s.reportByID[e.ReportID]
		if !passesDate(report, q.Filter) {
			continue
		}
		d, ok := CosineDistance(q.Vector, e.Embedding)
		if !ok {
			continue
		}
		out = append(out, repository.ExcerptRecord{
			Excerpt:  e,
			Report:   report,
			Source:   s.sourceByID[e.SourceID],
			Distance: d,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// NearestReports ranks reports by cosine distance to q.Vector.
func (s *Store) NearestReports(ctx context.Context, q repository.VectorQuery) ([]repository.ReportRecord, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []repository.ReportRecord
	for _, r := range s.reports {
		if q.Filter.SourceID != "" && r.SourceID != q.Filter.SourceID {
			continue
		}
		if !passesDate(r, q.Filter) {
			continue
		}
		d, ok := CosineDistance(q.Vector, r.Embedding)
		if !ok {
			continue
		}
		out = append(out, repository.ReportRecord{Report: r, Source: s.sourceByID[r.SourceID], Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// MatchReports returns reports whose title or identifier contains q.Text.
func (s *Store) MatchReports(ctx context.Context, q repository.TextQuery) ([]repository.ReportRecord, error) {
	if q.Limit <= 0 || q.Text == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q.Text)
	var out []repository.ReportRecord
	for _, r := range s.reports {
		if len(out) >= q.Limit {
			break
		}
		if q.Filter.SourceID != "" && r.SourceID != q.Filter.SourceID {
			continue
		}
		if !passesDate(r, q.Filter) {
			continue
		}
		if !strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.Identifier), needle) {
			continue
		}
		out = append(out, repository.ReportRecord{Report: r, Source: s.sourceByID[r.SourceID]})
	}
	return out, nil
}

// ReportExcerpts returns up to limit excerpts of a report ordered by excerpt_index.
func (s *Store) ReportExcerpts(ctx context.Context, reportID string, limit int) ([]repository.ExcerptRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reportByID[reportID]
	if !ok {
		return nil, nil
	}
	var out []repository.ExcerptRecord
	for _, e := range s.excerpts {
		if e.ReportID == reportID {
			out = append(out, repository.ExcerptRecord{Excerpt: e, Report: report, Source: s.sourceByID[e.SourceID]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Excerpt.ExcerptIndex < out[j].Excerpt.ExcerptIndex })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExcerptsByIDs hydrates excerpts by id.
func (s *Store) ExcerptsByIDs(_ context.Context, ids []string) ([]repository.ExcerptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.ExcerptRecord, 0, len(ids))
	for _, id := range ids {
		idx, ok := s.excerptIdx[id]
		if !ok {
			continue
		}
		e := s.excerpts[idx]
		out = append(out, repository.ExcerptRecord{Excerpt: e, Report: s.reportByID[e.ReportID], Source: s.sourceByID[e.SourceID]})
	}
	return out, nil
}

// ReportsByIDs hydrates reports by id.
func (s *Store) ReportsByIDs(_ context.Context, ids []string) ([]repository.ReportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]repository.ReportRecord, 0, len(ids))
	for _, id := range ids {
		r, ok := s.reportByID[id]
		if !ok {
			continue
		}
		out = append(out, repository.ReportRecord{Report: r, Source: s.sourceByID[r.SourceID]})
	}
	return out, nil
}

// Overview counts reports per source and rows per table.
func (s *Store) Overview(ctx context.Context) (*repository.Overview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.reports {
		counts[r.SourceID]++
	}
	return &repository.Overview{
		ReportCounts: counts,
		TableSizes: map[repository.EntityKind]int{
			repository.KindSource:       len(s.sources),
			repository.KindReport:       len(s.reports),
			repository.KindExcerpt:      len(s.excerpts),
			repository.KindUniqueEntity: len(s.uentities),
			repository.KindEntity:       len(s.entities),
		},
	}, nil
}

// Object returns the row of kind with id and its parents.
func (s *Store) Object(ctx context.Context, kind repository.EntityKind, id string) (*repository.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := &repository.Object{Kind: kind}
	switch kind {
	case repository.KindSource:
		obj.Source = s.sourceByID[id]
		if obj.Source == nil {
			return nil, repository.ErrNotFound
		}
	case repository.KindReport:
		obj.Report = s.reportByID[id]
		if obj.Report == nil {
			return nil, repository.ErrNotFound
		}
		obj.Source = s.sourceByID[obj.Report.SourceID]
	case repository.KindExcerpt:
		idx, ok := s.excerptIdx[id]
		if !ok {
			return nil, repository.ErrNotFound
		}
		obj.Excerpt = s.excerpts[idx]
		obj.Report = s.reportByID[obj.Excerpt.ReportID]
		obj.Source = s.sourceByID[obj.Excerpt.SourceID]
	case repository.KindUniqueEntity:
		obj.UniqueEntity = s.uentities[id]
		if obj.UniqueEntity == nil {
			return nil, repository.ErrNotFound
		}
	case repository.KindEntity:
		obj.Entity = s.entities[id]
		if obj.Entity == nil {
			return nil, repository.ErrNotFound
		}
		obj.UniqueEntity = s.uentities[obj.Entity.UniqueEntityID]
		obj.Report = s.reportByID[obj.Entity.ReportID]
		obj.Source = s.sourceByID[obj.Entity.SourceID]
		if idx, ok := s.excerptIdx[obj.Entity.ExcerptID]; ok {
			obj.Excerpt = s.excerpts[idx]
		}
	default:
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownKind, kind)
	}
	return obj, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// passesDate applies the report date filter. Reports without a
// published_at never pass an active filter.
func passesDate(r *repository.Report, f repository.Filter) bool {
	cutoff, ok := f.EarliestDate()
	if !ok {
		return true
	}
	if r == nil || r.PublishedAt == nil {
		return false
	}
	return !r.PublishedAt.Before(cutoff)
}

// CosineDistance returns 1 - cos(a, b). The second result is false when
// either vector is empty, zero, or the lengths differ; such rows are not
// ranked.
func CosineDistance(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
}
