// Package retrieval turns a free-text query into a ranked, deduplicated and
// source-diverse set of excerpts and their parent reports.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/knoguchi/kgsearch/internal/embedder"
	"github.com/knoguchi/kgsearch/internal/repository"
)

// Defaults used when no option overrides them
const (
	DefaultTimeout                = 20 * time.Second
	DefaultMaxParallel            = 16
	DefaultMaxCount               = 15
	DefaultMaxExcerptsPerReport   = 30
	DefaultStringMatchMaxCount    = 5
	DefaultChildExcerptsPerReport = 8
)

var errNoReport = errors.New("no report in source")

// Result is the response of a retrieval call
type Result struct {
	Query          string        `json:"query"`
	Diversity      float64       `json:"diversity"`
	Excerpts       []*ExcerptDoc `json:"excerpts"`
	Reports        []*ReportDoc  `json:"reports"`
	ElapsedSeconds float64       `json:"ragElapsedSeconds"`

	// Partial is set when the deadline cut off part of the search
	Partial bool `json:"partial,omitempty"`
}

// Engine runs retrieval requests against a record store
type Engine struct {
	store    repository.RecordStore
	embedder embedder.Embedder
	ranker   *Ranker
	sampler  *Sampler
	blender  *Blender
	matcher  *StringMatcher
	logger   *slog.Logger

	timeout              time.Duration
	maxParallel          int
	defaultMaxCount      int
	defaultMaxExcerpts   int
	stringMatchMinLength int
	stringMatchMaxCount  int
	childExcerpts        int
	sourceEarliestYear   map[string]int
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTimeout bounds a whole Retrieve call
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithMaxParallel caps the number of concurrent group queries
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		e.maxParallel = n
	}
}

// WithDefaults sets the max_count and max_excerpts_per_report used when a
// request leaves them unset
func WithDefaults(maxCount, maxExcerptsPerReport int) Option {
	return func(e *Engine) {
		e.defaultMaxCount = maxCount
		e.defaultMaxExcerpts = maxExcerptsPerReport
	}
}

// WithStringMatch configures the title/identifier fallback
func WithStringMatch(minLength, maxCount int) Option {
	return func(e *Engine) {
		e.stringMatchMinLength = minLength
		e.stringMatchMaxCount = maxCount
	}
}

// WithChildExcerpts sets how many excerpts are expanded per returned report
func WithChildExcerpts(n int) Option {
	return func(e *Engine) {
		e.childExcerpts = n
	}
}

// WithSourceEarliestYear pins earliest_year for datasets whose corpus only
// covers a known range, keyed by source abbreviation.
func WithSourceEarliestYear(years map[string]int) Option {
	return func(e *Engine) {
		e.sourceEarliestYear = make(map[string]int, len(years))
		for abbr, year := range years {
			e.sourceEarliestYear[strings.ToUpper(strings.TrimSpace(abbr))] = year
		}
	}
}

// NewEngine creates a new Engine
func NewEngine(store repository.RecordStore, emb embedder.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:               store,
		embedder:            emb,
		logger:              slog.Default(),
		timeout:             DefaultTimeout,
		maxParallel:         DefaultMaxParallel,
		defaultMaxCount:     DefaultMaxCount,
		defaultMaxExcerpts:  DefaultMaxExcerptsPerReport,
		stringMatchMaxCount: DefaultStringMatchMaxCount,
		childExcerpts:       DefaultChildExcerptsPerReport,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	e.ranker = NewRanker(store)
	e.sampler = NewSampler(e.maxParallel, e.logger)
	e.blender = NewBlender(store, e.sampler, e.logger)
	e.matcher = NewStringMatcher(store, e.stringMatchMinLength)
	return e
}

// Retrieve runs the full retrieval pipeline for req
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.normalize(e.defaultMaxCount, e.defaultMaxExcerpts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Info("retrieval request",
		"query", req.Query,
		"dataset", req.Dataset,
		"report", req.Report,
		"earliest_year", req.EarliestYear,
		"diversity", req.Diversity,
		"max_count", req.MaxCount,
	)

	if req.Report != "" && req.Dataset != "" {
		res, err := e.directReport(ctx, req)
		if err == nil {
			res.ElapsedSeconds = elapsedSeconds(start)
			return res, nil
		}
		e.logger.Warn("direct report lookup failed, falling back to search",
			"dataset", req.Dataset, "report", req.Report, "error", err)
	}

	vectors, err := e.embed(ctx, []string{req.Query})
	if err != nil {
		return nil, err
	}

	filter, diversity, err := e.resolveFilter(ctx, req)
	if err != nil {
		return nil, err
	}

	excerpts, partial, err := e.SemanticSearch(ctx, vectors[0], filter, diversity, req.MaxCount)
	if err != nil {
		return nil, err
	}

	parents := make([]repository.ReportRecord, 0, len(excerpts))
	for _, x := range excerpts {
		parents = append(parents, repository.ReportRecord{Report: x.Report, Source: x.Source})
	}

	stageStart := time.Now()
	matched, err := e.matcher.Reports(ctx, req.Query, filter, e.stringMatchMaxCount)
	if err != nil {
		if !deadlineExceeded(ctx, err) {
			return nil, err
		}
		partial = true
	}
	e.logger.Debug("string matched reports", "count", len(matched), "elapsed", time.Since(stageStart))

	reports := Dedupe(append(matched, parents...), reportID)

	stageStart = time.Now()
	reportIDs := make([]string, len(reports))
	for i, r := range reports {
		reportIDs[i] = r.Report.ID
	}
	children, childPartial, err := e.sampler.Children(ctx, e.store, reportIDs, e.childExcerpts)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("expanded child excerpts", "reports", len(reportIDs), "count", len(children), "elapsed", time.Since(stageStart))

	all := Dedupe(append(excerpts, children...), excerptID)

	res := &Result{
		Query:          req.Query,
		Diversity:      diversity,
		Excerpts:       excerptDocs(all),
		Reports:        reportDocs(reports),
		ElapsedSeconds: elapsedSeconds(start),
		Partial:        partial || childPartial,
	}
	e.logger.Info("retrieval complete",
		"excerpts", len(res.Excerpts),
		"reports", len(res.Reports),
		"partial", res.Partial,
		"elapsed_seconds", res.ElapsedSeconds,
	)
	return res, nil
}

// SemanticSearch returns at most maxCount excerpts for vec under the
// diversity policy, deduplicated by id. The second result reports whether
// the deadline cut off any sub-query.
func (e *Engine) SemanticSearch(ctx context.Context, vec []float32, f repository.Filter, diversity float64, maxCount int) ([]repository.ExcerptRecord, bool, error) {
	blend, err := e.blender.Blend(ctx, vec, f, diversity, maxCount)
	if err != nil {
		return nil, false, err
	}
	return blend.Select(maxCount), blend.Partial, nil
}

// Sources lists all sources
func (e *Engine) Sources(ctx context.Context) ([]*SourceDoc, error) {
	sources, err := e.store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	docs := make([]*SourceDoc, len(sources))
	for i, s := range sources {
		docs[i] = newSourceDoc(s)
	}
	return docs, nil
}

// Ping checks the record store
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) embed(ctx context.Context, texts []string) ([][]float32, error) {
	stageStart := time.Now()
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}
	e.logger.Debug("embedded query", "texts", len(texts), "elapsed", time.Since(stageStart))
	return vectors, nil
}

// resolveFilter turns the dataset and earliest_year of req into a filter.
// Any dataset forces diversity to zero. An unknown dataset drops the source
// constraint but keeps diversity at zero.
func (e *Engine) resolveFilter(ctx context.Context, req Request) (repository.Filter, float64, error) {
	f := repository.Filter{EarliestYear: req.EarliestYear}
	diversity := req.Diversity
	if req.Dataset == "" {
		return f, diversity, nil
	}

	diversity = 0
	if year, ok := e.sourceEarliestYear[strings.ToUpper(req.Dataset)]; ok {
		f.EarliestYear = year
	}

	src, err := e.store.SourceByAbbreviation(ctx, req.Dataset)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		e.logger.Warn("unknown dataset, searching all sources", "dataset", req.Dataset)
	case err != nil:
		return f, diversity, fmt.Errorf("failed to resolve dataset %q: %w", req.Dataset, err)
	default:
		f.SourceID = src.ID
	}
	return f, diversity, nil
}

// directReport returns the single report of req.Dataset closest to the
// report name, with its excerpts in excerpt_index order. Any error, an
// embedding failure included, sends the caller to the general path.
func (e *Engine) directReport(ctx context.Context, req Request) (*Result, error) {
	src, err := e.store.SourceByAbbreviation(ctx, req.Dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dataset: %w", err)
	}

	vectors, err := e.embed(ctx, []string{req.Report})
	if err != nil {
		return nil, err
	}

	reports, err := e.ranker.Reports(ctx, vectors[0], repository.Filter{SourceID: src.ID}, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, errNoReport
	}
	report := reports[0]

	children, err := e.store.ReportExcerpts(ctx, report.Report.ID, req.MaxExcerptsPerReport)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch report excerpts: %w", err)
	}

	reportDoc := newReportDoc(report)
	nested := make([]*ExcerptDoc, len(children))
	for i, c := range children {
		nested[i] = &ExcerptDoc{Excerpt: c.Excerpt, ObjectType: ObjectTypeExcerpt}
	}

	excerpts := excerptDocs(children)
	for _, x := range excerpts {
		x.Report = reportDoc
	}

	matchDoc := *reportDoc
	matchDoc.Excerpts = nested
	matchDoc.Match = MatchReportTitle

	return &Result{
		Query:     req.Query,
		Diversity: req.Diversity,
		Excerpts:  excerpts,
		Reports:   []*ReportDoc{&matchDoc},
	}, nil
}

func elapsedSeconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
