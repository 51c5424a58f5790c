package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/knoguchi/kgsearch/internal/repository"
	"golang.org/x/sync/errgroup"
)

// NPerGroup returns the per-source sample size of mode for maxCount results
// spread over nSources sources. It is zero when mode does not sample or
// there are no sources.
func NPerGroup(mode Mode, maxCount, nSources int) int {
	if nSources <= 0 {
		return 0
	}
	switch mode {
	case ModePartial:
		return max(MinPerGroup, ceilDiv(maxCount, 2*nSources))
	case ModeFull:
		return max(MinPerGroup, ceilDiv(maxCount, nSources))
	default:
		return 0
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Blend is the raw output of the diversity blender, before deduplication.
type Blend struct {
	Mode      Mode
	Ranked    []repository.ExcerptRecord // global top-K part
	Sampled   []repository.ExcerptRecord // per-source part, sorted by distance
	NPerGroup int
	Sources   int
	Partial   bool
}

// Concat returns the ranked part followed by the sampled part
func (b *Blend) Concat() []repository.ExcerptRecord {
	out := make([]repository.ExcerptRecord, 0, len(b.Ranked)+len(b.Sampled))
	out = append(out, b.Ranked...)
	return append(out, b.Sampled...)
}

// Select deduplicates the blend by id and caps it to maxCount. The ranked
// part is kept first; the remaining slots are filled from the sampled part
// round-robin across sources, so every source keeps a near-equal share.
func (b *Blend) Select(maxCount int) []repository.ExcerptRecord {
	ranked := Dedupe(b.Ranked, excerptID)
	if len(ranked) > maxCount {
		ranked = ranked[:maxCount]
	}

	seen := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		seen[r.Excerpt.ID] = struct{}{}
	}
	var rest []repository.ExcerptRecord
	for _, r := range Dedupe(b.Sampled, excerptID) {
		if _, ok := seen[r.Excerpt.ID]; !ok {
			rest = append(rest, r)
		}
	}

	return append(ranked, roundRobin(rest, maxCount-len(ranked))...)
}

// roundRobin picks up to slots records, taking the i-th closest record of
// every source before any source's (i+1)-th. Sources are visited in order of
// their closest record. The picked records keep their input order.
func roundRobin(records []repository.ExcerptRecord, slots int) []repository.ExcerptRecord {
	if slots <= 0 {
		return nil
	}
	if len(records) <= slots {
		return records
	}

	var order []string
	bySource := make(map[string][]string)
	for _, r := range records {
		src := r.Excerpt.SourceID
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], r.Excerpt.ID)
	}

	keep := make(map[string]struct{}, slots)
	for round := 0; len(keep) < slots; round++ {
		progressed := false
		for _, src := range order {
			ids := bySource[src]
			if round >= len(ids) {
				continue
			}
			keep[ids[round]] = struct{}{}
			progressed = true
			if len(keep) == slots {
				break
			}
		}
		if !progressed {
			break
		}
	}

	out := make([]repository.ExcerptRecord, 0, slots)
	for _, r := range records {
		if _, ok := keep[r.Excerpt.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Blender chooses between plain ranking and per-source sampling
type Blender struct {
	store   repository.RecordStore
	ranker  *Ranker
	sampler *Sampler
	logger  *slog.Logger
}

// NewBlender creates a blender over store
func NewBlender(store repository.RecordStore, sampler *Sampler, logger *slog.Logger) *Blender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blender{store: store, ranker: NewRanker(store), sampler: sampler, logger: logger}
}

// Blend retrieves excerpts for vec under the policy selected by diversity.
// A source filter in f forces ModeNone, as does a store without sources.
func (b *Blender) Blend(ctx context.Context, vec []float32, f repository.Filter, diversity float64, maxCount int) (*Blend, error) {
	start := time.Now()
	mode := ModeFor(diversity)
	if f.SourceID != "" {
		mode = ModeNone
	}

	var sourceIDs []string
	if mode != ModeNone {
		ids, err := b.store.SourceIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sources: %w", err)
		}
		if len(ids) == 0 {
			mode = ModeNone
		}
		sourceIDs = ids
	}

	blend := &Blend{Mode: mode, Sources: len(sourceIDs)}
	rankLimit := maxCount
	switch mode {
	case ModePartial:
		rankLimit = maxCount / 2
		blend.NPerGroup = NPerGroup(mode, maxCount, len(sourceIDs))
	case ModeFull:
		rankLimit = 0
		blend.NPerGroup = NPerGroup(mode, maxCount, len(sourceIDs))
	}

	// The ranked and sampled parts are independent.
	var g errgroup.Group
	var rankPartial, samplePartial bool
	g.Go(func() error {
		ranked, err := b.ranker.Excerpts(ctx, vec, f, rankLimit)
		if err != nil {
			if deadlineExceeded(ctx, err) {
				rankPartial = true
				return nil
			}
			return err
		}
		blend.Ranked = ranked
		return nil
	})
	if blend.NPerGroup > 0 {
		g.Go(func() error {
			sampled, partial, err := b.sampler.Sources(ctx, b.store, vec, f, sourceIDs, blend.NPerGroup)
			if err != nil {
				return err
			}
			blend.Sampled, samplePartial = sampled, partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	blend.Partial = rankPartial || samplePartial

	b.logger.Debug("blended excerpts",
		"mode", mode.String(),
		"ranked", len(blend.Ranked),
		"sampled", len(blend.Sampled),
		"n_per_group", blend.NPerGroup,
		"sources", blend.Sources,
		"elapsed", time.Since(start),
	)
	return blend, nil
}
