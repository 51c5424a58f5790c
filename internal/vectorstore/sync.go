package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// DefaultSyncBatchSize is the page size used when copying embeddings
const DefaultSyncBatchSize = 500

// PointSource pages embedded rows out of the record store, ordered by id
type PointSource interface {
	EmbeddingPage(ctx context.Context, kind repository.EntityKind, afterID string, limit int) ([]repository.IndexPoint, error)
}

// SyncOptions controls Sync
type SyncOptions struct {
	// Dimension of the collection. Zero takes it from the first point.
	Dimension int

	// BatchSize is the page size (default: 500).
	BatchSize int

	Logger *slog.Logger
}

// Sync copies every embedded row of kind from src into dst, creating the
// collection first. Points are upserted, so a rerun picks up new rows and
// refreshes changed ones. It returns the number of points written.
func Sync(ctx context.Context, src PointSource, dst VectorStore, kind repository.EntityKind, opts SyncOptions) (int, error) {
	if err := indexable(kind); err != nil {
		return 0, err
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultSyncBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dimension := opts.Dimension
	ensured := false
	total := 0
	after := ""
	for {
		points, err := src.EmbeddingPage(ctx, kind, after, batch)
		if err != nil {
			return total, err
		}
		if len(points) == 0 {
			break
		}

		if !ensured {
			if dimension <= 0 {
				dimension = len(points[0].Vector)
			}
			if err := dst.EnsureCollection(ctx, kind, dimension); err != nil {
				return total, err
			}
			ensured = true
		}
		for _, p := range points {
			if len(p.Vector) != dimension {
				return total, fmt.Errorf("failed to sync %s %s: vector has %d dimensions, want %d", kind, p.ID, len(p.Vector), dimension)
			}
		}

		if err := dst.Upsert(ctx, kind, points); err != nil {
			return total, err
		}
		total += len(points)
		after = points[len(points)-1].ID
		logger.Debug("synced embedding page", "kind", kind.String(), "points", len(points), "total", total)

		if len(points) < batch {
			break
		}
	}

	logger.Info("index sync finished", "kind", kind.String(), "points", total)
	return total, nil
}
