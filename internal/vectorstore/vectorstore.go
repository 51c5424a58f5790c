// Package vectorstore provides a Qdrant-backed vector index for excerpt and report embeddings.
package vectorstore

import (
	"context"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// Payload keys stored with every point
const (
	payloadID          = "id"
	payloadSourceID    = "source_id"
	payloadReportID    = "report_id"
	payloadPublishedAt = "published_at"
)

// VectorStore defines the vector index operations used by retrieval and index sync
type VectorStore interface {
	repository.VectorIndex

	// EnsureCollection creates the collection for kind if it does not exist,
	// along with the payload indexes the filters rely on
	EnsureCollection(ctx context.Context, kind repository.EntityKind, dimension int) error

	// Upsert inserts or updates points of kind
	Upsert(ctx context.Context, kind repository.EntityKind, points []repository.IndexPoint) error

	// Close releases the client connection
	Close() error
}
