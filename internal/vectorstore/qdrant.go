package vectorstore

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements VectorStore using Qdrant
type QdrantStore struct {
	client *qdrant.Client
	prefix string
}

// QdrantOption configures a QdrantStore
type QdrantOption func(*qdrantConfig)

type qdrantConfig struct {
	apiKey string
	useTLS bool
	prefix string
}

// WithAPIKey authenticates against Qdrant Cloud or a secured instance
func WithAPIKey(key string) QdrantOption {
	return func(c *qdrantConfig) {
		c.apiKey = key
		c.useTLS = key != ""
	}
}

// WithCollectionPrefix sets the prefix of the excerpt and report collection names
func WithCollectionPrefix(prefix string) QdrantOption {
	return func(c *qdrantConfig) {
		c.prefix = prefix
	}
}

// NewQdrantStore creates a new Qdrant vector store client
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url string, opts ...QdrantOption) (*QdrantStore, error) {
	cfg := &qdrantConfig{prefix: "kg_"}
	for _, opt := range opts {
		opt(cfg)
	}

	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.apiKey,
		UseTLS: cfg.useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach qdrant: %w", err)
	}

	return &QdrantStore{client: client, prefix: cfg.prefix}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// collectionName returns the collection name for a kind
func (s *QdrantStore) collectionName(kind repository.EntityKind) string {
	return s.prefix + kind.String()
}

// EnsureCollection creates the collection and its payload indexes when missing
func (s *QdrantStore) EnsureCollection(ctx context.Context, kind repository.EntityKind, dimension int) error {
	if err := indexable(kind); err != nil {
		return err
	}
	name := s.collectionName(kind)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for field, fieldType := range payloadIndexes {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.PtrOf(fieldType),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index on %s: %w", field, name, err)
		}
	}
	return nil
}

var payloadIndexes = map[string]qdrant.FieldType{
	payloadSourceID:    qdrant.FieldType_FieldTypeKeyword,
	payloadReportID:    qdrant.FieldType_FieldTypeKeyword,
	payloadPublishedAt: qdrant.FieldType_FieldTypeInteger,
}

// Upsert inserts or updates points of kind
func (s *QdrantStore) Upsert(ctx context.Context, kind repository.EntityKind, points []repository.IndexPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := indexable(kind); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(p.ID)),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: buildPayload(p),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName(kind),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// Nearest returns the ids closest to q.Vector, with cosine distance derived from the score
func (s *QdrantStore) Nearest(ctx context.Context, kind repository.EntityKind, q repository.VectorQuery) ([]repository.Hit, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	if err := indexable(kind); err != nil {
		return nil, err
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName(kind),
		Query:          qdrant.NewQuery(q.Vector...),
		Filter:         buildFilter(q.Filter),
		Limit:          qdrant.PtrOf(uint64(q.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	return toHits(response), nil
}

// toHits converts scored points into hits ordered by distance, then id.
// Qdrant leaves the order of equal scores unspecified.
func toHits(points []*qdrant.ScoredPoint) []repository.Hit {
	hits := make([]repository.Hit, 0, len(points))
	for _, point := range points {
		hits = append(hits, repository.Hit{
			ID:       hitID(point),
			Distance: 1 - float64(point.GetScore()),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// buildFilter translates a record filter into Qdrant conditions.
// Points stored without published_at have no such payload key, so a range
// condition never matches them.
func buildFilter(f repository.Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.SourceID != "" {
		must = append(must, qdrant.NewMatch(payloadSourceID, f.SourceID))
	}
	if cutoff, ok := f.EarliestDate(); ok {
		must = append(must, qdrant.NewRange(payloadPublishedAt, &qdrant.Range{
			Gte: qdrant.PtrOf(float64(cutoff.Unix())),
		}))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func buildPayload(p repository.IndexPoint) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadID:       qdrant.NewValueString(p.ID),
		payloadSourceID: qdrant.NewValueString(p.SourceID),
		payloadReportID: qdrant.NewValueString(p.ReportID),
	}
	if p.PublishedAt != nil {
		payload[payloadPublishedAt] = qdrant.NewValueInt(p.PublishedAt.Unix())
	}
	return payload
}

// pointID maps a record id onto a Qdrant point id. Qdrant only accepts
// UUIDs or integers, so other ids are hashed into a name-based UUID and the
// original id is kept in the payload.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("kgsearch:"+id)).String()
}

func hitID(point *qdrant.ScoredPoint) string {
	if v, ok := point.GetPayload()[payloadID]; ok && v.GetStringValue() != "" {
		return v.GetStringValue()
	}
	return point.GetId().GetUuid()
}

func indexable(kind repository.EntityKind) error {
	switch kind {
	case repository.KindExcerpt, repository.KindReport:
		return nil
	default:
		return fmt.Errorf("%w: %s has no vector index", repository.ErrUnknownKind, kind)
	}
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
