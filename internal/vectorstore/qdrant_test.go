package vectorstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(repository.Filter{}))

	f := buildFilter(repository.Filter{SourceID: "src-eia"})
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, payloadSourceID, field.GetKey())
	assert.Equal(t, "src-eia", field.GetMatch().GetKeyword())

	f = buildFilter(repository.Filter{SourceID: "src-eia", EarliestYear: 2023})
	require.Len(t, f.GetMust(), 2)
	rng := f.GetMust()[1].GetField()
	assert.Equal(t, payloadPublishedAt, rng.GetKey())
	want := float64(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	assert.Equal(t, want, rng.GetRange().GetGte())
}

func TestBuildPayload(t *testing.T) {
	published := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	payload := buildPayload(repository.IndexPoint{
		ID:          "e1",
		SourceID:    "s1",
		ReportID:    "r1",
		PublishedAt: &published,
	})
	assert.Equal(t, "e1", payload[payloadID].GetStringValue())
	assert.Equal(t, "s1", payload[payloadSourceID].GetStringValue())
	assert.Equal(t, "r1", payload[payloadReportID].GetStringValue())
	assert.Equal(t, published.Unix(), payload[payloadPublishedAt].GetIntegerValue())

	payload = buildPayload(repository.IndexPoint{ID: "e2", SourceID: "s1", ReportID: "r1"})
	_, ok := payload[payloadPublishedAt]
	assert.False(t, ok, "undated points carry no published_at so range filters skip them")
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	hashed := pointID("ICSA-25-056-01")
	_, err := uuid.Parse(hashed)
	require.NoError(t, err)
	assert.Equal(t, hashed, pointID("ICSA-25-056-01"))
	assert.NotEqual(t, hashed, pointID("ICSA-25-056-02"))
}

func TestHitID(t *testing.T) {
	withPayload := &qdrant.ScoredPoint{
		Id:      qdrant.NewIDUUID(pointID("e1")),
		Payload: map[string]*qdrant.Value{payloadID: qdrant.NewValueString("e1")},
	}
	assert.Equal(t, "e1", hitID(withPayload))

	id := uuid.NewString()
	bare := &qdrant.ScoredPoint{Id: qdrant.NewIDUUID(id)}
	assert.Equal(t, id, hitID(bare))
}

func TestCollectionNameAndKinds(t *testing.T) {
	s := &QdrantStore{prefix: "kg_"}
	assert.Equal(t, "kg_excerpt", s.collectionName(repository.KindExcerpt))
	assert.Equal(t, "kg_report", s.collectionName(repository.KindReport))

	assert.NoError(t, indexable(repository.KindExcerpt))
	assert.ErrorIs(t, indexable(repository.KindSource), repository.ErrUnknownKind)
}

func TestToHitsOrdersTies(t *testing.T) {
	scored := func(id string, score float32) *qdrant.ScoredPoint {
		return &qdrant.ScoredPoint{
			Id:      qdrant.NewIDUUID(pointID(id)),
			Payload: map[string]*qdrant.Value{payloadID: qdrant.NewValueString(id)},
			Score:   score,
		}
	}

	hits := toHits([]*qdrant.ScoredPoint{
		scored("e3", 0.5),
		scored("e9", 0.75),
		scored("e1", 0.5),
		scored("e2", 0.75),
	})

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	assert.Equal(t, []string{"e2", "e9", "e1", "e3"}, ids)
	assert.InDelta(t, 0.25, hits[0].Distance, 1e-6)
	assert.InDelta(t, 0.5, hits[3].Distance, 1e-6)

	assert.Empty(t, toHits(nil))
}
