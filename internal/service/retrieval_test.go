package service

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/knoguchi/kgsearch/internal/api/kgv1"
	"github.com/knoguchi/kgsearch/internal/osti"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/repository/memory"
	"github.com/knoguchi/kgsearch/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type staticEmbedder struct {
	err error
}

func (e staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (staticEmbedder) Dimension() int    { return 2 }
func (staticEmbedder) ModelName() string { return "static" }

type stubRetriever struct {
	got retrieval.Request
	res *retrieval.Result
	err error
}

func (s *stubRetriever) Retrieve(_ context.Context, req retrieval.Request) (*retrieval.Result, error) {
	s.got = req
	return s.res, s.err
}

func testStore(t *testing.T) *memory.Store {
	store := memory.New()
	store.AddSource(&repository.Source{ID: "src-cisa", Abbreviation: "CISA", Title: "CISA"})
	store.AddSource(&repository.Source{ID: "src-eia", Abbreviation: "EIA", Title: "EIA"})
	published := time.Date(2025, time.February, 25, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddReport(&repository.Report{
		ID: "rep-1", SourceID: "src-cisa", Title: "ICSA-25-056-01", PublishedAt: &published, Embedding: []float32{1, 0.1},
	}))
	require.NoError(t, store.AddExcerpt(&repository.Excerpt{
		ID: "ex-1", ReportID: "rep-1", ExcerptIndex: 0, Embedding: []float32{1, 0.2},
	}))
	return store
}

// dial starts svc on an in-memory listener and returns a client
func dial(t *testing.T, svc kgv1.RetrievalServiceServer) kgv1.RetrievalServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	kgv1.RegisterRetrievalServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return kgv1.NewRetrievalServiceClient(conn)
}

func TestRetrieveOverGRPC(t *testing.T) {
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{})
	client := dial(t, NewRetrievalService(engine))

	in, err := structpb.NewStruct(map[string]any{
		"query":         "water utilities",
		"earliest_year": "2024",
		"max_count":     "5",
	})
	require.NoError(t, err)

	out, err := client.Retrieve(context.Background(), in)
	require.NoError(t, err)

	doc := out.AsMap()
	assert.Equal(t, "water utilities", doc["query"])
	assert.Equal(t, 0.0, doc["diversity"])
	assert.Contains(t, doc, "ragElapsedSeconds")

	excerpts := doc["excerpts"].([]any)
	require.Len(t, excerpts, 1)
	x := excerpts[0].(map[string]any)
	assert.Equal(t, "ex-1", x["id"])
	assert.Equal(t, "excerpt", x["objectType"])
	assert.Equal(t, "rep-1", x["report"].(map[string]any)["id"])

	reports := doc["reports"].([]any)
	require.Len(t, reports, 1)
	assert.Equal(t, "CISA", reports[0].(map[string]any)["source"].(map[string]any)["abbreviation"])
}

func TestRetrieveStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		embedErr error
		fields   map[string]any
		expected codes.Code
	}{
		{"missing query", nil, map[string]any{}, codes.InvalidArgument},
		{"bad year", nil, map[string]any{"query": "grid", "earliest_year": "soon"}, codes.InvalidArgument},
		{"fractional count", nil, map[string]any{"query": "grid", "max_count": 2.5}, codes.InvalidArgument},
		{"wrong type", nil, map[string]any{"query": true}, codes.InvalidArgument},
		{"embedding down", errors.New("connection refused"), map[string]any{"query": "grid"}, codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := retrieval.NewEngine(testStore(t), staticEmbedder{err: tt.embedErr})
			client := dial(t, NewRetrievalService(engine))

			in, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			_, err = client.Retrieve(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.expected, status.Code(err))
		})
	}
}

func TestRetrieveRoutesOSTI(t *testing.T) {
	stub := &stubRetriever{res: &retrieval.Result{
		Query:    "fusion",
		Excerpts: []*retrieval.ExcerptDoc{},
		Reports:  []*retrieval.ReportDoc{},
	}}
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{err: errors.New("must not be called")})
	client := dial(t, NewRetrievalService(engine, WithOSTI(stub)))

	in, err := structpb.NewStruct(map[string]any{"query": "fusion", "dataset": "osti", "max_count": 7.0})
	require.NoError(t, err)

	out, err := client.Retrieve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "fusion", out.AsMap()["query"])
	assert.Equal(t, 7, stub.got.MaxCount)
	assert.Equal(t, "osti", stub.got.Dataset)

	stub.err = osti.ErrStatus
	_, err = client.Retrieve(context.Background(), in)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestListSources(t *testing.T) {
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{})
	client := dial(t, NewRetrievalService(engine))

	out, err := client.ListSources(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	sources := out.AsMap()["sources"].([]any)
	require.Len(t, sources, 2)
	first := sources[0].(map[string]any)
	assert.Equal(t, "src-cisa", first["id"])
	assert.Equal(t, "source", first["objectType"])
}

func TestGetOverview(t *testing.T) {
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{})
	client := dial(t, NewRetrievalService(engine))

	out, err := client.GetOverview(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	doc := out.AsMap()
	sources := doc["data_sources"].([]any)
	require.Len(t, sources, 2)
	cisa := sources[0].(map[string]any)
	assert.Equal(t, "CISA: CISA", cisa["title"])
	assert.Equal(t, 1.0, cisa["number_of_reports"])
	assert.Equal(t, 0.0, sources[1].(map[string]any)["number_of_reports"])

	sizes := doc["database_table_sizes"].(map[string]any)
	assert.Equal(t, 1.0, sizes["excerpt"])
	assert.Equal(t, 0.0, sizes["entity"])
}

func TestGetObject(t *testing.T) {
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{})
	client := dial(t, NewRetrievalService(engine))

	in, err := structpb.NewStruct(map[string]any{"kind": "Excerpt", "id": "ex-1"})
	require.NoError(t, err)
	out, err := client.GetObject(context.Background(), in)
	require.NoError(t, err)

	doc := out.AsMap()
	assert.Equal(t, "ex-1", doc["id"])
	assert.Equal(t, "excerpt", doc["objectType"])
	assert.Equal(t, "rep-1", doc["report"].(map[string]any)["id"])
	assert.Equal(t, "CISA", doc["source"].(map[string]any)["abbreviation"])
}

func TestGetObjectStatusCodes(t *testing.T) {
	engine := retrieval.NewEngine(testStore(t), staticEmbedder{})
	client := dial(t, NewRetrievalService(engine))

	tests := []struct {
		name     string
		fields   map[string]any
		expected codes.Code
	}{
		{"unknown_kind", map[string]any{"kind": "mlmodel", "id": "x"}, codes.InvalidArgument},
		{"missing_kind", map[string]any{"id": "x"}, codes.InvalidArgument},
		{"missing_id", map[string]any{"kind": "report"}, codes.InvalidArgument},
		{"numeric_id", map[string]any{"kind": "report", "id": 7}, codes.InvalidArgument},
		{"not_found", map[string]any{"kind": "report", "id": "rep-404"}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = client.GetObject(context.Background(), in)
			assert.Equal(t, tt.expected, status.Code(err))
		})
	}
}

func TestRequestFromStruct(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{
		"query":                   "q",
		"dataset":                 "EIA",
		"report":                  "",
		"earliest_year":           2022.0,
		"diversity":               "0.5",
		"max_count":               20.0,
		"max_excerpts_per_report": "",
		"unknown":                 "ignored",
	})
	require.NoError(t, err)

	req, err := RequestFromStruct(in)
	require.NoError(t, err)
	assert.Equal(t, retrieval.Request{
		Query:        "q",
		Dataset:      "EIA",
		EarliestYear: 2022,
		Diversity:    0.5,
		MaxCount:     20,
	}, req)

	_, err = RequestFromStruct(nil)
	assert.ErrorIs(t, err, retrieval.ErrInvalidRequest)
}
