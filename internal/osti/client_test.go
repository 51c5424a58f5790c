package osti

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knoguchi/kgsearch/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordsJSON = `[
  {
    "osti_id": "2001234",
    "title": "Quantum key distribution on the grid",
    "description": "We study QKD for substations.",
    "product_type": "Journal Article",
    "publication_date": "2024-03-01T00:00:00Z",
    "journal_name": "Energy Security",
    "doi": "10.1000/xyz",
    "subjects": ["  Quantum Computing ", "ENCRYPTION"],
    "authors": ["Doe, Jane [Idaho National Laboratory (INL), Idaho Falls, ID] (ORCID:0000000212345678)", "Roe, Rick"],
    "doe_contract_number": "AC07-05ID14517; USDOE Office of Science (AC07-05ID14517), SC0012345",
    "links": [{"rel": "citation", "href": "https://www.osti.gov/biblio/2001234"}]
  },
  {
    "osti_id": 2005555,
    "title": "QKD toolkit",
    "product_type": "Software"
  },
  {
    "osti_id": "2007777",
    "title": "Secure relay",
    "product_type": "Patent"
  },
  {
    "osti_id": "2009999",
    "title": "No product type"
  }
]`

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, InitialInterval: time.Millisecond, Timeout: 5 * time.Second})
}

func TestSearchQueryParams(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	c := newTestClient(server.URL + "/")
	_, err := c.Search(context.Background(), Query{
		Text:         "quantum computing",
		EarliestYear: 2021,
		Title:        "QKD",
		Rows:         50,
		Sort:         "publication_date",
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/records", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "quantum computing", q.Get("q"))
	assert.Equal(t, "01/01/2021", q.Get("publication_date_start"))
	assert.Equal(t, "QKD", q.Get("title"))
	assert.Equal(t, "20", q.Get("rows"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "desc", q.Get("order"))
	assert.Equal(t, "publication_date", q.Get("sort"))
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(recordsJSON))
		}
	}))
	defer server.Close()

	articles, err := newTestClient(server.URL).Search(context.Background(), Query{Text: "qkd"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, articles, 1)
	a := articles[0]
	assert.Equal(t, "2001234", a.OSTIID)
	assert.Equal(t, []string{"quantum computing", "encryption"}, a.Subjects)
	assert.Equal(t, []string{"AC07-05ID14517", "SC0012345"}, a.DOEContractNumbers)
	require.NotNil(t, a.PublishedAt)
	assert.Equal(t, 2024, a.PublishedAt.Year())
	assert.Equal(t, "https://www.osti.gov/biblio/2001234", a.URI())

	require.Len(t, a.Authors, 2)
	assert.Equal(t, "Doe, Jane", a.Authors[0].Name)
	require.NotNil(t, a.Authors[0].Affiliation)
	assert.Equal(t, "Idaho National Laboratory (INL), Idaho Falls, ID", *a.Authors[0].Affiliation)
	require.NotNil(t, a.Authors[0].ORCID)
	assert.Equal(t, "0000000212345678", *a.Authors[0].ORCID)
	assert.Equal(t, "Roe, Rick", a.Authors[1].Name)
	assert.Nil(t, a.Authors[1].Affiliation)
	assert.Nil(t, a.Authors[1].ORCID)
}

func TestSearchGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), Query{Text: "qkd"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, int32(DefaultMaxTries), calls.Load())
}

func TestSearchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), Query{Text: "qkd"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "bad query")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetrieveShapesResult(t *testing.T) {
	var rows string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows = r.URL.Query().Get("rows")
		_, _ = w.Write([]byte(recordsJSON))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Retrieve(context.Background(), retrieval.Request{Query: " qkd ", MaxCount: 5})
	require.NoError(t, err)
	assert.Equal(t, "5", rows)

	assert.Equal(t, "qkd", res.Query)
	assert.Equal(t, 0.0, res.Diversity)
	require.Len(t, res.Reports, 1)
	require.Len(t, res.Excerpts, 1)

	report := res.Reports[0]
	assert.Equal(t, "r2001234", report.ID)
	assert.Equal(t, SourceID, report.SourceID)
	assert.Equal(t, "Journal Article", report.ReportType)
	assert.Equal(t, "10.1000/xyz", report.Metadata["doi"])
	assert.Equal(t, SourceAbbreviation, report.Source.Abbreviation)
	require.Len(t, report.Excerpts, 1)

	excerpt := res.Excerpts[0]
	assert.Equal(t, "r2001234", excerpt.ReportID)
	assert.Equal(t, "We study QKD for substations.", *excerpt.TextContent)
	assert.Empty(t, excerpt.Report.Excerpts)
}

func TestRetrieveRequiresQuery(t *testing.T) {
	_, err := NewClient(Config{}).Retrieve(context.Background(), retrieval.Request{Query: " "})
	assert.ErrorIs(t, err, retrieval.ErrInvalidRequest)
}

func TestIsDataset(t *testing.T) {
	assert.True(t, IsDataset("osti"))
	assert.True(t, IsDataset(" OSTI "))
	assert.False(t, IsDataset("EIA"))
	assert.False(t, IsDataset(""))
}

func TestParseContracts(t *testing.T) {
	assert.Equal(t, []string{"A1", "B2"}, parseContracts("A1, USDOE (B2); A1;"))
	assert.Empty(t, parseContracts(" ; , "))
}
