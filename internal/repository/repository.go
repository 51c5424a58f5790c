// Package repository defines the knowledge-store records read by retrieval and the query surface stores must provide.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Source is a top-level data origin (e.g. CISA, EIA, NIST)
type Source struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Abbreviation string    `json:"abbreviation"`
	URI          *string   `json:"uri"`
	AddedAt      time.Time `json:"added_at"`
}

// Report is one document or dataset unit from a single source
type Report struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"source_id"`
	Identifier  string         `json:"identifier"`
	Title       string         `json:"title"`
	ReportType  string         `json:"report_type"`
	URI         *string        `json:"uri"`
	Metadata    map[string]any `json:"report_metadata"`
	NExcerpts   int            `json:"n_excerpts"`
	Description string         `json:"description"`
	SHA256Hash  string         `json:"sha256hash"`
	Version     int            `json:"version"`
	PublishedAt *time.Time     `json:"published_at"`
	Embedding   []float32      `json:"-"`
	AddedAt     time.Time      `json:"added_at"`
}

// Excerpt is the smallest retrievable chunk of a report: a text chunk, JSON record or table row
type Excerpt struct {
	ID           string         `json:"id"`
	ReportID     string         `json:"report_id"`
	SourceID     string         `json:"source_id"`
	Title        string         `json:"title"`
	ContentType  string         `json:"content_type"`
	JSONContent  map[string]any `json:"json_content"`
	Description  string         `json:"description"`
	ExcerptIndex int            `json:"excerpt_index"`
	TextContent  *string        `json:"text_content"`
	Embedding    []float32      `json:"-"`
	AddedAt      time.Time      `json:"added_at"`
}

// UniqueEntity is a deduplicated named entity (CVE id, vendor, ...)
type UniqueEntity struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	EntityType string    `json:"entity_type"`
	Embedding  []float32 `json:"-"`
	AddedAt    time.Time `json:"added_at"`
}

// Entity is a single mention of a UniqueEntity inside an excerpt
type Entity struct {
	ID             string    `json:"id"`
	UniqueEntityID string    `json:"uentity_id"`
	ReportID       string    `json:"report_id"`
	SourceID       string    `json:"source_id"`
	ExcerptID      string    `json:"excerpt_id"`
	Title          string    `json:"title"`
	EntityType     string    `json:"entity_type"`
	AddedAt        time.Time `json:"added_at"`
}

// ExcerptRecord is an excerpt hydrated with its parents.
// Distance is the cosine distance to the query vector, zero when the row
// was not produced by a vector query.
type ExcerptRecord struct {
	Excerpt  *Excerpt
	Report   *Report
	Source   *Source
	Distance float64
}

// ReportRecord is a report hydrated with its source
type ReportRecord struct {
	Report   *Report
	Source   *Source
	Distance float64
}

// Object is one row read by kind and id, together with the parent rows it
// references. The field matching Kind holds the row itself; the others
// are its parents and stay nil when the kind has no such parent.
type Object struct {
	Kind         EntityKind
	Source       *Source
	Report       *Report
	Excerpt      *Excerpt
	UniqueEntity *UniqueEntity
	Entity       *Entity
}

// Overview summarizes the contents of the store
type Overview struct {
	// ReportCounts maps a source id to its number of reports. Sources
	// without reports are absent.
	ReportCounts map[string]int

	// TableSizes maps every kind to its row count
	TableSizes map[EntityKind]int
}

// Filter restricts candidate rows. Zero values disable each constraint.
type Filter struct {
	SourceID     string
	EarliestYear int
}

// EarliestDate returns January 1 of EarliestYear (UTC) and whether the date filter applies
func (f Filter) EarliestDate() (time.Time, bool) {
	if f.EarliestYear <= 0 {
		return time.Time{}, false
	}
	return time.Date(f.EarliestYear, time.January, 1, 0, 0, 0, 0, time.UTC), true
}

// VectorQuery asks for the Limit rows closest to Vector by cosine distance
type VectorQuery struct {
	Vector []float32
	Filter Filter
	Limit  int
}

// TextQuery asks for rows whose title or identifier contains Text, case-insensitively
type TextQuery struct {
	Text   string
	Filter Filter
	Limit  int
}

// RecordStore is the read-only query surface retrieval runs against.
// Implementations must be safe for concurrent use; each call may run on
// its own connection.
type RecordStore interface {
	// Sources returns all sources ordered by id.
	Sources(ctx context.Context) ([]*Source, error)

	// SourceIDs returns all source ids, sorted.
	SourceIDs(ctx context.Context) ([]string, error)

	// SourceByAbbreviation looks up a source by abbreviation (case-insensitive).
	// Returns ErrNotFound when no source matches.
	SourceByAbbreviation(ctx context.Context, abbreviation string) (*Source, error)

	// NearestExcerpts returns excerpts ordered by ascending cosine distance.
	NearestExcerpts(ctx context.Context, q VectorQuery) ([]ExcerptRecord, error)

	// NearestReports returns reports ordered by ascending cosine distance.
	NearestReports(ctx context.Context, q VectorQuery) ([]ReportRecord, error)

	// MatchReports returns reports whose title or identifier contains q.Text.
	MatchReports(ctx context.Context, q TextQuery) ([]ReportRecord, error)

	// ReportExcerpts returns up to limit excerpts of a report ordered by excerpt_index.
	ReportExcerpts(ctx context.Context, reportID string, limit int) ([]ExcerptRecord, error)

	// Overview counts reports per source and rows per table.
	Overview(ctx context.Context) (*Overview, error)

	// Object returns the row of kind with id and its parents.
	// Returns ErrNotFound when no such row exists.
	Object(ctx context.Context, kind EntityKind, id string) (*Object, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
