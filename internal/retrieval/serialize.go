package retrieval

import "github.com/knoguchi/kgsearch/internal/repository"

// Object types reported in serialized records
const (
	ObjectTypeSource  = "source"
	ObjectTypeReport  = "report"
	ObjectTypeExcerpt = "excerpt"
)

// MatchReportTitle marks a report found by the direct report-name lookup
const MatchReportTitle = "report_title"

// SourceDoc is the serialized form of a source
type SourceDoc struct {
	*repository.Source
	ObjectType string `json:"objectType"`
}

// ReportDoc is the serialized form of a report with its source.
// Excerpts is only set on reports returned by the direct lookup.
type ReportDoc struct {
	*repository.Report
	ObjectType string        `json:"objectType"`
	Source     *SourceDoc    `json:"source"`
	Excerpts   []*ExcerptDoc `json:"excerpts,omitempty"`
	Match      string        `json:"match,omitempty"`
}

// ExcerptDoc is the serialized form of an excerpt with its report and source.
// The nested report never carries excerpts, so documents stay acyclic.
type ExcerptDoc struct {
	*repository.Excerpt
	ObjectType string     `json:"objectType"`
	Report     *ReportDoc `json:"report,omitempty"`
	Source     *SourceDoc `json:"source,omitempty"`
}

func newSourceDoc(s *repository.Source) *SourceDoc {
	if s == nil {
		return nil
	}
	return &SourceDoc{Source: s, ObjectType: ObjectTypeSource}
}

func newReportDoc(r repository.ReportRecord) *ReportDoc {
	return &ReportDoc{
		Report:     r.Report,
		ObjectType: ObjectTypeReport,
		Source:     newSourceDoc(r.Source),
	}
}

func newExcerptDoc(r repository.ExcerptRecord) *ExcerptDoc {
	doc := &ExcerptDoc{
		Excerpt:    r.Excerpt,
		ObjectType: ObjectTypeExcerpt,
		Source:     newSourceDoc(r.Source),
	}
	if r.Report != nil {
		doc.Report = newReportDoc(repository.ReportRecord{Report: r.Report, Source: r.Source})
	}
	return doc
}

func excerptDocs(records []repository.ExcerptRecord) []*ExcerptDoc {
	docs := make([]*ExcerptDoc, len(records))
	for i, r := range records {
		docs[i] = newExcerptDoc(r)
	}
	return docs
}

func reportDocs(records []repository.ReportRecord) []*ReportDoc {
	docs := make([]*ReportDoc, len(records))
	for i, r := range records {
		docs[i] = newReportDoc(r)
	}
	return docs
}
