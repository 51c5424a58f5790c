package osti

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/retrieval"
)

// Source identity used for OSTI results
const (
	SourceID           = "f8d4d986-7315-431c-af1b-4c4d98adc9a8"
	SourceAbbreviation = "OSTI"
)

// IsDataset reports whether a request dataset routes to OSTI
func IsDataset(dataset string) bool {
	return strings.EqualFold(strings.TrimSpace(dataset), SourceAbbreviation)
}

var source = &repository.Source{
	ID:           SourceID,
	Title:        "Office of Scientific and Technical Information",
	Abbreviation: SourceAbbreviation,
}

// Retrieve runs req against OSTI and shapes the articles like a local
// retrieval: one report and one excerpt per article, diversity zero.
func (c *Client) Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error) {
	start := time.Now()
	text := strings.TrimSpace(req.Query)
	if text == "" {
		return nil, fmt.Errorf("%w: query is required", retrieval.ErrInvalidRequest)
	}
	if req.MaxCount < 0 {
		return nil, fmt.Errorf("%w: counts must not be negative", retrieval.ErrInvalidRequest)
	}
	rows := req.MaxCount
	if rows == 0 {
		rows = retrieval.DefaultMaxCount
	}

	articles, err := c.Search(ctx, Query{
		Text:         text,
		EarliestYear: req.EarliestYear,
		Title:        strings.TrimSpace(req.Report),
		Rows:         min(MaxRows, rows),
		Sort:         "publication_date",
	})
	if err != nil {
		return nil, err
	}

	res := &retrieval.Result{
		Query:    text,
		Excerpts: make([]*retrieval.ExcerptDoc, 0, len(articles)),
		Reports:  make([]*retrieval.ReportDoc, 0, len(articles)),
	}
	for _, a := range articles {
		report, excerpt := toDocs(a)
		res.Reports = append(res.Reports, report)
		res.Excerpts = append(res.Excerpts, excerpt)
	}
	res.ElapsedSeconds = math.Round(time.Since(start).Seconds()*100) / 100

	c.logger.Info("osti search complete", "query", text, "reports", len(res.Reports), "elapsed_seconds", res.ElapsedSeconds)
	return res, nil
}

func toDocs(a Article) (*retrieval.ReportDoc, *retrieval.ExcerptDoc) {
	description := a.Description
	if description == "" {
		description = "N/A"
	}
	reportID := "r" + a.OSTIID

	var uri *string
	if u := a.URI(); u != "" {
		uri = &u
	}

	report := &repository.Report{
		ID:          reportID,
		SourceID:    SourceID,
		Identifier:  reportID,
		Title:       a.Title,
		ReportType:  a.ProductType,
		URI:         uri,
		Metadata:    metadata(a),
		NExcerpts:   1,
		Description: description,
		Version:     1,
		PublishedAt: a.PublishedAt,
	}
	text := description
	excerpt := &repository.Excerpt{
		ID:           "e" + a.OSTIID,
		ReportID:     reportID,
		SourceID:     SourceID,
		Title:        a.Title,
		ContentType:  "text",
		Description:  description,
		ExcerptIndex: 1,
		TextContent:  &text,
	}

	sourceDoc := &retrieval.SourceDoc{Source: source, ObjectType: retrieval.ObjectTypeSource}
	nested := &retrieval.ReportDoc{Report: report, ObjectType: retrieval.ObjectTypeReport, Source: sourceDoc}
	excerptDoc := &retrieval.ExcerptDoc{
		Excerpt:    excerpt,
		ObjectType: retrieval.ObjectTypeExcerpt,
		Report:     nested,
		Source:     sourceDoc,
	}
	reportDoc := &retrieval.ReportDoc{
		Report:     report,
		ObjectType: retrieval.ObjectTypeReport,
		Source:     sourceDoc,
		Excerpts:   []*retrieval.ExcerptDoc{{Excerpt: excerpt, ObjectType: retrieval.ObjectTypeExcerpt}},
	}
	return reportDoc, excerptDoc
}

func metadata(a Article) map[string]any {
	m := map[string]any{
		"publication_date": a.PublicationDate,
		"osti_id":          a.OSTIID,
	}
	set := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	set("journal", a.JournalName)
	set("journal_volume", a.JournalVolume)
	set("journal_issue", a.JournalIssue)
	set("article_type", a.ArticleType)
	set("country", a.CountryPublication)
	set("report_number", a.ReportNumber)
	set("doi", a.DOI)
	set("publisher", a.Publisher)
	if len(a.Subjects) > 0 {
		m["subjects"] = a.Subjects
	}
	if len(a.Authors) > 0 {
		m["authors"] = a.Authors
	}
	if len(a.DOEContractNumbers) > 0 {
		m["doe_contract_number"] = a.DOEContractNumbers
	}
	return m
}
