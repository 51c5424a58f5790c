package osti

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Product types that are not articles
const (
	ProductSoftware = "Software"
	ProductPatent   = "Patent"
)

// flexString decodes a JSON string or number into a string
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// Link is a related URL of a record
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// record is the raw OSTI JSON record
type record struct {
	OSTIID             flexString `json:"osti_id"`
	CodeID             flexString `json:"code_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ProductType        string     `json:"product_type"`
	PublicationDate    string     `json:"publication_date"`
	JournalName        string     `json:"journal_name"`
	JournalVolume      string     `json:"journal_volume"`
	JournalIssue       string     `json:"journal_issue"`
	ArticleType        string     `json:"article_type"`
	CountryPublication string     `json:"country_publication"`
	ReportNumber       string     `json:"report_number"`
	DOI                string     `json:"doi"`
	Publisher          string     `json:"publisher"`
	Subjects           []string   `json:"subjects"`
	Authors            []string   `json:"authors"`
	DOEContractNumber  string     `json:"doe_contract_number"`
	Links              []Link     `json:"links"`
}

// Author is a parsed OSTI author string
type Author struct {
	Name        string  `json:"name"`
	ORCID       *string `json:"orcid"`
	Affiliation *string `json:"affiliation"`
}

// Article is a cleaned OSTI record
type Article struct {
	OSTIID             string     `json:"osti_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ProductType        string     `json:"product_type"`
	PublicationDate    string     `json:"publication_date"`
	PublishedAt        *time.Time `json:"-"`
	JournalName        string     `json:"journal_name,omitempty"`
	JournalVolume      string     `json:"journal_volume,omitempty"`
	JournalIssue       string     `json:"journal_issue,omitempty"`
	ArticleType        string     `json:"article_type,omitempty"`
	CountryPublication string     `json:"country_publication,omitempty"`
	ReportNumber       string     `json:"report_number,omitempty"`
	DOI                string     `json:"doi,omitempty"`
	Publisher          string     `json:"publisher,omitempty"`
	Subjects           []string   `json:"subjects,omitempty"`
	Authors            []Author   `json:"authors,omitempty"`
	DOEContractNumbers []string   `json:"doe_contract_number,omitempty"`
	Links              []Link     `json:"links,omitempty"`
}

// URI returns the first link of the article
func (a Article) URI() string {
	if len(a.Links) == 0 {
		return ""
	}
	return a.Links[0].Href
}

// cleanRecords keeps article records and normalizes them. Software, patents
// and records without a product type are dropped.
func cleanRecords(records []record) []Article {
	out := make([]Article, 0, len(records))
	for _, r := range records {
		if r.ProductType == "" || r.ProductType == ProductSoftware || r.ProductType == ProductPatent {
			continue
		}
		out = append(out, cleanRecord(r))
	}
	return out
}

func cleanRecord(r record) Article {
	id := string(r.OSTIID)
	if r.CodeID != "" {
		id = string(r.CodeID)
	}

	a := Article{
		OSTIID:             id,
		Title:              r.Title,
		Description:        r.Description,
		ProductType:        r.ProductType,
		PublicationDate:    r.PublicationDate,
		PublishedAt:        parseDate(r.PublicationDate),
		JournalName:        r.JournalName,
		JournalVolume:      r.JournalVolume,
		JournalIssue:       r.JournalIssue,
		ArticleType:        r.ArticleType,
		CountryPublication: r.CountryPublication,
		ReportNumber:       r.ReportNumber,
		DOI:                r.DOI,
		Publisher:          r.Publisher,
		Links:              r.Links,
	}

	for _, s := range r.Subjects {
		a.Subjects = append(a.Subjects, strings.ToLower(strings.TrimSpace(s)))
	}
	for _, raw := range r.Authors {
		a.Authors = append(a.Authors, parseAuthor(raw))
	}
	if r.DOEContractNumber != "" {
		a.DOEContractNumbers = parseContracts(r.DOEContractNumber)
	}
	return a
}

// parseAuthor splits "Name [Affiliation] (ORCID:0000000000000000)"
func parseAuthor(raw string) Author {
	name := raw
	if i := strings.IndexAny(raw, "(["); i >= 0 {
		name = raw[:i]
	}
	a := Author{Name: strings.TrimSpace(name)}

	if open := strings.Index(raw, "["); open >= 0 {
		if end := strings.Index(raw[open:], "]"); end > 0 {
			aff := strings.TrimSpace(raw[open+1 : open+end])
			a.Affiliation = &aff
		}
	}

	if i := strings.Index(raw, "ORCID:"); i >= 0 {
		rest := raw[i+len("ORCID:"):]
		if len(rest) > 16 {
			rest = rest[:16]
		}
		orcid := strings.TrimSpace(strings.TrimRight(rest, ")"))
		if orcid != "" {
			a.ORCID = &orcid
		}
	}
	return a
}

// parseContracts splits a DOE contract field on ';' and ',' and unwraps
// "Agency (NUMBER)" entries. Duplicates are dropped, first seen wins.
func parseContracts(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' })

	seen := make(map[string]struct{}, len(parts))
	var out []string
	for _, c := range parts {
		if open := strings.Index(c, "("); open >= 0 {
			if end := strings.Index(c[open:], ")"); end > 0 {
				c = c[open+1 : open+end]
			}
		}
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
