package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// DataSource is one source of the data overview
type DataSource struct {
	ID              string  `json:"id"`
	Abbreviation    string  `json:"abbreviation"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	URI             *string `json:"uri"`
	NumberOfReports int     `json:"number_of_reports"`
}

// Overview describes what the knowledge store holds
type Overview struct {
	DataSources []DataSource   `json:"data_sources"`
	TableSizes  map[string]int `json:"database_table_sizes"`
}

// objectRelations names the related collections of each kind
var objectRelations = map[repository.EntityKind][]string{
	repository.KindSource:       {"reports"},
	repository.KindReport:       {"source", "excerpts"},
	repository.KindExcerpt:      {"source", "report", "entities"},
	repository.KindUniqueEntity: {"entities"},
	repository.KindEntity:       {"source", "report", "excerpt", "uentity"},
}

// Overview lists every source with its report count, plus the row count of
// each table. Sources are ordered by id and titled "ABBR: Title".
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	sources, err := e.store.Sources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	counts, err := e.store.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	o := &Overview{
		DataSources: make([]DataSource, len(sources)),
		TableSizes:  make(map[string]int, len(counts.TableSizes)),
	}
	for i, src := range sources {
		o.DataSources[i] = DataSource{
			ID:              src.ID,
			Abbreviation:    src.Abbreviation,
			Title:           src.Abbreviation + ": " + src.Title,
			Description:     src.Description,
			URI:             src.URI,
			NumberOfReports: counts.ReportCounts[src.ID],
		}
	}
	for kind, n := range counts.TableSizes {
		o.TableSizes[kind.String()] = n
	}
	return o, nil
}

// Object returns the row of kind with id as a flat document tagged with
// objectType. Each parent row is nested under its kind name, and RELATIONS
// lists the collections related to the kind.
func (e *Engine) Object(ctx context.Context, kind repository.EntityKind, id string) (map[string]any, error) {
	obj, err := e.store.Object(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}

	rows := make(map[repository.EntityKind]any, 5)
	if obj.Source != nil {
		rows[repository.KindSource] = obj.Source
	}
	if obj.Report != nil {
		rows[repository.KindReport] = obj.Report
	}
	if obj.Excerpt != nil {
		rows[repository.KindExcerpt] = obj.Excerpt
	}
	if obj.UniqueEntity != nil {
		rows[repository.KindUniqueEntity] = obj.UniqueEntity
	}
	if obj.Entity != nil {
		rows[repository.KindEntity] = obj.Entity
	}

	primary, ok := rows[kind]
	if !ok {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, repository.ErrNotFound)
	}
	doc, err := flatDoc(primary, kind)
	if err != nil {
		return nil, err
	}
	for k, row := range rows {
		if k == kind {
			continue
		}
		if doc[k.String()], err = flatDoc(row, k); err != nil {
			return nil, err
		}
	}
	doc["RELATIONS"] = objectRelations[kind]
	return doc, nil
}

func flatDoc(row any, kind repository.EntityKind) (map[string]any, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	doc["objectType"] = kind.String()
	return doc, nil
}
