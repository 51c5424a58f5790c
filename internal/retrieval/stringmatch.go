package retrieval

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/knoguchi/kgsearch/internal/repository"
)

// DefaultStringMatchMinLength is the shortest text worth substring matching.
// Shorter strings match too many titles to be useful.
const DefaultStringMatchMinLength = 5

// StringMatcher finds reports whose title or identifier contains the query
// text. It catches exact names, such as advisory ids, that vector search
// ranks poorly.
type StringMatcher struct {
	store     repository.RecordStore
	minLength int
}

// NewStringMatcher creates a matcher skipping texts shorter than minLength runes
func NewStringMatcher(store repository.RecordStore, minLength int) *StringMatcher {
	if minLength <= 0 {
		minLength = DefaultStringMatchMinLength
	}
	return &StringMatcher{store: store, minLength: minLength}
}

// Reports returns up to limit reports matching text under f
func (m *StringMatcher) Reports(ctx context.Context, text string, f repository.Filter, limit int) ([]repository.ReportRecord, error) {
	if limit <= 0 || utf8.RuneCountInString(text) < m.minLength {
		return nil, nil
	}
	records, err := m.store.MatchReports(ctx, repository.TextQuery{Text: text, Filter: f, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to match reports: %w", err)
	}
	return records, nil
}
