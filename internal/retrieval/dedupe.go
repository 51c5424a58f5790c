package retrieval

import "github.com/knoguchi/kgsearch/internal/repository"

// Dedupe keeps the first item seen for each key, preserving order.
// Applying it twice gives the same result as applying it once.
func Dedupe[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

func excerptID(r repository.ExcerptRecord) string { return r.Excerpt.ID }

func reportID(r repository.ReportRecord) string { return r.Report.ID }
