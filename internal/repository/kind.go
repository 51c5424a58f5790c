package repository

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind is returned when an entity kind name is not recognized
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrNoDateJoin is returned when a date filter is requested on a kind with
	// no path to report.published_at. It signals a programming error.
	ErrNoDateJoin = errors.New("no date filter join path")
)

// EntityKind identifies one of the knowledge-store tables
type EntityKind int

const (
	KindSource EntityKind = iota + 1
	KindReport
	KindExcerpt
	KindUniqueEntity
	KindEntity
)

var kindNames = map[EntityKind]string{
	KindSource:       "source",
	KindReport:       "report",
	KindExcerpt:      "excerpt",
	KindUniqueEntity: "uentity",
	KindEntity:       "entity",
}

// String returns the table name of the kind
func (k EntityKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// ParseKind maps a table name to its kind
func ParseKind(name string) (EntityKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range kindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// DateJoin describes how rows of a kind reach report.published_at.
// ReportKey is the column on the kind's table that references report.id;
// it is empty when the kind is the report table itself.
type DateJoin struct {
	ReportKey string
}

// Direct reports whether the kind carries published_at itself
func (j DateJoin) Direct() bool {
	return j.ReportKey == ""
}

// DateJoinFor returns the join path used by the date filter for kind
func DateJoinFor(kind EntityKind) (DateJoin, error) {
	switch kind {
	case KindReport:
		return DateJoin{}, nil
	case KindExcerpt, KindEntity:
		return DateJoin{ReportKey: "report_id"}, nil
	case KindSource, KindUniqueEntity:
		return DateJoin{}, fmt.Errorf("%w: %s", ErrNoDateJoin, kind)
	default:
		return DateJoin{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
