package retrieval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRequest is returned for requests that cannot be served as given
	ErrInvalidRequest = errors.New("invalid retrieval request")

	// ErrEmbedding is returned when the embedding provider fails
	ErrEmbedding = errors.New("embedding provider failed")
)

// Request is a single retrieval call.
// Zero values for MaxCount and MaxExcerptsPerReport select the engine defaults.
type Request struct {
	Query                string
	Dataset              string
	Report               string
	EarliestYear         int
	Diversity            float64
	MaxCount             int
	MaxExcerptsPerReport int
}

// Mode is the ranking policy selected by the diversity knob
type Mode int

const (
	// ModeNone ranks all sources together
	ModeNone Mode = iota
	// ModePartial mixes a global top-K with per-source samples
	ModePartial
	// ModeFull takes an equal share from every source
	ModeFull
)

// ModeFor maps a diversity value onto its policy
func ModeFor(diversity float64) Mode {
	switch {
	case diversity < 0.1:
		return ModeNone
	case diversity < 0.9:
		return ModePartial
	default:
		return ModeFull
	}
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModePartial:
		return "partial"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseEarliestYear accepts the loosely typed earliest_year field of a
// request: an integer, an integral float (as decoded from JSON) or a numeric
// string. nil, "", 0 and "0" mean no date filter.
func ParseEarliestYear(v any) (int, error) {
	switch y := v.(type) {
	case nil:
		return 0, nil
	case int:
		return checkYear(y)
	case int32:
		return checkYear(int(y))
	case int64:
		return checkYear(int(y))
	case float64:
		if y != math.Trunc(y) {
			return 0, fmt.Errorf("%w: earliest_year %v is not a whole year", ErrInvalidRequest, y)
		}
		return checkYear(int(y))
	case string:
		s := strings.TrimSpace(y)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: earliest_year %q is not a year", ErrInvalidRequest, y)
		}
		return checkYear(n)
	default:
		return 0, fmt.Errorf("%w: earliest_year has unsupported type %T", ErrInvalidRequest, v)
	}
}

func checkYear(y int) (int, error) {
	if y == 0 {
		return 0, nil
	}
	if y < 1 || y > 9999 {
		return 0, fmt.Errorf("%w: earliest_year %d is out of range", ErrInvalidRequest, y)
	}
	return y, nil
}

// normalize validates r and fills defaults in place.
func (r *Request) normalize(defaultMaxCount, defaultMaxExcerpts int) error {
	r.Query = strings.TrimSpace(r.Query)
	r.Dataset = strings.TrimSpace(r.Dataset)
	r.Report = strings.TrimSpace(r.Report)

	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.MaxCount < 0 || r.MaxExcerptsPerReport < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidRequest)
	}
	if r.EarliestYear < 0 {
		return fmt.Errorf("%w: earliest_year %d is out of range", ErrInvalidRequest, r.EarliestYear)
	}
	if math.IsNaN(r.Diversity) {
		return fmt.Errorf("%w: diversity is not a number", ErrInvalidRequest)
	}

	r.Diversity = math.Max(0, math.Min(1, r.Diversity))
	if r.MaxCount == 0 {
		r.MaxCount = defaultMaxCount
	}
	if r.MaxExcerptsPerReport == 0 {
		r.MaxExcerptsPerReport = defaultMaxExcerpts
	}
	return nil
}
