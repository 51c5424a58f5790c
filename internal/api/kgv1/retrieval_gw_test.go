package kgv1

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryToStruct(t *testing.T) {
	s, err := QueryToStruct(url.Values{
		"q":        {"grid outages", "ignored"},
		"dataset":  {"EIA"},
		"maxcount": {"5"},
		"unknown":  {"1"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"query":     "grid outages",
		"dataset":   "EIA",
		"max_count": "5",
	}, s.AsMap())
}

func TestQueryToStructAliasPrecedence(t *testing.T) {
	values := url.Values{
		"query":     {"long form"},
		"q":         {"short form"},
		"max_count": {"9"},
		"maxcount":  {"3"},
	}
	// map iteration order varies between runs, so check repeatedly
	for range 50 {
		s, err := QueryToStruct(values)
		require.NoError(t, err)
		assert.Equal(t, "short form", s.AsMap()["query"])
		assert.Equal(t, "3", s.AsMap()["max_count"])
	}

	s, err := QueryToStruct(url.Values{"query": {"long form"}, "max_count": {"9"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "long form", "max_count": "9"}, s.AsMap())
}
