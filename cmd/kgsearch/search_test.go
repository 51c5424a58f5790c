package main

import (
	"testing"

	"github.com/knoguchi/kgsearch/internal/retrieval"
	"github.com/knoguchi/kgsearch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRequestOnlySetFlags(t *testing.T) {
	require.NoError(t, searchCmd.ParseFlags([]string{"-d", "EIA", "--diversity", "0.5", "-n", "20"}))

	in, err := searchRequest(searchCmd, "grid reliability")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"query":     "grid reliability",
		"dataset":   "EIA",
		"diversity": 0.5,
		"max_count": 20.0,
	}, in.AsMap())

	req, err := service.RequestFromStruct(in)
	require.NoError(t, err)
	assert.Equal(t, retrieval.Request{Query: "grid reliability", Dataset: "EIA", Diversity: 0.5, MaxCount: 20}, req)
}
