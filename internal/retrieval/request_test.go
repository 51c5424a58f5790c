package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFor(t *testing.T) {
	tests := []struct {
		diversity float64
		expected  Mode
	}{
		{0, ModeNone},
		{0.09, ModeNone},
		{0.1, ModePartial},
		{0.5, ModePartial},
		{0.89, ModePartial},
		{0.9, ModeFull},
		{1, ModeFull},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ModeFor(tt.diversity), "diversity %v", tt.diversity)
	}
	assert.Equal(t, "partial", ModePartial.String())
}

func TestParseEarliestYear(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int
		wantErr  bool
	}{
		{"nil", nil, 0, false},
		{"int", 2023, 2023, false},
		{"int64", int64(2021), 2021, false},
		{"json number", float64(2020), 2020, false},
		{"fractional", 2020.5, 0, true},
		{"string", "2019", 2019, false},
		{"padded string", " 2019 ", 2019, false},
		{"empty string", "", 0, false},
		{"zero string", "0", 0, false},
		{"zero", 0, 0, false},
		{"word", "last year", 0, true},
		{"negative", -5, 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEarliestYear(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRequestNormalize(t *testing.T) {
	t.Run("defaults and trimming", func(t *testing.T) {
		req := Request{Query: "  grid outages ", Dataset: " EIA "}
		require.NoError(t, req.normalize(15, 30))
		assert.Equal(t, "grid outages", req.Query)
		assert.Equal(t, "EIA", req.Dataset)
		assert.Equal(t, 15, req.MaxCount)
		assert.Equal(t, 30, req.MaxExcerptsPerReport)
	})

	t.Run("diversity is clamped", func(t *testing.T) {
		req := Request{Query: "q", Diversity: 3}
		require.NoError(t, req.normalize(15, 30))
		assert.Equal(t, 1.0, req.Diversity)

		req = Request{Query: "q", Diversity: -1}
		require.NoError(t, req.normalize(15, 30))
		assert.Equal(t, 0.0, req.Diversity)
	})

	t.Run("rejects", func(t *testing.T) {
		bad := []Request{
			{Query: "   "},
			{Query: "q", MaxCount: -1},
			{Query: "q", MaxExcerptsPerReport: -2},
			{Query: "q", EarliestYear: -2020},
			{Query: "q", Diversity: math.NaN()},
		}
		for _, req := range bad {
			assert.ErrorIs(t, req.normalize(15, 30), ErrInvalidRequest, "%+v", req)
		}
	})
}
