package result_test

import (
	"testing"

	"github.com/CZERTAINLY/Evaluator/internal/result"

	"github.com/stretchr/testify/require"
)

func ptr(i int) *int { return &i }

func TestClamp(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name      string
		requested *int
		latest    int
		expected  int
	}{
		{"nil", nil, 7, 7},
		{"negative", ptr(-3), 7, 0},
		{"zero", ptr(0), 7, 0},
		{"inside", ptr(4), 7, 4},
		{"latest", ptr(7), 7, 7},
		{"above", ptr(100), 7, 7},
		{"empty", ptr(5), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, result.Clamp(tt.requested, tt.latest))
		})
	}
}

func TestScan(t *testing.T) {
	t.Parallel()
	keys := []int{0, 1, 2, 3, 5, 8}
	complete := map[int]bool{1: true, 3: true, 5: true}
	isComplete := func(i int) bool { return complete[i] }

	latest, ok := result.Latest(keys, isComplete)
	require.True(t, ok)
	require.Equal(t, 5, latest)

	var tests = []struct {
		target   int
		expected int
	}{
		{0, 1}, // nothing complete below, nearest higher
		{1, 1},
		{2, 1},
		{4, 3},
		{5, 5},
		{7, 5},
	}
	for _, tt := range tests {
		got, ok := result.Nearest(keys, tt.target, isComplete)
		require.True(t, ok)
		require.Equal(t, tt.expected, got, "target %d", tt.target)
	}

	_, ok = result.Latest(keys, func(int) bool { return false })
	require.False(t, ok)
	_, ok = result.Nearest(nil, 3, isComplete)
	require.False(t, ok)
}
