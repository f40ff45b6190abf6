package testing

import (
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPairs(t *testing.T) {
	pairs := Pairs([]int64{1, 2, 3})
	require.Equal(t, [][2]int64{{1, 2}, {2, 1}, {1, 3}, {3, 1}, {2, 3}, {3, 2}}, pairs)
}

func TestPairsSingle(t *testing.T) {
	require.Empty(t, Pairs([]int64{7}))
}
