package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("peer-a")
	b := DeriveID("peer-a")
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestDeriveIDDistinctForDistinctSeeds(t *testing.T) {
	a := DeriveID("peer-a")
	b := DeriveID("peer-b")
	require.NotEqual(t, a, b)
}
