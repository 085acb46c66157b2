package merkle_test

import (
	"testing"

	"github.com/pbcoin/pbcoin/internal/merkle"
	"github.com/stretchr/testify/require"
)

func TestSingleLeafRootEqualsLeaf(t *testing.T) {
	tree := merkle.New([]string{"abc"})
	require.Equal(t, "abc", tree.Root())
}

func TestOddLevelCarriesNodeUnmodified(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	tree := merkle.New(leaves)

	sum := func(left, right string) string {
		h := merkle.New([]string{left, right})
		return h.Root()
	}
	expectedRoot := sum(sum(leaves[0], leaves[1]), leaves[2])
	require.Equal(t, expectedRoot, tree.Root())
}

func TestProofRoundTrips(t *testing.T) {
	leaves := []string{"a", "b", "c", "d", "e"}
	tree := merkle.New(leaves)

	for i, leaf := range leaves {
		proof, err := tree.GetProof(i)
		require.NoError(t, err)
		require.True(t, merkle.VerifyProof(leaf, proof, tree.Root()))
	}
}

func TestProofOutOfRange(t *testing.T) {
	tree := merkle.New([]string{"a", "b"})
	_, err := tree.GetProof(5)
	require.ErrorIs(t, err, merkle.ErrNotFound)
}
