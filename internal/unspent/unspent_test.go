package unspent_test

import (
	"testing"

	"github.com/pbcoin/pbcoin/internal/coin"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

func TestInsertGetSpend(t *testing.T) {
	set := unspent.New()
	outs := []coin.Coin{coin.New("alice", 10, 0), coin.New("bob", 5, 1)}
	set.Insert("trx1", outs)

	got, ok := set.Get("trx1", 0)
	require.True(t, ok)
	require.Equal(t, uint64(10), got.Value)

	require.True(t, set.Spend("trx1", 0))
	_, ok = set.Get("trx1", 0)
	require.False(t, ok)

	// second (and last) output still unspent: row survives
	_, ok = set.Get("trx1", 1)
	require.True(t, ok)

	require.True(t, set.Spend("trx1", 1))
	_, ok = set.Get("trx1", 1)
	require.False(t, ok)
}

func TestSpendUnknownReturnsFalse(t *testing.T) {
	set := unspent.New()
	require.False(t, set.Spend("nope", 0))
}

func TestUnspendIsInverseOfSpend(t *testing.T) {
	set := unspent.New()
	outs := []coin.Coin{coin.New("alice", 10, 0)}
	set.Insert("trx1", outs)

	original, ok := set.Get("trx1", 0)
	require.True(t, ok)

	require.True(t, set.Spend("trx1", 0))
	_, ok = set.Get("trx1", 0)
	require.False(t, ok)

	set.Unspend("trx1", 0, original)
	restored, ok := set.Get("trx1", 0)
	require.True(t, ok)
	require.Equal(t, original.Owner, restored.Owner)
	require.Equal(t, original.Value, restored.Value)
}

func TestBalanceAndSum(t *testing.T) {
	set := unspent.New()
	set.Insert("trx1", []coin.Coin{coin.New("alice", 10, 0), coin.New("bob", 5, 1)})
	set.Insert("trx2", []coin.Coin{coin.New("alice", 3, 0)})

	require.Equal(t, uint64(13), set.BalanceOf("alice"))
	require.Equal(t, uint64(5), set.BalanceOf("bob"))
	require.Equal(t, uint64(18), set.Sum())
}

func TestCloneIsIndependent(t *testing.T) {
	set := unspent.New()
	set.Insert("trx1", []coin.Coin{coin.New("alice", 10, 0)})

	clone := set.Clone()
	clone.Spend("trx1", 0)

	require.Equal(t, uint64(10), set.BalanceOf("alice"))
	require.Equal(t, uint64(0), clone.BalanceOf("alice"))
}

func TestReplaceFromOverwritesLiveSet(t *testing.T) {
	set := unspent.New()
	set.Insert("trx1", []coin.Coin{coin.New("alice", 10, 0)})

	trial := set.Clone()
	trial.Spend("trx1", 0)
	trial.Insert("trx2", []coin.Coin{coin.New("bob", 7, 0)})

	set.ReplaceFrom(trial)

	require.Equal(t, uint64(0), set.BalanceOf("alice"))
	require.Equal(t, uint64(7), set.BalanceOf("bob"))
}
