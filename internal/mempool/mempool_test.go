package mempool_test

import (
	"testing"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

func buildSignedTrx(t *testing.T) (*trx.Trx, *address.KeyPair) {
	t.Helper()
	kp, err := address.Generate()
	require.NoError(t, err)
	sub := trx.NewSubsidy(1, address.EncodePublic(kp.Public))
	return sub, kp
}

func TestAddRejectsDuplicate(t *testing.T) {
	set := unspent.New()
	pool := mempool.New(10)
	tx, kp := buildSignedTrx(t)
	r, s := tx.Sign(kp)
	pub := address.EncodePublic(kp.Public)

	require.True(t, pool.Add(tx, r, s, pub, set))
	require.False(t, pool.Add(tx, r, s, pub, set))
	require.Equal(t, 1, pool.Len())
}

func TestInMiningCapacity(t *testing.T) {
	set := unspent.New()
	pool := mempool.New(1)

	tx1, kp1 := buildSignedTrx(t)
	r1, s1 := tx1.Sign(kp1)
	require.True(t, pool.Add(tx1, r1, s1, address.EncodePublic(kp1.Public), set))

	tx2, kp2 := buildSignedTrx(t)
	r2, s2 := tx2.Sign(kp2)
	require.True(t, pool.Add(tx2, r2, s2, address.EncodePublic(kp2.Public), set))

	require.Equal(t, 2, pool.Len())
	require.Len(t, pool.InMining(), 1) // capacity 1: second never enters in_mining
}

func TestRemoveMany(t *testing.T) {
	set := unspent.New()
	pool := mempool.New(10)
	tx, kp := buildSignedTrx(t)
	r, s := tx.Sign(kp)
	pool.Add(tx, r, s, address.EncodePublic(kp.Public), set)

	pool.RemoveMany([]string{tx.Hash()})
	require.Equal(t, 0, pool.Len())
	require.False(t, pool.Contains(tx))
}
