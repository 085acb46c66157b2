package block_test

import (
	"math/big"
	"testing"

	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

func TestAddTrxRecomputesHash(t *testing.T) {
	b := block.New("", 1)
	before := b.BlockHash
	b.AddTrx(trx.NewSubsidy(1, "miner"))
	require.NotEqual(t, before, b.BlockHash)
}

func TestUpdateAndRevertUnspentAreInverses(t *testing.T) {
	set := unspent.New()
	b := block.New("", 1)
	b.AddTrx(trx.NewSubsidy(1, "miner"))

	b.UpdateUnspent(set)
	require.Equal(t, trx.SubsidyValue, set.BalanceOf("miner"))

	b.RevertUnspent(set)
	require.Equal(t, uint64(0), set.BalanceOf("miner"))
}

func TestIsValidFullBitset(t *testing.T) {
	set := unspent.New()
	difficulty := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)) // everything passes
	b := block.New("", 1)
	b.AddTrx(trx.NewSubsidy(1, "miner"))

	v := b.IsValid(set, "", difficulty)
	require.True(t, v.IsFull())
}

func TestIsValidRejectsWrongPreviousHash(t *testing.T) {
	set := unspent.New()
	difficulty := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	b := block.New("bogus", 1)
	b.AddTrx(trx.NewSubsidy(1, "miner"))

	v := b.IsValid(set, "", difficulty)
	require.False(t, v&block.FlagPreviousHash != 0)
}
