package chain_test

import (
	"math/big"
	"testing"

	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/chain"
	"github.com/pbcoin/pbcoin/internal/coin"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

// trivialDifficulty accepts any hash, so tests don't need to brute-force a
// nonce to get a block appended.
func trivialDifficulty() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func mineBlock(prevHash string, height int, minerPub string) *block.Block {
	b := block.New(prevHash, height)
	b.AddTrx(trx.NewSubsidy(height, minerPub))
	return b
}

func TestAddNewBlockAdvancesHeight(t *testing.T) {
	bc := chain.New(true, 0, nil)
	set := unspent.New()
	difficulty := trivialDifficulty()

	b := mineBlock("", 1, "miner")
	v := bc.AddNewBlock(b, set, false, difficulty)

	require.True(t, v.IsFull())
	require.Equal(t, 1, bc.Height())
	require.Equal(t, b.BlockHash, bc.LastBlockHash())
	require.Equal(t, trx.SubsidyValue, set.BalanceOf("miner"))
}

func TestAddNewBlockRejectsWrongPreviousHash(t *testing.T) {
	bc := chain.New(true, 0, nil)
	set := unspent.New()
	difficulty := trivialDifficulty()

	first := mineBlock("", 1, "miner")
	bc.AddNewBlock(first, set, false, difficulty)

	bogus := mineBlock("not-the-tip", 2, "miner")
	v := bc.AddNewBlock(bogus, set, false, difficulty)

	require.False(t, v.IsFull())
	require.Equal(t, 1, bc.Height())
}

func TestFindDifferentOnEmptyChain(t *testing.T) {
	bc := chain.New(true, 0, nil)
	kLocal, kNew := bc.FindDifferent([]*block.Block{mineBlock("", 1, "miner")})
	require.Equal(t, 0, kLocal)
	require.Equal(t, 1, kNew)
}

// TestResolveReorg mirrors a fork scenario: the local chain mined [X, Y]
// while a remote chain mined [X', Y', Z'] diverging at the genesis
// predecessor. Resolve should replace the local suffix and leave unspent
// equal to what direct application of the remote chain would produce.
func TestResolveReorg(t *testing.T) {
	difficulty := trivialDifficulty()

	localBC := chain.New(true, 0, nil)
	localSet := unspent.New()
	x := mineBlock("", 1, "local-miner")
	localBC.AddNewBlock(x, localSet, false, difficulty)
	y := mineBlock(x.BlockHash, 2, "local-miner")
	localBC.AddNewBlock(y, localSet, false, difficulty)
	require.Equal(t, 2, localBC.Height())

	xPrime := mineBlock("", 1, "remote-miner")
	yPrime := mineBlock(xPrime.BlockHash, 2, "remote-miner")
	zPrime := mineBlock(yPrime.BlockHash, 3, "remote-miner")
	remoteBlocks := []*block.Block{xPrime, yPrime, zPrime}

	ok, badIndex, validation := localBC.Resolve(remoteBlocks, localSet, difficulty)
	require.True(t, ok)
	require.Equal(t, -1, badIndex)
	require.True(t, validation.IsFull())

	require.Equal(t, 3, localBC.Height())
	require.Equal(t, zPrime.BlockHash, localBC.LastBlockHash())
	require.Equal(t, uint64(0), localSet.BalanceOf("local-miner"))
	require.Equal(t, 3*trx.SubsidyValue, localSet.BalanceOf("remote-miner"))
}

// TestResolveRejectsEqualLengthChain covers the §4.5 tie-break: an
// alternative chain of the same length as the local one must not replace
// it, even though every block in it validates individually.
func TestResolveRejectsEqualLengthChain(t *testing.T) {
	difficulty := trivialDifficulty()

	bc := chain.New(true, 0, nil)
	set := unspent.New()
	x := mineBlock("", 1, "local-miner")
	bc.AddNewBlock(x, set, false, difficulty)
	y := mineBlock(x.BlockHash, 2, "local-miner")
	bc.AddNewBlock(y, set, false, difficulty)
	require.Equal(t, 2, bc.Height())

	xPrime := mineBlock("", 1, "remote-miner")
	yPrime := mineBlock(xPrime.BlockHash, 2, "remote-miner")
	remoteBlocks := []*block.Block{xPrime, yPrime}

	ok, badIndex, validation := bc.Resolve(remoteBlocks, set, difficulty)

	require.False(t, ok)
	require.Equal(t, -1, badIndex)
	require.False(t, validation.IsFull())
	require.Equal(t, 2, bc.Height())
	require.Equal(t, y.BlockHash, bc.LastBlockHash())
	require.Equal(t, 2*trx.SubsidyValue, set.BalanceOf("local-miner"))
	require.Equal(t, uint64(0), set.BalanceOf("remote-miner"))
}

func TestRevalidateTipKeepsValidBlock(t *testing.T) {
	difficulty := trivialDifficulty()
	bc := chain.New(true, 0, nil)
	set := unspent.New()

	b := mineBlock("", 1, "miner")
	bc.AddNewBlock(b, set, false, difficulty)

	validation, rolledBack := bc.RevalidateTip(set, difficulty)
	require.False(t, rolledBack)
	require.True(t, validation.IsFull())
	require.Equal(t, 1, bc.Height())
	require.Equal(t, trx.SubsidyValue, set.BalanceOf("miner"))
}

// TestRevalidateTipRollsBackInvalidSelfMinedBlock covers §4.12: mining
// commits with ignoreValidation set, so an invalid self-mined block can
// land on the chain; RevalidateTip must catch and undo it.
func TestRevalidateTipRollsBackInvalidSelfMinedBlock(t *testing.T) {
	difficulty := trivialDifficulty()
	bc := chain.New(true, 0, nil)
	set := unspent.New()

	genesis := mineBlock("", 1, "miner")
	bc.AddNewBlock(genesis, set, false, difficulty)

	bogus := block.New(genesis.BlockHash, 2)
	bogus.AddTrx(&trx.Trx{
		Inputs:  []coin.Coin{coin.New("nobody", 100, 0)},
		Outputs: []coin.Coin{coin.New("miner", 100, 0)},
		Value:   100,
		Time:    genesis.Time,
	})
	bc.AddNewBlock(bogus, set, true /* ignoreValidation, as miner.submit does */, difficulty)
	require.Equal(t, 2, bc.Height())

	validation, rolledBack := bc.RevalidateTip(set, difficulty)
	require.True(t, rolledBack)
	require.False(t, validation.IsFull())
	require.Equal(t, 1, bc.Height())
	require.Equal(t, genesis.BlockHash, bc.LastBlockHash())
	require.Equal(t, trx.SubsidyValue, set.BalanceOf("miner"))
}

func TestResolveRejectsInvalidChain(t *testing.T) {
	difficulty := trivialDifficulty()
	bc := chain.New(true, 0, nil)
	set := unspent.New()

	bad := mineBlock("wrong-previous-hash-for-genesis", 1, "miner")
	ok, badIndex, validation := bc.Resolve([]*block.Block{bad}, set, difficulty)

	require.False(t, ok)
	require.Equal(t, 0, badIndex)
	require.False(t, validation.IsFull())
}
