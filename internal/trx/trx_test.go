package trx_test

import (
	"testing"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

func TestSubsidyShape(t *testing.T) {
	sub := trx.NewSubsidy(1, "miner-pub")
	require.True(t, sub.IsSubsidy)
	require.Empty(t, sub.Inputs)
	require.Len(t, sub.Outputs, 1)
	require.Equal(t, trx.SubsidyValue, sub.Outputs[0].Value)
	require.NoError(t, sub.Check(unspent.New()))
}

func TestBuildSelectsInputsAndChange(t *testing.T) {
	set := unspent.New()
	sub := trx.NewSubsidy(1, "alice")
	set.Insert(sub.Hash(), sub.Outputs)

	built, err := trx.Build(set.CoinsOf("alice"), "alice", "bob", 20)
	require.NoError(t, err)
	require.Len(t, built.Outputs, 2) // 20 to bob, 30 change to alice
	require.Equal(t, "bob", built.Outputs[0].Owner)
	require.Equal(t, uint64(20), built.Outputs[0].Value)
	require.Equal(t, "alice", built.Outputs[1].Owner)
	require.Equal(t, uint64(30), built.Outputs[1].Value)
}

func TestBuildInsufficientFunds(t *testing.T) {
	set := unspent.New()
	_, err := trx.Build(set.CoinsOf("alice"), "alice", "bob", 1)
	require.ErrorIs(t, err, trx.ErrInsufficientFunds)
}

func TestCheckRejectsUnknownInput(t *testing.T) {
	set := unspent.New()
	sub := trx.NewSubsidy(1, "alice")
	set.Insert(sub.Hash(), sub.Outputs)

	built, err := trx.Build(set.CoinsOf("alice"), "alice", "bob", 50)
	require.NoError(t, err)

	// Spend the input out from under the built transaction.
	set.Spend(sub.Hash(), 0)
	require.ErrorIs(t, built.Check(set), trx.ErrCoinNotFound)
}

func TestSignAndVerify(t *testing.T) {
	kp, err := address.Generate()
	require.NoError(t, err)

	sub := trx.NewSubsidy(1, address.EncodePublic(kp.Public))
	r, s := sub.Sign(kp)

	ok, err := trx.Verify(sub, r, s, address.EncodePublic(kp.Public))
	require.NoError(t, err)
	require.True(t, ok)
}
