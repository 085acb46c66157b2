package miner_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pbcoin/pbcoin/internal/chain"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/miner"
	"github.com/pbcoin/pbcoin/internal/unspent"
	"github.com/stretchr/testify/require"
)

func trivialDifficulty() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func TestMinerProducesBlockThenStopsOnCancel(t *testing.T) {
	bc := chain.New(true, 0, nil)
	set := unspent.New()
	pool := mempool.New(10)

	m := miner.New(bc, pool, set, "miner-pub", trivialDifficulty(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return bc.Height() >= 1
	}, time.Second, time.Millisecond, "expected at least one block to be mined")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	require.True(t, set.BalanceOf("miner-pub") > 0)
}

func TestSetEnabledHaltsMining(t *testing.T) {
	bc := chain.New(true, 0, nil)
	set := unspent.New()
	pool := mempool.New(10)

	m := miner.New(bc, pool, set, "miner-pub", trivialDifficulty(), nil, nil)
	m.SetEnabled(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, bc.Height())

	cancel()
	<-done
}
