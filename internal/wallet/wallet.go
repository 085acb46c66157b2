// Package wallet wraps an address keypair with the operations a user
// performs against it: checking balance, listing owned coins, and
// spending.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/coin"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

var ErrSendRejected = errors.New("wallet: transaction rejected by mempool")

// Gossiper is the subset of node.Node needed to broadcast a new
// transaction. Defined here to avoid an import cycle with internal/node.
type Gossiper interface {
	SendNewTrx(ctx context.Context, t *trx.Trx, r, s *big.Int, senderPublicKey string)
}

// Wallet owns a keypair and exposes the user-facing coin operations.
type Wallet struct {
	Keys *address.KeyPair
}

// New wraps an existing keypair.
func New(keys *address.KeyPair) *Wallet {
	return &Wallet{Keys: keys}
}

// PublicKey is the wire form of the wallet's public key — also the
// Coin.Owner value for coins it controls.
func (w *Wallet) PublicKey() string {
	return address.EncodePublic(w.Keys.Public)
}

// Balance sums the value of every unspent coin owned by this wallet.
func (w *Wallet) Balance(unspent *unspent.Set) uint64 {
	return unspent.BalanceOf(w.PublicKey())
}

// OwnCoins returns this wallet's unspent coins, grouped by creating
// transaction hash.
func (w *Wallet) OwnCoins(unspent *unspent.Set) map[string][]coin.Coin {
	return unspent.CoinsOf(w.PublicKey())
}

// SendCoin builds a transaction paying value to recipient, signs it, adds
// it to the local mempool, and asks node to gossip it. Returns false on
// insufficient funds or mempool rejection.
func (w *Wallet) SendCoin(ctx context.Context, recipient string, value uint64, pool *mempool.Pool, unspent *unspent.Set, node Gossiper) (bool, error) {
	t, err := trx.Build(w.OwnCoins(unspent), w.PublicKey(), recipient, value)
	if err != nil {
		return false, err
	}
	r, s := t.Sign(w.Keys)
	if !pool.Add(t, r, s, w.PublicKey(), unspent) {
		return false, ErrSendRejected
	}
	if node != nil {
		node.SendNewTrx(ctx, t, r, s, w.PublicKey())
	}
	return true, nil
}
