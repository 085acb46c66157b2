// Package coin defines the UTXO entry: a value, an owner, and the
// provenance (creating transaction) and, once spent, consumption
// (spending transaction) hashes that tie it into the ledger.
package coin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Coin is one unspent-transaction-output entry. A Coin is owned by the
// transaction that produced it; the unspent-coin set stores its own copy
// of each coin it indexes.
type Coin struct {
	Owner          string `json:"owner"` // recipient's encoded public key
	Value          uint64 `json:"value"`
	CreatedTrxHash string `json:"created_trx_hash"`
	OutIndex       int    `json:"out_index"`

	// Set once the coin is consumed as an input.
	SpendingTrxHash string `json:"spending_trx_hash,omitempty"`
	InIndex         int    `json:"in_index"`
}

// New builds an unspent coin for output position outIndex of the
// transaction that will produce it. CreatedTrxHash is normally stamped
// after the owning transaction's hash is known (see trx.Build).
func New(owner string, value uint64, outIndex int) Coin {
	return Coin{Owner: owner, Value: value, OutIndex: outIndex, InIndex: -1}
}

// IsSpent reports whether the coin has been consumed by a transaction.
func (c Coin) IsSpent() bool {
	return c.SpendingTrxHash != ""
}

// ID is the coin's identity: hash of (value, owner, created_trx_hash,
// in_index).
func (c Coin) ID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%d", c.Value, c.Owner, c.CreatedTrxHash, c.InIndex)))
	return hex.EncodeToString(sum[:])
}
