// Package block implements the Block entity: transaction list, Merkle
// root, proof-of-work hash, and the validation bitset that chain.go
// consults when deciding whether to append or reject a block.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/pbcoin/pbcoin/internal/merkle"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

// Flags is the block validation bitset. "Fully valid" means all three
// bits set (All()).
type Flags uint8

const (
	FlagDifficulty Flags = 1 << iota
	FlagTrx
	FlagPreviousHash
)

// All returns the bitset with every flag set.
func All() Flags {
	return FlagDifficulty | FlagTrx | FlagPreviousHash
}

// IsFull reports whether every flag in All() is set.
func (f Flags) IsFull() bool {
	return f&All() == All()
}

// Block is one entry in the chain.
type Block struct {
	PreviousHash string     `json:"previous_hash"`
	Height       int        `json:"height"`
	Nonce        uint64     `json:"nonce"`
	Time         int64      `json:"time"`
	Transactions []*trx.Trx `json:"transactions"`
	MerkleRoot   string     `json:"merkle_root"`
	BlockHash    string     `json:"block_hash"`
}

// New starts a fresh block keyed to previousHash at the given height, with
// no transactions yet.
func New(previousHash string, height int) *Block {
	b := &Block{PreviousHash: previousHash, Height: height, Time: time.Now().Unix()}
	b.recompute()
	return b
}

// AddTrx appends t, stamping its input/output coin linkage, then
// recomputes the Merkle root and block hash.
func (b *Block) AddTrx(t *trx.Trx) {
	hash := t.Hash()
	for i := range t.Inputs {
		t.Inputs[i].SpendingTrxHash = hash
		t.Inputs[i].InIndex = i
	}
	for i := range t.Outputs {
		t.Outputs[i].CreatedTrxHash = hash
		t.Outputs[i].OutIndex = i
	}
	b.Transactions = append(b.Transactions, t)
	b.recompute()
}

func (b *Block) recompute() {
	hashes := make([]string, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	b.MerkleRoot = merkle.New(hashes).Root()
	b.BlockHash = b.computeHash()
}

// computeHash is sha256(merkle_root || nonce || previous_hash || time).
func (b *Block) computeHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%d", b.MerkleRoot, b.Nonce, b.PreviousHash, b.Time)
	return hex.EncodeToString(h.Sum(nil))
}

// SetNonce updates the nonce and recomputes the block hash (leaving the
// Merkle root untouched — used by the mining loop's inner nonce search).
func (b *Block) SetNonce(nonce uint64) {
	b.Nonce = nonce
	b.BlockHash = b.computeHash()
}

// UpdateUnspent applies every transaction in the block to set: removes
// spent inputs (dropping fully-spent entries) then inserts the
// transaction's outputs under its own hash.
func (b *Block) UpdateUnspent(set *unspent.Set) {
	for _, t := range b.Transactions {
		for _, in := range t.Inputs {
			set.Spend(in.CreatedTrxHash, in.OutIndex)
		}
		set.Insert(t.Hash(), t.Outputs)
	}
}

// RevertUnspent is the exact inverse of UpdateUnspent, used during reorg
// rollback: outputs are removed and spent inputs are reinstated, in
// reverse transaction order.
func (b *Block) RevertUnspent(set *unspent.Set) {
	for i := len(b.Transactions) - 1; i >= 0; i-- {
		t := b.Transactions[i]
		for j := range t.Outputs {
			set.Spend(t.Hash(), j)
		}
		for _, in := range t.Inputs {
			set.Unspend(in.CreatedTrxHash, in.OutIndex, in)
		}
	}
}

// IsValid returns the validation bitset for b against unspent as of the
// predecessor block, the expected previous hash, and the difficulty
// target.
func (b *Block) IsValid(set *unspent.Set, previousHash string, difficulty *big.Int) Flags {
	var valid Flags

	hashInt := new(big.Int)
	hashBytes, err := hex.DecodeString(b.BlockHash)
	if err == nil {
		hashInt.SetBytes(hashBytes)
		if hashInt.Cmp(difficulty) <= 0 {
			valid |= FlagDifficulty
		}
	}

	trxOK := true
	for _, t := range b.Transactions {
		if err := t.Check(set); err != nil {
			trxOK = false
			break
		}
	}
	if trxOK {
		valid |= FlagTrx
	}

	if b.PreviousHash == previousHash {
		valid |= FlagPreviousHash
	}

	return valid
}
