// Package trx implements the Transaction entity: construction from a
// spendable-coin set, local validity checking against the unspent-coin
// set, hashing, and signing.
package trx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/pbcoin/pbcoin/internal/coin"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

// SubsidyValue is the fixed block reward. The spec fixes this at 50,
// distinct from the teacher's arbitrary 100.
const SubsidyValue uint64 = 50

// GenesisEpoch is the fixed point every transaction's time must exceed.
var GenesisEpoch = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()

var (
	ErrInsufficientFunds = errors.New("trx: insufficient funds")
	ErrCoinNotFound      = errors.New("trx: referenced coin not in unspent set")
	ErrOwnerMismatch     = errors.New("trx: input owner does not match unspent coin")
	ErrValueMismatch     = errors.New("trx: input value does not equal output value")
	ErrStaleTime         = errors.New("trx: time not after genesis epoch")
	ErrBadOutputStamp    = errors.New("trx: output created_trx_hash mismatch")
	ErrBadSubsidyShape   = errors.New("trx: subsidy must have zero inputs and one output")
)

// Trx is a transaction: spends zero or more existing coins and creates one
// or more new ones.
type Trx struct {
	Inputs          []coin.Coin `json:"inputs"`
	Outputs         []coin.Coin `json:"outputs"`
	Value           uint64      `json:"value"`
	Time            int64       `json:"time"`
	IncludeBlock    int         `json:"include_block"`
	SenderPublicKey string      `json:"sender_public_key"`
	IsSubsidy       bool        `json:"is_subsidy"`
}

// NewSubsidy builds the coinbase transaction for a block at the given
// height, paying the fixed subsidy to minerPublicKey.
func NewSubsidy(height int, minerPublicKey string) *Trx {
	t := &Trx{
		Outputs:         []coin.Coin{coin.New(minerPublicKey, SubsidyValue, 0)},
		Value:           SubsidyValue,
		Time:            time.Now().Unix(),
		IncludeBlock:    height,
		SenderPublicKey: minerPublicKey,
		IsSubsidy:       true,
	}
	t.stampOutputs()
	return t
}

// Build selects inputs greedily from ownerCoins whose owner is sender
// until their summed value covers value, emits one recipient output and,
// on overpay, one change output back to sender.
func Build(ownerCoins map[string][]coin.Coin, sender, recipient string, value uint64) (*Trx, error) {
	type candidate struct {
		hash string
		c    coin.Coin
	}
	var pool []candidate
	for hash, coins := range ownerCoins {
		for _, c := range coins {
			if c.Owner == sender {
				pool = append(pool, candidate{hash: hash, c: c})
			}
		}
	}
	// Deterministic order so repeated builds over the same set pick the
	// same inputs.
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].hash != pool[j].hash {
			return pool[i].hash < pool[j].hash
		}
		return pool[i].c.OutIndex < pool[j].c.OutIndex
	})

	var inputs []coin.Coin
	var total uint64
	for _, cand := range pool {
		if total >= value {
			break
		}
		inputs = append(inputs, cand.c)
		total += cand.c.Value
	}
	if total < value {
		return nil, ErrInsufficientFunds
	}

	outputs := []coin.Coin{coin.New(recipient, value, 0)}
	if change := total - value; change > 0 {
		outputs = append(outputs, coin.New(sender, change, 1))
	}

	t := &Trx{
		Inputs:          inputs,
		Outputs:         outputs,
		Value:           value,
		Time:            time.Now().Unix(),
		SenderPublicKey: sender,
	}
	hash := t.Hash()
	for i := range t.Inputs {
		t.Inputs[i].SpendingTrxHash = hash
		t.Inputs[i].InIndex = i
	}
	t.stampOutputs()
	return t, nil
}

func (t *Trx) stampOutputs() {
	hash := t.Hash()
	for i := range t.Outputs {
		t.Outputs[i].CreatedTrxHash = hash
		t.Outputs[i].OutIndex = i
	}
}

// Hash is the transaction's identity: a hash of its senders, recipients,
// value, and time.
func (t *Trx) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", t.SenderPublicKey)
	for _, in := range t.Inputs {
		fmt.Fprintf(h, "%s:%d|", in.CreatedTrxHash, in.OutIndex)
	}
	for _, out := range t.Outputs {
		fmt.Fprintf(h, "%s:%d|", out.Owner, out.Value)
	}
	fmt.Fprintf(h, "%d|%d|%t", t.Value, t.Time, t.IsSubsidy)
	return hex.EncodeToString(h.Sum(nil))
}

// Check validates the transaction against the unspent-coin set: every
// input must exist there at its claimed position with its claimed owner,
// input and output value sums must balance (subsidy exempt), time must be
// after genesis, and outputs must be stamped with this transaction's hash.
func (t *Trx) Check(unspent *unspent.Set) error {
	if t.Time <= GenesisEpoch {
		return ErrStaleTime
	}
	hash := t.Hash()
	for _, out := range t.Outputs {
		if out.CreatedTrxHash != hash {
			return ErrBadOutputStamp
		}
	}
	if t.IsSubsidy {
		if len(t.Inputs) != 0 || len(t.Outputs) != 1 || t.Outputs[0].Value != SubsidyValue {
			return ErrBadSubsidyShape
		}
		return nil
	}

	var inputTotal, outputTotal uint64
	for _, in := range t.Inputs {
		u, ok := unspent.Get(in.CreatedTrxHash, in.OutIndex)
		if !ok {
			return ErrCoinNotFound
		}
		if u.Owner != t.SenderPublicKey {
			return ErrOwnerMismatch
		}
		inputTotal += u.Value
	}
	for _, out := range t.Outputs {
		outputTotal += out.Value
	}
	if inputTotal != outputTotal {
		return ErrValueMismatch
	}
	return nil
}

// Sign produces a deterministic ECDSA signature over the transaction's
// hash using the sender's keypair.
func (t *Trx) Sign(kp *address.KeyPair) (r, s *big.Int) {
	hashBytes, _ := hex.DecodeString(t.Hash())
	return address.Sign(hashBytes, kp)
}

// Verify checks a signature against the transaction's hash and the given
// sender public key.
func Verify(t *Trx, r, s *big.Int, senderPublicKey string) (bool, error) {
	hashBytes, err := hex.DecodeString(t.Hash())
	if err != nil {
		return false, err
	}
	return address.Verify(hashBytes, r, s, senderPublicKey)
}
