// Package miner implements the nonce-search mining loop: it builds a
// candidate block from the mempool and chain tip, searches for a nonce
// satisfying the difficulty target, and gossips the result. Interruption
// on reorg is an explicit cancellation channel (the Token below) rather
// than the shared start_over/stop_mining/reset_nonce booleans the source
// uses, per the §9 re-architecture.
package miner

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/chain"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

// Gossiper is the subset of node.Node the miner needs to broadcast a
// mined block. Defined here (consumer side) to avoid an import cycle with
// internal/node.
type Gossiper interface {
	SendMinedBlock(ctx context.Context, b *block.Block)
}

// Token is the cancellation/restart signal sent to a running mining
// attempt. Reset asks the miner to abandon its current nonce search and
// rebuild against the (presumably just-mutated) chain tip; Pause/Resume
// let a chain-mutation critical section hold the miner off entirely.
type Token struct {
	reset  chan struct{}
	paused int32
}

// NewToken returns a ready-to-use cancellation token.
func NewToken() *Token {
	return &Token{reset: make(chan struct{}, 1)}
}

// Reset signals the miner to restart against the current tip.
func (t *Token) Reset() {
	select {
	case t.reset <- struct{}{}:
	default:
	}
}

// Pause stops the miner's inner loop from progressing until Resume is
// called; used to hold mining off during a chain-mutation critical
// section.
func (t *Token) Pause() { atomic.StoreInt32(&t.paused, 1) }

// Resume releases a Pause.
func (t *Token) Resume() { atomic.StoreInt32(&t.paused, 0) }

func (t *Token) isPaused() bool { return atomic.LoadInt32(&t.paused) != 0 }

// Miner owns the mining task: it repeatedly builds a block from the
// current chain tip and mempool, and searches for a valid nonce.
type Miner struct {
	Chain          *chain.Blockchain
	Pool           *mempool.Pool
	Unspent        *unspent.Set
	MinerPublicKey string
	Difficulty     *big.Int
	Node           Gossiper // nil runs standalone (no gossip)
	Token          *Token

	enabled int32
}

// New constructs a Miner. If difficulty is nil, chain.Difficulty is used.
func New(bc *chain.Blockchain, pool *mempool.Pool, unspent *unspent.Set, minerPublicKey string, difficulty *big.Int, node Gossiper, token *Token) *Miner {
	if difficulty == nil {
		difficulty = chain.Difficulty
	}
	if token == nil {
		token = NewToken()
	}
	return &Miner{Chain: bc, Pool: pool, Unspent: unspent, MinerPublicKey: minerPublicKey, Difficulty: difficulty, Node: node, Token: token, enabled: 1}
}

// SetEnabled turns mining on or off at runtime (the control socket's
// MINING on/off/state command).
func (m *Miner) SetEnabled(on bool) {
	if on {
		atomic.StoreInt32(&m.enabled, 1)
	} else {
		atomic.StoreInt32(&m.enabled, 0)
	}
}

// Enabled reports the current on/off state.
func (m *Miner) Enabled() bool {
	return atomic.LoadInt32(&m.enabled) != 0
}

// Run mines continuously until ctx is cancelled, gossiping each block it
// finds and moving on to the next.
func (m *Miner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !m.Enabled() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		m.mineOne(ctx)
	}
}

// mineOne runs a single mining attempt: it mines until either a block is
// found or the tip advances out from under it (another node's block won
// the race), in which case it simply returns to let Run start over
// against the new tip.
func (m *Miner) mineOne(ctx context.Context) {
	baselineHeight := m.Chain.Height()
	subsidy := trx.NewSubsidy(baselineHeight+1, m.MinerPublicKey)
	b := m.Chain.SetupNewBlock(subsidy, m.Pool)
	baselineTrxCount := len(b.Transactions)

	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Token.reset:
			return // chain moved; Run will rebuild against the new tip
		default:
		}

		if m.Chain.Height() > baselineHeight {
			return // someone else's block won
		}
		if m.Token.isPaused() || !m.Enabled() {
			time.Sleep(10 * time.Millisecond) // avoid spinning while paused or administratively disabled
			continue
		}

		if fresh := m.Pool.InMining(); len(fresh) > baselineTrxCount-1 {
			// baselineTrxCount counts the subsidy too; rebuild if the
			// mempool grew newer transactions than our baseline.
			if len(fresh) != baselineTrxCount-1 {
				b = m.Chain.SetupNewBlock(subsidy, m.Pool)
				baselineTrxCount = len(b.Transactions)
			}
		}

		b.SetNonce(nonce)
		hashBytes := b.BlockHash
		hashInt := new(big.Int)
		if _, ok := hashInt.SetString(hashBytes, 16); ok && hashInt.Cmp(m.Difficulty) <= 0 {
			m.submit(ctx, b)
			return
		}
		nonce++
	}
}

func (m *Miner) submit(ctx context.Context, b *block.Block) {
	m.Chain.AddNewBlock(b, m.Unspent, true /* ignoreValidation: we mined it ourselves */, m.Difficulty)

	hashes := make([]string, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		hashes = append(hashes, t.Hash())
	}
	m.Pool.RemoveMany(hashes)

	if m.Node != nil {
		m.Node.SendMinedBlock(ctx, b)
	}
}
