// Package mempool holds pending transactions awaiting inclusion in a
// block, plus a bounded FIFO sublist of those prioritized for the next
// mining attempt. Grounded directly on original_source/pbcoin/mempool.py
// — the teacher never built a pending-transaction pool at all.
package mempool

import (
	"math/big"
	"sync"

	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

const defaultMaxMining = 10

// Pool is the mempool: a hash-keyed map of all pending transactions plus
// an ordered, bounded in_mining sublist.
type Pool struct {
	mu           sync.Mutex
	transactions map[string]*trx.Trx
	inMining     []string
	maxMining    int
}

// New returns an empty pool. maxMining <= 0 uses the default of 10.
func New(maxMining int) *Pool {
	if maxMining <= 0 {
		maxMining = defaultMaxMining
	}
	return &Pool{transactions: make(map[string]*trx.Trx), maxMining: maxMining}
}

// Add validates t's signature and local checks against unspent, then
// inserts it. Duplicates (by hash) are rejected. On success, t is also
// appended to in_mining if there's room and it isn't already there.
func (p *Pool) Add(t *trx.Trx, r, s *big.Int, senderPublicKey string, unspent *unspent.Set) bool {
	hash := t.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.transactions[hash]; exists {
		return false
	}
	ok, err := trx.Verify(t, r, s, senderPublicKey)
	if err != nil || !ok {
		return false
	}
	if err := t.Check(unspent); err != nil {
		return false
	}

	p.transactions[hash] = t
	if len(p.inMining) < p.maxMining {
		p.inMining = append(p.inMining, hash)
	}
	return true
}

// Remove drops hash from both the map and in_mining. Returns false if it
// wasn't present.
func (p *Pool) Remove(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash string) bool {
	if _, ok := p.transactions[hash]; !ok {
		return false
	}
	delete(p.transactions, hash)
	for i, h := range p.inMining {
		if h == hash {
			p.inMining = append(p.inMining[:i], p.inMining[i+1:]...)
			break
		}
	}
	return true
}

// RemoveMany removes every hash in hashes, used after a block is
// mined/accepted.
func (p *Pool) RemoveMany(hashes []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		p.removeLocked(h)
	}
}

// Contains reports whether hash (or t.Hash(), if a *trx.Trx is given) is
// currently in the pool.
func (p *Pool) Contains(key any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	var hash string
	switch v := key.(type) {
	case string:
		hash = v
	case *trx.Trx:
		hash = v.Hash()
	default:
		return false
	}
	_, ok := p.transactions[hash]
	return ok
}

// InMining returns the transactions currently in in_mining, in order.
func (p *Pool) InMining() []*trx.Trx {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*trx.Trx, 0, len(p.inMining))
	for _, hash := range p.inMining {
		if t, ok := p.transactions[hash]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of transactions held in the pool (mempool ⊇
// in_mining).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transactions)
}

// MaxMining returns the configured in_mining capacity.
func (p *Pool) MaxMining() int {
	return p.maxMining
}
