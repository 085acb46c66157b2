// Package unspent holds the global UTXO index: a mapping from
// creating-transaction hash to the ordered sequence of its output coins,
// with spent slots nulled and the entry dropped once every output is
// spent.
package unspent

import (
	"sync"

	"github.com/pbcoin/pbcoin/internal/coin"
)

// Set is the process-wide unspent-coin index. It is safe for concurrent
// use; callers that need a consistent multi-step view (chain.Resolve's
// trial application) should work against a Clone.
type Set struct {
	mu      sync.RWMutex
	outputs map[string][]*coin.Coin
}

// New returns an empty unspent-coin set.
func New() *Set {
	return &Set{outputs: make(map[string][]*coin.Coin)}
}

// Get returns the coin at (trxHash, index) if it exists and is unspent.
func (s *Set) Get(trxHash string, index int) (coin.Coin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.outputs[trxHash]
	if !ok || index < 0 || index >= len(row) || row[index] == nil {
		return coin.Coin{}, false
	}
	return *row[index], true
}

// Insert adds a transaction's outputs as new unspent coins, keyed by the
// transaction's own hash.
func (s *Set) Insert(trxHash string, outs []coin.Coin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := make([]*coin.Coin, len(outs))
	for i := range outs {
		c := outs[i]
		row[i] = &c
	}
	s.outputs[trxHash] = row
}

// Spend marks the coin at (trxHash, index) as consumed, dropping the row
// once all of its outputs are spent. Returns false if the coin was already
// gone.
func (s *Set) Spend(trxHash string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outputs[trxHash]
	if !ok || index < 0 || index >= len(row) || row[index] == nil {
		return false
	}
	row[index] = nil
	for _, c := range row {
		if c != nil {
			return true
		}
	}
	delete(s.outputs, trxHash)
	return true
}

// Unspend reinstates a previously spent coin; it is the exact inverse of
// Spend, used by chain rollback during reorg.
func (s *Set) Unspend(trxHash string, index int, c coin.Coin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outputs[trxHash]
	if !ok {
		row = make([]*coin.Coin, index+1)
	}
	for len(row) <= index {
		row = append(row, nil)
	}
	cp := c
	cp.SpendingTrxHash = ""
	cp.InIndex = -1
	row[index] = &cp
	s.outputs[trxHash] = row
}

// CoinsOf returns every unspent coin owned by owner, grouped by creating
// transaction hash.
func (s *Set) CoinsOf(owner string) map[string][]coin.Coin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]coin.Coin)
	for hash, row := range s.outputs {
		for _, c := range row {
			if c != nil && c.Owner == owner {
				out[hash] = append(out[hash], *c)
			}
		}
	}
	return out
}

// BalanceOf sums the value of every unspent coin owned by owner.
func (s *Set) BalanceOf(owner string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, row := range s.outputs {
		for _, c := range row {
			if c != nil && c.Owner == owner {
				total += c.Value
			}
		}
	}
	return total
}

// Sum totals the value of every unspent coin in the set.
func (s *Set) Sum() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, row := range s.outputs {
		for _, c := range row {
			if c != nil {
				total += c.Value
			}
		}
	}
	return total
}

// Clone deep-copies the set so callers (chain.Resolve) can trial-apply
// blocks without mutating the live set until the trial succeeds.
func (s *Set) Clone() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := New()
	for hash, row := range s.outputs {
		newRow := make([]*coin.Coin, len(row))
		for i, c := range row {
			if c != nil {
				cp := *c
				newRow[i] = &cp
			}
		}
		out.outputs[hash] = newRow
	}
	return out
}

// ReplaceFrom overwrites s's contents with other's, used once a trial
// clone (from Clone) has been validated and must become the live set.
func (s *Set) ReplaceFrom(other *Set) {
	other.mu.RLock()
	cp := make(map[string][]*coin.Coin, len(other.outputs))
	for hash, row := range other.outputs {
		newRow := make([]*coin.Coin, len(row))
		for i, c := range row {
			if c != nil {
				v := *c
				newRow[i] = &v
			}
		}
		cp[hash] = newRow
	}
	other.mu.RUnlock()

	s.mu.Lock()
	s.outputs = cp
	s.mu.Unlock()
}
