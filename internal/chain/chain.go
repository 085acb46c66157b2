// Package chain implements the Blockchain: an ordered block list with
// append validation, fork detection, resolve (reorganization), and
// range/search queries.
package chain

import (
	"math/big"
	"sync"

	"github.com/pbcoin/pbcoin/internal/block"
	"github.com/pbcoin/pbcoin/internal/mempool"
	"github.com/pbcoin/pbcoin/internal/trx"
	"github.com/pbcoin/pbcoin/internal/unspent"
)

// Difficulty is the process-wide proof-of-work target, defaulting to
// (2^256 - 1) >> 2 (test scenario 1). There is no dynamic adjustment (a
// spec Non-goal). It is the fallback miner.New uses when given a nil
// difficulty; the running node's target comes from --difficulty-shift via
// internal/config.
var Difficulty = func() *big.Int {
	maxHash := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	return new(big.Int).Rsh(maxHash, 2)
}()

// Blockchain is the ordered block list plus the full-node/cache-budget
// policy governing how much of it stays resident.
type Blockchain struct {
	mu         sync.RWMutex
	blocks     []*block.Block
	isFullNode bool
	cacheBytes int
	persist    Persister
}

// Persister is the optional on-disk projection a Blockchain writes
// through to on every append (internal/store implements this).
type Persister interface {
	SaveBlock(b *block.Block) error
}

// New returns an empty chain. store may be nil to disable persistence.
func New(isFullNode bool, cacheBytes int, store Persister) *Blockchain {
	return &Blockchain{isFullNode: isFullNode, cacheBytes: cacheBytes, persist: store}
}

// Height is the number of blocks in the chain (0 for an empty chain).
func (bc *Blockchain) Height() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.blocks)
}

// LastBlock returns the tip, or nil for an empty chain.
func (bc *Blockchain) LastBlock() *block.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if len(bc.blocks) == 0 {
		return nil
	}
	return bc.blocks[len(bc.blocks)-1]
}

// LastBlockHash returns the tip's hash, or "" for an empty chain.
func (bc *Blockchain) LastBlockHash() string {
	if b := bc.LastBlock(); b != nil {
		return b.BlockHash
	}
	return ""
}

// SetupNewBlock produces a new block keyed to the current tip, embedding
// subsidy as transaction 0 and appending up to pool.MaxMining() pending
// transactions.
func (bc *Blockchain) SetupNewBlock(subsidy *trx.Trx, pool *mempool.Pool) *block.Block {
	bc.mu.RLock()
	height := len(bc.blocks)
	prevHash := ""
	if height > 0 {
		prevHash = bc.blocks[height-1].BlockHash
	}
	bc.mu.RUnlock()

	b := block.New(prevHash, height+1)
	b.AddTrx(subsidy)
	for _, t := range pool.InMining() {
		b.AddTrx(t)
	}
	return b
}

// AddNewBlock validates b and, if fully valid (or ignoreValidation is
// set), appends it, applies it to unspent, persists it, and enforces the
// non-full-node cache budget.
func (bc *Blockchain) AddNewBlock(b *block.Block, unspent *unspent.Set, ignoreValidation bool, difficulty *big.Int) block.Flags {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	prevHash := ""
	if len(bc.blocks) > 0 {
		prevHash = bc.blocks[len(bc.blocks)-1].BlockHash
	}
	validation := b.IsValid(unspent, prevHash, difficulty)
	if !ignoreValidation && !validation.IsFull() {
		return validation
	}

	bc.blocks = append(bc.blocks, b)
	b.UpdateUnspent(unspent)
	if bc.persist != nil {
		_ = bc.persist.SaveBlock(b)
	}
	bc.evictIfNeeded()
	return block.All()
}

func (bc *Blockchain) evictIfNeeded() {
	if bc.isFullNode || bc.cacheBytes <= 0 {
		return
	}
	for bc.approxSizeLocked() > bc.cacheBytes && len(bc.blocks) > 0 {
		bc.blocks = bc.blocks[1:]
	}
}

// approxSizeLocked is a rough per-block cost used only to decide when a
// non-full node should evict; it need not be exact.
func (bc *Blockchain) approxSizeLocked() int {
	total := 0
	for _, b := range bc.blocks {
		total += 256 + 256*len(b.Transactions)
	}
	return total
}

// FindDifferent returns (kLocal, kNew): the number of trailing local
// blocks that diverge from newBlocks, and the number of trailing
// newBlocks that extend past the common point. The common point is the
// longest matching suffix of the local chain found anywhere in newBlocks
// — an explicit resolution of the ambiguity left open by the source (see
// SPEC_FULL.md).
func (bc *Blockchain) FindDifferent(newBlocks []*block.Block) (kLocal, kNew int) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if len(bc.blocks) == 0 {
		return 0, len(newBlocks)
	}
	newIndexByHash := make(map[string]int, len(newBlocks))
	for i, b := range newBlocks {
		newIndexByHash[b.BlockHash] = i
	}
	for i := len(bc.blocks) - 1; i >= -1; i-- {
		var localHash string
		if i >= 0 {
			localHash = bc.blocks[i].BlockHash
		} else {
			localHash = ""
		}
		if j, ok := newIndexByHash[localHash]; ok {
			return len(bc.blocks) - 1 - i, len(newBlocks) - 1 - j
		}
	}
	return len(bc.blocks), len(newBlocks)
}

// Resolve reconciles the local chain with newBlocks: it copies unspent,
// validates newBlocks sequentially against the copy, finds the
// divergence point, reverts the local divergent suffix and applies
// newBlocks' trailing suffix onto the caller's unspent set.
func (bc *Blockchain) Resolve(newBlocks []*block.Block, live *unspent.Set, difficulty *big.Int) (ok bool, badIndex int, validation block.Flags) {
	trial := live.Clone()
	prevHash := ""

	for i, b := range newBlocks {
		v := b.IsValid(trial, prevHash, difficulty)
		if !v.IsFull() {
			return false, i, v
		}
		b.UpdateUnspent(trial)
		prevHash = b.BlockHash
	}

	kLocal, kNew := bc.FindDifferent(newBlocks)

	bc.mu.Lock()
	defer bc.mu.Unlock()
	localLen := len(bc.blocks)

	// Tie-break per §4.5: only a strictly longer resulting chain wins.
	// Equal-length or shorter candidates are declined, leaving the local
	// chain untouched.
	if kNew <= kLocal {
		return false, -1, block.Flags(0)
	}

	// Revert the local divergent suffix on a fresh copy of the live set,
	// then apply newBlocks' trailing suffix on top of that.
	trial = live.Clone()
	for i := localLen - 1; i >= localLen-kLocal; i-- {
		bc.blocks[i].RevertUnspent(trial)
	}
	bc.blocks = bc.blocks[:localLen-kLocal]

	tail := newBlocks[len(newBlocks)-kNew:]
	for _, b := range tail {
		b.UpdateUnspent(trial)
		bc.blocks = append(bc.blocks, b)
		if bc.persist != nil {
			_ = bc.persist.SaveBlock(b)
		}
	}
	bc.evictIfNeeded()
	live.ReplaceFrom(trial)

	return true, -1, block.All()
}

// RevalidateTip re-checks the current tip against its own predecessor and
// unspent set — used when a neighbor reports BAD_BLOCK_VALIDATION on a
// block this node mined itself (§4.12): mining appends with
// ignoreValidation set, so a self-mined block is never actually checked
// against the local chain's rules before commit. If the tip turns out to
// be invalid, it is popped off and its effect on set is reverted.
func (bc *Blockchain) RevalidateTip(set *unspent.Set, difficulty *big.Int) (validation block.Flags, rolledBack bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(bc.blocks) == 0 {
		return block.All(), false
	}
	tip := bc.blocks[len(bc.blocks)-1]
	prevHash := ""
	if len(bc.blocks) > 1 {
		prevHash = bc.blocks[len(bc.blocks)-2].BlockHash
	}

	// tip's effect is already applied to set; revert it first so IsValid
	// sees the same unspent state the block was originally mined against.
	tip.RevertUnspent(set)
	validation = tip.IsValid(set, prevHash, difficulty)
	if validation.IsFull() {
		tip.UpdateUnspent(set)
		return validation, false
	}

	bc.blocks = bc.blocks[:len(bc.blocks)-1]
	return validation, true
}

// GetHashes returns the block hashes in [i, j).
func (bc *Blockchain) GetHashes(i, j int) []string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	i, j = clampRange(i, j, len(bc.blocks))
	out := make([]string, 0, j-i)
	for _, b := range bc.blocks[i:j] {
		out = append(out, b.BlockHash)
	}
	return out
}

// GetData returns the blocks in [i, j).
func (bc *Blockchain) GetData(i, j int) []*block.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	i, j = clampRange(i, j, len(bc.blocks))
	out := make([]*block.Block, j-i)
	copy(out, bc.blocks[i:j])
	return out
}

// Search returns the index of the block with the given hash, searching
// from the tip backward. Blocks evicted from a non-full node's cache are
// no longer in the list and are reported as not found.
func (bc *Blockchain) Search(hash string) (int, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for i := len(bc.blocks) - 1; i >= 0; i-- {
		if bc.blocks[i].BlockHash == hash {
			return i, true
		}
	}
	return 0, false
}

func clampRange(i, j, n int) (int, int) {
	if i < 0 {
		i = 0
	}
	if j > n || j < 0 {
		j = n
	}
	if i > j {
		i = j
	}
	return i, j
}
