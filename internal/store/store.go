// Package store persists blocks in a badger keyspace for fast
// restart/continuation, supplementing the relational projection in
// store/sql. Grounded on the teacher's blockchain/blockchain.go and
// utxo.go (openDB/retry-on-lock pattern, badger key prefixes).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/pbcoin/pbcoin/internal/block"
)

const blockKeyPrefix = "block-"

// Store is a badger-backed block log. It implements chain.Persister.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the badger database at dir.
func Open(dir string) (*Store, error) {
	db, err := openWithRetry(dir)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// openWithRetry mirrors the teacher's pattern of clearing a stale LOCK
// file left by an unclean shutdown before retrying once.
func openWithRetry(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "lock") {
		_ = os.Remove(dir + "/LOCK")
		db, err = badger.Open(opts)
	}
	return db, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(height int) []byte {
	return []byte(fmt.Sprintf("%s%012d", blockKeyPrefix, height))
}

// SaveBlock persists b, keyed by height, implementing chain.Persister.
func (s *Store) SaveBlock(b *block.Block) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(b.Height), raw)
	})
}

// LoadAll returns every persisted block in height order, for continuing a
// chain across restarts.
func (s *Store) LoadAll() ([]*block.Block, error) {
	var blocks []*block.Block
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(blockKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var b block.Block
				if err := json.Unmarshal(val, &b); err != nil {
					return err
				}
				blocks = append(blocks, &b)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return blocks, err
}
