// Package sql implements the §6 on-disk block store: the Blocks, Trx,
// and Coins relational tables, fetched by height on demand. It runs as a
// write-behind projection updated on every chain.AddNewBlock/Resolve,
// behind the primary badger log in internal/store. Grounded on
// original_source/pbcoin/db.py's schema shape.
package sql

import (
	"database/sql"
	"fmt"

	"github.com/pbcoin/pbcoin/internal/block"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	hash TEXT PRIMARY KEY,
	height INTEGER NOT NULL,
	nonce INTEGER NOT NULL,
	number_trx INTEGER NOT NULL,
	merkle_root TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trx (
	hash TEXT PRIMARY KEY,
	include_block INTEGER NOT NULL,
	value INTEGER NOT NULL,
	t_index INTEGER NOT NULL,
	time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS coins (
	hash TEXT PRIMARY KEY,
	created_trx_hash TEXT NOT NULL,
	in_index INTEGER NOT NULL,
	value INTEGER NOT NULL,
	owner TEXT NOT NULL,
	spending_trx_hash TEXT,
	out_index INTEGER NOT NULL
);
`

// Store is the §6 relational projection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store/sql: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store/sql: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBlock projects b and its transactions/coins into the relational
// tables, implementing chain.Persister alongside internal/store.
func (s *Store) SaveBlock(b *block.Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO blocks
		(hash, height, nonce, number_trx, merkle_root, previous_hash, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BlockHash, b.Height, b.Nonce, len(b.Transactions), b.MerkleRoot, b.PreviousHash, b.Time)
	if err != nil {
		return err
	}

	for i, t := range b.Transactions {
		hash := t.Hash()
		_, err = tx.Exec(`INSERT OR REPLACE INTO trx
			(hash, include_block, value, t_index, time) VALUES (?, ?, ?, ?, ?)`,
			hash, t.IncludeBlock, t.Value, i, t.Time)
		if err != nil {
			return err
		}
		for _, c := range t.Outputs {
			_, err = tx.Exec(`INSERT OR REPLACE INTO coins
				(hash, created_trx_hash, in_index, value, owner, spending_trx_hash, out_index)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID(), c.CreatedTrxHash, c.InIndex, c.Value, c.Owner, c.SpendingTrxHash, c.OutIndex)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// BlockSummary is a row from the blocks table, returned by FetchByHeight.
type BlockSummary struct {
	Hash         string
	Height       int
	Nonce        uint64
	NumberTrx    int
	MerkleRoot   string
	PreviousHash string
	Time         int64
}

// FetchByHeight reads the stored block summary at height, consulting disk
// only on explicit calls like this one (§9: eviction never pages from
// disk implicitly).
func (s *Store) FetchByHeight(height int) (*BlockSummary, error) {
	row := s.db.QueryRow(`SELECT hash, height, nonce, number_trx, merkle_root, previous_hash, time
		FROM blocks WHERE height = ?`, height)
	var b BlockSummary
	if err := row.Scan(&b.Hash, &b.Height, &b.Nonce, &b.NumberTrx, &b.MerkleRoot, &b.PreviousHash, &b.Time); err != nil {
		return nil, err
	}
	return &b, nil
}
