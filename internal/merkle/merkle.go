// Package merkle builds a root hash over a transaction list and can produce
// inclusion proofs for it. Unlike the Bitcoin-style tree the teacher
// implements, an odd trailing node at any level is carried up unmodified
// instead of being duplicated against itself.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrNotFound = errors.New("merkle: leaf not found")

type node struct {
	hash        string
	left, right *node
}

// Tree is an immutable Merkle tree over a fixed leaf set.
type Tree struct {
	root  *node
	level []*node // leaf level, in order, for proof lookups
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// New builds a tree from an ordered list of leaf hashes (already hex
// strings, e.g. transaction hashes). A single leaf produces a root equal to
// that leaf's hash.
func New(leafHashes []string) *Tree {
	if len(leafHashes) == 0 {
		return &Tree{}
	}
	level := make([]*node, len(leafHashes))
	for i, h := range leafHashes {
		level[i] = &node{hash: h}
	}
	leaves := level
	for len(level) > 1 {
		next := make([]*node, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, &node{
				hash:  hashPair(level[i].hash, level[i+1].hash),
				left:  level[i],
				right: level[i+1],
			})
		}
		if len(level)%2 == 1 {
			// Odd node at this level is carried up unmodified, not duplicated.
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return &Tree{root: level[0], level: leaves}
}

// Root returns the tree's root hash, or "" for an empty tree.
func (t *Tree) Root() string {
	if t.root == nil {
		return ""
	}
	return t.root.hash
}

// Proof is an inclusion proof: sibling hashes in pre-order of the traversal
// from leaf to root, and a parallel bit per sibling (true = sibling is on
// the right of the path node).
type Proof struct {
	Hashes []string
	Bits   []bool
}

// GetProof returns the inclusion proof for the leaf at index idx.
func (t *Tree) GetProof(idx int) (Proof, error) {
	if idx < 0 || idx >= len(t.level) {
		return Proof{}, ErrNotFound
	}
	// Rebuild level-by-level paths, tracking the node at idx's position.
	level := t.level
	pos := idx
	var proof Proof
	for len(level) > 1 {
		next := make([]*node, 0, (len(level)+1)/2)
		nextPos := pos
		for i := 0; i+1 < len(level); i += 2 {
			parent := &node{hash: hashPair(level[i].hash, level[i+1].hash)}
			if i == pos || i+1 == pos {
				if i == pos {
					proof.Hashes = append(proof.Hashes, level[i+1].hash)
					proof.Bits = append(proof.Bits, true)
				} else {
					proof.Hashes = append(proof.Hashes, level[i].hash)
					proof.Bits = append(proof.Bits, false)
				}
				nextPos = len(next)
			}
			next = append(next, parent)
		}
		if len(level)%2 == 1 {
			tail := level[len(level)-1]
			if len(level)-1 == pos {
				nextPos = len(next)
			}
			next = append(next, tail)
		}
		level = next
		pos = nextPos
	}
	return proof, nil
}

// VerifyProof reconstructs a root from leafHash and the proof, and reports
// whether it equals expectedRoot.
func VerifyProof(leafHash string, proof Proof, expectedRoot string) bool {
	current := leafHash
	for i, sibling := range proof.Hashes {
		if proof.Bits[i] {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
	}
	return current == expectedRoot
}
