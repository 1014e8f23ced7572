/*

Merkle whitelist. A vault stores only the root; depositors present the sibling path for their leaf.
Leaves are keccak256(account) and inner nodes hash the sorted pair, so proofs carry no direction bits.

*/

package whitelist

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTree     = errors.New("whitelist tree has no members")
	ErrNotInTree     = errors.New("account is not a tree member")
	ErrDuplicateLeaf = errors.New("duplicate whitelist member")
)

// Leaf returns the leaf hash of account.
func Leaf(account common.Address) common.Hash {
	return crypto.Keccak256Hash(account.Bytes())
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// Verify reports whether proof connects account's leaf to root.
func Verify(root common.Hash, account common.Address, proof []common.Hash) bool {
	if root == (common.Hash{}) {
		return false
	}
	node := Leaf(account)
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

// Tree is a full Merkle tree over a member set, used to publish roots and hand out proofs.
type Tree struct {
	layers [][]common.Hash
	index  map[common.Hash]int
}

// NewTree builds a tree over members. Leaves are sorted, so the root does not depend on input order.
func NewTree(members []common.Address) (*Tree, error) {
	if len(members) == 0 {
		return nil, ErrEmptyTree
	}
	leaves := make([]common.Hash, 0, len(members))
	seen := make(map[common.Hash]bool, len(members))
	for _, m := range members {
		l := Leaf(m)
		if seen[l] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLeaf, m.Hex())
		}
		seen[l] = true
		leaves = append(leaves, l)
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i].Bytes(), leaves[j].Bytes()) < 0 })

	t := &Tree{index: make(map[common.Hash]int, len(leaves))}
	for i, l := range leaves {
		t.index[l] = i
	}
	layer := leaves
	t.layers = append(t.layers, layer)
	for len(layer) > 1 {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				// odd node is promoted unchanged
				next = append(next, layer[i])
				continue
			}
			next = append(next, hashPair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() common.Hash {
	return t.layers[len(t.layers)-1][0]
}

// Proof returns the sibling path for account.
func (t *Tree) Proof(account common.Address) ([]common.Hash, error) {
	idx, ok := t.index[Leaf(account)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInTree, account.Hex())
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}
