// Package merkle maintains the sparse Merkle membership index of
// authorized end users. The tree exists solely to hand end users a
// sibling path they can feed to an external zero-knowledge verifier to
// prove membership or non-membership without revealing other members.
package merkle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	merkletree "github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-merkletree-sql/v2/db/memory"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
)

// Addresses are 160-bit integers, so the tree never needs more levels.
const treeLevels = 160

// Proof is the sibling path sufficient to reconstruct the root from one
// leaf. IsOld0 distinguishes a non-membership proof against the empty leaf
// from one against another occupied slot.
type Proof struct {
	Found    bool     `json:"found"`
	IsOld0   bool     `json:"isOld0"`
	Value    string   `json:"foundValue,omitempty"`
	Siblings []string `json:"siblings"`
	Root     string   `json:"root"`
}

// Index is the membership tree. Insert, Delete and Find serialize on an
// internal mutex; the root hash is only meaningful under that exclusion.
type Index struct {
	mu   sync.Mutex
	tree *merkletree.MerkleTree
}

// NewIndex returns an empty in-memory membership index.
func NewIndex(ctx context.Context) (*Index, error) {
	tree, err := merkletree.NewMerkleTree(ctx, memory.NewMemoryStorage(), treeLevels)
	if err != nil {
		return nil, err
	}
	return &Index{tree: tree}, nil
}

// KeyFromAddress interprets a hex address as the tree key.
func KeyFromAddress(address string) (*big.Int, error) {
	hex := strings.TrimPrefix(strings.ToLower(address), "0x")
	k, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return nil, fmt.Errorf("%w: address %q is not hex", faults.ErrValidation, address)
	}
	return k, nil
}

// Insert adds a key with itself as value (existence-only encoding). An
// already-present key fails with faults.ErrDuplicateKey without mutating
// the root; during event replay callers treat that as already-member.
func (x *Index) Insert(ctx context.Context, key *big.Int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	err := x.tree.Add(ctx, key, key)
	if errors.Is(err, merkletree.ErrEntryIndexAlreadyExists) {
		return faults.ErrDuplicateKey
	}
	return err
}

// Delete removes a key. An absent key fails with faults.ErrNotFound
// without mutating the root; replay and unregistration races make that a
// routine outcome.
func (x *Index) Delete(ctx context.Context, key *big.Int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	err := x.tree.Delete(ctx, key)
	if errors.Is(err, merkletree.ErrKeyNotFound) {
		return fmt.Errorf("%w: merkle key", faults.ErrNotFound)
	}
	return err
}

// Find returns the membership (or non-membership) proof for a key against
// the current root.
func (x *Index) Find(ctx context.Context, key *big.Int) (*Proof, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	proof, value, err := x.tree.GenerateProof(ctx, key, x.tree.Root())
	if err != nil {
		return nil, err
	}

	out := &Proof{
		Found:  proof.Existence,
		IsOld0: !proof.Existence && proof.NodeAux == nil,
		Root:   x.tree.Root().BigInt().String(),
	}
	if proof.Existence {
		out.Value = value.String()
	}
	for _, sib := range proof.AllSiblings() {
		out.Siblings = append(out.Siblings, sib.BigInt().String())
	}
	return out, nil
}

// Root returns the current root as a decimal string.
func (x *Index) Root() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.tree.Root().BigInt().String()
}

// EndUserSource lists the addresses that belong in the tree.
type EndUserSource interface {
	EndUserAddresses(ctx context.Context) ([]string, error)
}

// Load rebuilds the index from the end-user directory. The directory is
// the durable representation; the tree itself lives in memory and is
// reconstructed at every boot.
func Load(ctx context.Context, source EndUserSource, log logging.Logger) (*Index, error) {
	index, err := NewIndex(ctx)
	if err != nil {
		return nil, err
	}

	addresses, err := source.EndUserAddresses(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("loading merkle membership index", "endUsers", len(addresses))

	for _, address := range addresses {
		key, err := KeyFromAddress(address)
		if err != nil {
			log.Warn("skipping malformed address", "address", address, "err", err)
			continue
		}
		if err = index.Insert(ctx, key); err != nil {
			if errors.Is(err, faults.ErrDuplicateKey) {
				log.Warn("key already in merkle tree", "address", address)
				continue
			}
			return nil, err
		}
	}

	log.Info("merkle membership index loaded", "root", index.Root())
	return index, nil
}
