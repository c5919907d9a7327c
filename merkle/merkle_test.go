package merkle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/merkle"
)

const (
	addrA = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
	addrB = "0x2910543af39aba0cd09dbb2d50200b3e800a63d2"
)

func TestKeyFromAddress(t *testing.T) {
	key, err := merkle.KeyFromAddress(addrA)
	require.NoError(t, err)
	assert.Equal(t, "649562641434947955654834859981556155081347864431", key.String())

	_, err = merkle.KeyFromAddress("not-an-address")
	require.ErrorIs(t, err, faults.ErrValidation)
}

func TestInsertFindDelete(t *testing.T) {
	ctx := context.Background()
	index, err := merkle.NewIndex(ctx)
	require.NoError(t, err)

	emptyRoot := index.Root()

	keyA, err := merkle.KeyFromAddress(addrA)
	require.NoError(t, err)
	require.NoError(t, index.Insert(ctx, keyA))

	rootWithA := index.Root()
	assert.NotEqual(t, emptyRoot, rootWithA)

	proof, err := index.Find(ctx, keyA)
	require.NoError(t, err)
	assert.True(t, proof.Found)
	assert.Equal(t, keyA.String(), proof.Value)
	assert.Equal(t, rootWithA, proof.Root)

	// A key never inserted yields a non-membership proof.
	keyB, err := merkle.KeyFromAddress(addrB)
	require.NoError(t, err)
	proof, err = index.Find(ctx, keyB)
	require.NoError(t, err)
	assert.False(t, proof.Found)

	require.NoError(t, index.Delete(ctx, keyA))
	assert.Equal(t, emptyRoot, index.Root())
}

func TestFailedOperationsLeaveRootUntouched(t *testing.T) {
	ctx := context.Background()
	index, err := merkle.NewIndex(ctx)
	require.NoError(t, err)

	keyA, err := merkle.KeyFromAddress(addrA)
	require.NoError(t, err)
	require.NoError(t, index.Insert(ctx, keyA))
	root := index.Root()

	err = index.Insert(ctx, keyA)
	require.ErrorIs(t, err, faults.ErrDuplicateKey)
	assert.Equal(t, root, index.Root())

	keyB, err := merkle.KeyFromAddress(addrB)
	require.NoError(t, err)
	err = index.Delete(ctx, keyB)
	require.ErrorIs(t, err, faults.ErrNotFound)
	assert.Equal(t, root, index.Root())
}

func TestNonMembershipAgainstOccupiedSlot(t *testing.T) {
	ctx := context.Background()
	index, err := merkle.NewIndex(ctx)
	require.NoError(t, err)

	keyA, err := merkle.KeyFromAddress(addrA)
	require.NoError(t, err)

	// Against an empty tree the non-membership proof hits the zero leaf.
	proof, err := index.Find(ctx, keyA)
	require.NoError(t, err)
	assert.False(t, proof.Found)
	assert.True(t, proof.IsOld0)
}

type staticSource struct {
	addresses []string
}

func (s staticSource) EndUserAddresses(context.Context) ([]string, error) {
	return s.addresses, nil
}

func TestLoadRebuildsFromDirectory(t *testing.T) {
	ctx := context.Background()

	index, err := merkle.Load(ctx, staticSource{addresses: []string{addrA, addrB, addrA}}, logging.NewDiscard())
	require.NoError(t, err)

	keyA, err := merkle.KeyFromAddress(addrA)
	require.NoError(t, err)
	proof, err := index.Find(ctx, keyA)
	require.NoError(t, err)
	assert.True(t, proof.Found)

	// The duplicate was tolerated; the root equals a clean two-key build.
	clean, err := merkle.Load(ctx, staticSource{addresses: []string{addrB, addrA}}, logging.NewDiscard())
	require.NoError(t, err)
	assert.Equal(t, clean.Root(), index.Root())
}
