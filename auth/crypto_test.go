package auth_test

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/faults"
)

func TestParseRPCSignature(t *testing.T) {
	t.Run("well-formed", func(t *testing.T) {
		raw := strings.Repeat("11", 32) + strings.Repeat("22", 32) + "1b"
		v, r, s, err := auth.ParseRPCSignature("0x" + raw)
		require.NoError(t, err)
		assert.Equal(t, uint8(27), v)
		assert.Equal(t, strings.Repeat("11", 32), r)
		assert.Equal(t, strings.Repeat("22", 32), s)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, _, _, err := auth.ParseRPCSignature("0xdeadbeef")
		require.ErrorIs(t, err, faults.ErrSignatureMismatch)
	})

	t.Run("not hex", func(t *testing.T) {
		_, _, _, err := auth.ParseRPCSignature("zz" + strings.Repeat("11", 64))
		require.ErrorIs(t, err, faults.ErrSignatureMismatch)
	})
}

func TestChallengeHashRejectsNonNumericNonce(t *testing.T) {
	_, err := auth.ChallengeHash("0x1111111111111111111111111111111111111111", "abc")
	require.ErrorIs(t, err, faults.ErrValidation)
}

func TestDeriveAddress(t *testing.T) {
	first, err := auth.DeriveAddress("5f2aa4b6d3c0ff02")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(first))

	// Deterministic: the same identifier always recomputes the same
	// address, so anyone can verify it.
	again, err := auth.DeriveAddress("5f2aa4b6d3c0ff02")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := auth.DeriveAddress("5f2aa4b6d3c0ff03")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}
