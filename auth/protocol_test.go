package auth_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkpermit/zkpermit-go/auth"
	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/memstore"
)

func newTestProtocol(t *testing.T) (*auth.Protocol, *memstore.Challenges, *memstore.Keys) {
	t.Helper()
	challenges := memstore.NewChallenges()
	keys := memstore.NewKeys()
	protocol := auth.NewProtocol(challenges, keys, []byte("test-secret"), time.Hour, logging.NewDiscard())
	return protocol, challenges, keys
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	ctx := context.Background()
	protocol, _, keys := newTestProtocol(t)

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex())

	nonce, err := protocol.IssueChallenge(ctx, address)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	// Client side: hash the challenge the solidity way, sign the
	// personal-message digest of it.
	digest, err := auth.ChallengeHash(address, nonce)
	require.NoError(t, err)
	prefixed := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), digest)
	sig, err := crypto.Sign(prefixed, priv)
	require.NoError(t, err)

	session, err := protocol.Verify(ctx, address, auth.StructuredSignature{
		V:           sig[64] + 27,
		R:           hex.EncodeToString(sig[0:32]),
		S:           hex.EncodeToString(sig[32:64]),
		MessageHash: hex.EncodeToString(prefixed),
		Message:     hex.EncodeToString(digest),
	})
	require.NoError(t, err)
	assert.Equal(t, address, session.Address)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 1, keys.Len())

	bound, err := auth.AddressFromToken(session.AccessToken, []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, address, bound)

	// The nonce is single use: the same signature cannot log in twice.
	_, err = protocol.Verify(ctx, address, auth.StructuredSignature{
		V:           sig[64] + 27,
		R:           hex.EncodeToString(sig[0:32]),
		S:           hex.EncodeToString(sig[32:64]),
		MessageHash: hex.EncodeToString(prefixed),
		Message:     hex.EncodeToString(digest),
	})
	require.ErrorIs(t, err, faults.ErrNoChallenge)
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	ctx := context.Background()
	protocol, _, keys := newTestProtocol(t)

	victim, err := crypto.GenerateKey()
	require.NoError(t, err)
	attacker, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(crypto.PubkeyToAddress(victim.PublicKey).Hex())

	nonce, err := protocol.IssueChallenge(ctx, address)
	require.NoError(t, err)

	digest, err := auth.ChallengeHash(address, nonce)
	require.NoError(t, err)
	prefixed := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), digest)
	sig, err := crypto.Sign(prefixed, attacker)
	require.NoError(t, err)

	_, err = protocol.Verify(ctx, address, auth.StructuredSignature{
		V:           sig[64] + 27,
		R:           hex.EncodeToString(sig[0:32]),
		S:           hex.EncodeToString(sig[32:64]),
		MessageHash: hex.EncodeToString(prefixed),
		Message:     hex.EncodeToString(digest),
	})
	require.ErrorIs(t, err, faults.ErrSignatureMismatch)

	// No key is registered on a failed verification.
	assert.Equal(t, 0, keys.Len())

	// The challenge survives a failed attempt; the legitimate owner can
	// still complete the flow.
	sig, err = crypto.Sign(prefixed, victim)
	require.NoError(t, err)
	_, err = protocol.Verify(ctx, address, auth.StructuredSignature{
		V:           sig[64] + 27,
		R:           hex.EncodeToString(sig[0:32]),
		S:           hex.EncodeToString(sig[32:64]),
		MessageHash: hex.EncodeToString(prefixed),
		Message:     hex.EncodeToString(digest),
	})
	require.NoError(t, err)
}

func TestVerifyRejectsMismatchedMessage(t *testing.T) {
	ctx := context.Background()
	protocol, _, _ := newTestProtocol(t)

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(crypto.PubkeyToAddress(priv.PublicKey).Hex())

	_, err = protocol.IssueChallenge(ctx, address)
	require.NoError(t, err)

	fake := crypto.Keccak256([]byte("some other payload"))
	prefixed := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), fake)
	sig, err := crypto.Sign(prefixed, priv)
	require.NoError(t, err)

	_, err = protocol.Verify(ctx, address, auth.StructuredSignature{
		V:           sig[64] + 27,
		R:           hex.EncodeToString(sig[0:32]),
		S:           hex.EncodeToString(sig[32:64]),
		MessageHash: hex.EncodeToString(prefixed),
		Message:     hex.EncodeToString(fake),
	})
	require.ErrorIs(t, err, faults.ErrSignatureMismatch)
}

func TestVerifyHex(t *testing.T) {
	ctx := context.Background()
	protocol, _, keys := newTestProtocol(t)

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	// The claimed address may arrive checksummed; matching is
	// case-insensitive.
	address := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	nonce, err := protocol.IssueChallenge(ctx, address)
	require.NoError(t, err)

	sig, err := crypto.Sign(crypto.Keccak256([]byte(nonce)), priv)
	require.NoError(t, err)
	sig[64] += 27

	session, err := protocol.VerifyHex(ctx, address, "0x"+hex.EncodeToString(sig))
	require.NoError(t, err)
	assert.Equal(t, address, session.Address)
	assert.Equal(t, 1, keys.Len())
}

func TestVerifyWithoutChallenge(t *testing.T) {
	ctx := context.Background()
	protocol, _, _ := newTestProtocol(t)

	_, err := protocol.VerifyHex(ctx, "0x1111111111111111111111111111111111111111", strings.Repeat("ab", 65))
	require.ErrorIs(t, err, faults.ErrNoChallenge)
}
