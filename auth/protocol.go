// Package auth implements the challenge/response login protocol: a client
// proves control of an address's private key by signing a server-issued
// nonce, and receives a time-bounded session token in exchange. No
// passwords exist anywhere in the system.
package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zkpermit/zkpermit-go/faults"
	"github.com/zkpermit/zkpermit-go/logging"
	"github.com/zkpermit/zkpermit-go/user"
)

// Session is the successful outcome of a verification.
type Session struct {
	Address     string `json:"address"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Protocol runs the per-address challenge state machine:
// no challenge -> challenge issued -> authenticated.
type Protocol struct {
	challenges ChallengeStore
	keys       KeyRegistry
	secret     []byte
	expiry     time.Duration
	log        logging.Logger

	// now is swappable for deterministic nonce tests.
	now func() time.Time
}

// NewProtocol wires the protocol against its stores.
func NewProtocol(challenges ChallengeStore, keys KeyRegistry, secret []byte, expiry time.Duration, log logging.Logger) *Protocol {
	return &Protocol{
		challenges: challenges,
		keys:       keys,
		secret:     secret,
		expiry:     expiry,
		log:        log,
		now:        time.Now,
	}
}

// IssueChallenge stores and returns a fresh nonce for the address,
// replacing any outstanding one.
func (p *Protocol) IssueChallenge(ctx context.Context, address string) (string, error) {
	nonce := strconv.FormatInt(p.now().UnixMilli(), 10)
	if err := p.challenges.Put(ctx, address, nonce); err != nil {
		return "", err
	}
	return nonce, nil
}

// Verify checks a structured (v,r,s,messageHash) signature over the
// pending challenge. On success the challenge is consumed, the recovered
// public key registered (write-once) and a session token issued.
func (p *Protocol) Verify(ctx context.Context, address string, sig StructuredSignature) (*Session, error) {
	nonce, err := p.challenges.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	expected, err := ChallengeHash(address, nonce)
	if err != nil {
		return nil, err
	}
	if !equalHex(sig.Message, expected) {
		return nil, fmt.Errorf("%w: hashes do not match", faults.ErrSignatureMismatch)
	}

	hash, err := hexBytes32(sig.MessageHash)
	if err != nil {
		return nil, err
	}
	key, err := Recover(hash, sig.V, sig.R, sig.S)
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, address, nonce, key)
}

// VerifyHex checks a single hex-encoded rpc signature over the keccak
// hash of the raw challenge string. Both verification modes share the
// same address-matching rule.
func (p *Protocol) VerifyHex(ctx context.Context, address, signature string) (*Session, error) {
	nonce, err := p.challenges.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	v, r, s, err := ParseRPCSignature(signature)
	if err != nil {
		return nil, err
	}
	key, err := Recover(crypto.Keccak256([]byte(nonce)), v, r, s)
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, address, nonce, key)
}

func (p *Protocol) establish(ctx context.Context, address, nonce string, key *RecoveredKey) (*Session, error) {
	if key.Address != user.NormalizeAddress(address) {
		return nil, fmt.Errorf("%w: recovered %s, claimed %s", faults.ErrSignatureMismatch, key.Address, address)
	}

	token, err := SignToken(address, p.secret, p.expiry)
	if err != nil {
		return nil, err
	}

	// Single use: the nonce must be gone before the token leaves. Consume
	// is conditioned on the nonce observed above, so a concurrent re-issue
	// is never clobbered.
	if err = p.challenges.Consume(ctx, address, nonce); err != nil {
		return nil, err
	}
	if err = p.keys.Put(ctx, address, key.PublicKey); err != nil {
		p.log.Error("public key registration failed", "address", address, "err", err)
	}

	return &Session{
		Address:     address,
		AccessToken: token,
		ExpiresIn:   int64(p.expiry.Seconds()),
	}, nil
}

func equalHex(got string, want []byte) bool {
	return strings.EqualFold(strings.TrimPrefix(got, "0x"), fmt.Sprintf("%x", want))
}
