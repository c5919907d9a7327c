package auth

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zkpermit/zkpermit-go/faults"
)

// StructuredSignature is the raw (v,r,s) form produced by wallet signing,
// together with the hash the wallet actually signed and the message the
// client claims it hashed.
type StructuredSignature struct {
	V           uint8  `json:"v"`
	R           string `json:"r"`
	S           string `json:"s"`
	MessageHash string `json:"messageHash"`
	Message     string `json:"message"`
}

// ChallengeHash recomputes the payload the client is expected to sign:
// keccak256 over the packed (address, uint256 nonce) pair, matching
// soliditySha3(address, uint256).
func ChallengeHash(address, nonce string) ([]byte, error) {
	n, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return nil, fmt.Errorf("%w: challenge %q is not numeric", faults.ErrValidation, nonce)
	}
	addr := common.HexToAddress(address)
	return crypto.Keccak256(addr.Bytes(), math.U256Bytes(n)), nil
}

// RecoveredKey is the outcome of a signature recovery.
type RecoveredKey struct {
	// Address is the lower-cased account the key controls.
	Address string
	// PublicKey is the 64-byte uncompressed point, hex encoded.
	PublicKey string
}

// Recover extracts the signer from hash and a (v,r,s) triple. v may be
// given in either the raw {0,1} or the transaction {27,28} convention.
func Recover(hash []byte, v uint8, r, s string) (*RecoveredKey, error) {
	rb, err := hexBytes32(r)
	if err != nil {
		return nil, err
	}
	sb, err := hexBytes32(s)
	if err != nil {
		return nil, err
	}
	if v >= 27 {
		v -= 27
	}

	sig := make([]byte, 65)
	copy(sig[0:32], rb)
	copy(sig[32:64], sb)
	sig[64] = v

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrSignatureMismatch, err)
	}
	return &RecoveredKey{
		Address:   strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()),
		PublicKey: hex.EncodeToString(crypto.FromECDSAPub(pub)[1:]),
	}, nil
}

// ParseRPCSignature splits a single 65-byte hex signature string into its
// (v,r,s) components.
func ParseRPCSignature(signature string) (v uint8, r, s string, err error) {
	raw := strings.TrimPrefix(strings.TrimSpace(signature), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return 0, "", "", fmt.Errorf("%w: malformed signature", faults.ErrSignatureMismatch)
	}
	if len(b) != 65 {
		return 0, "", "", fmt.Errorf("%w: signature must be 65 bytes, got %d", faults.ErrSignatureMismatch, len(b))
	}
	return b[64], hex.EncodeToString(b[0:32]), hex.EncodeToString(b[32:64]), nil
}

// DeriveAddress turns an arbitrary identifier into a deterministic
// on-chain-style address: the identifier seeds a key pair, whose address
// can be recomputed by anyone holding the identifier.
func DeriveAddress(id string) (string, error) {
	seed := crypto.Keccak256([]byte(id))
	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		// A keccak digest at or above the curve order. Rehash once.
		priv, err = crypto.ToECDSA(crypto.Keccak256(seed))
		if err != nil {
			return "", err
		}
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

func hexBytes32(h string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: malformed signature component", faults.ErrSignatureMismatch)
	}
	return b, nil
}
