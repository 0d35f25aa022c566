package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"trustwotd/pkg/pubkey"
)

func sha256Sum(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}

// Signer authenticates outbound envelopes and verifies inbound ones. The
// core never implements key custody itself (spec "out of scope"); it only
// consumes a configured keypair.
type Signer interface {
	Sign(payload []byte) (sigHex string, err error)
	PublicKeyHex() string
	Verify(pubkeyHex string, payload []byte, sigHex string) bool
}

// Secp256k1Signer implements Signer with BIP-340 Schnorr signatures over
// the secp256k1 curve, matching Nostr's own signature scheme.
type Secp256k1Signer struct {
	priv *btcec.PrivateKey
}

// NewSecp256k1Signer parses a 32-byte hex-encoded private key (spec §6
// "serverSecretKey").
func NewSecp256k1Signer(secretKeyHex string) (*Secp256k1Signer, error) {
	raw, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode server secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("server secret key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Secp256k1Signer{priv: priv}, nil
}

// Sign produces a hex-encoded BIP-340 signature over payload.
func (s *Secp256k1Signer) Sign(payload []byte) (string, error) {
	hash := sha256Sum(payload)
	sig, err := schnorr.Sign(s.priv, hash[:])
	if err != nil {
		return "", fmt.Errorf("schnorr sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// PublicKeyHex returns the signer's own canonical 64-hex x-only pubkey.
func (s *Secp256k1Signer) PublicKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(s.priv.PubKey()))
}

// Verify checks sigHex is a valid BIP-340 signature over payload by the
// holder of pubkeyHex. Never panics; any malformed input simply fails
// verification (spec §7: validator-adjacent inputs degrade, never throw).
func (s *Secp256k1Signer) Verify(pubkeyHex string, payload []byte, sigHex string) bool {
	canon, err := pubkey.Canonicalize(pubkeyHex)
	if err != nil {
		return false
	}
	pubBytes, err := hex.DecodeString(string(canon))
	if err != nil || len(pubBytes) != 32 {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	hash := sha256Sum(payload)
	return sig.Verify(hash[:], pub)
}
