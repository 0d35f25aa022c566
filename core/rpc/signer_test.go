package rpc

import (
	"encoding/hex"
	"strings"
	"testing"
)

const testSecretKeyHex = "424242424242424242424242424242424242424242424242424242424242424a"

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewSecp256k1Signer(testSecretKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	payload := []byte(`{"tool":"calculate_trust_score"}`)

	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !signer.Verify(signer.PublicKeyHex(), payload, sig) {
		t.Fatal("expected signature to verify against the signer's own pubkey")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	signer, err := NewSecp256k1Signer(testSecretKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	sig, err := signer.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signer.Verify(signer.PublicKeyHex(), []byte("tampered"), sig) {
		t.Fatal("expected verification to fail for tampered payload")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	signer, err := NewSecp256k1Signer(testSecretKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if signer.Verify(signer.PublicKeyHex(), []byte("x"), "not-hex") {
		t.Fatal("expected malformed signature to fail verification, not error")
	}
}

func TestVerifyRejectsMalformedPubkey(t *testing.T) {
	signer, err := NewSecp256k1Signer(testSecretKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	sig, _ := signer.Sign([]byte("x"))
	if signer.Verify("not-a-pubkey", []byte("x"), sig) {
		t.Fatal("expected malformed pubkey to fail verification, not error")
	}
}

func TestNewSecp256k1SignerRejectsWrongLength(t *testing.T) {
	_, err := NewSecp256k1Signer(hex.EncodeToString([]byte("tooshort")))
	if err == nil {
		t.Fatal("expected error for short secret key")
	}
}

func TestPublicKeyHexIsCanonical64Hex(t *testing.T) {
	signer, err := NewSecp256k1Signer(testSecretKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	pk := signer.PublicKeyHex()
	if len(pk) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(pk))
	}
	if strings.ToLower(pk) != pk {
		t.Fatalf("expected lowercase hex, got %s", pk)
	}
}
