// Package pubkey canonicalizes the public-key identifiers accepted at the
// edges of the trust engine: raw 64-character lowercase hex, bech32 "npub",
// and bech32 "nprofile". Every internal structure stores only the canonical
// hex form produced here.
package pubkey

import (
	"encoding/hex"
	"fmt"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Key is a canonical 64-character lowercase hex public key.
type Key string

// HexLen is the number of hex characters in a canonical key.
const HexLen = 64

// Canonicalize decodes a hex, npub, or nprofile string into its canonical
// hex form. Invalid input returns an error; valid input always round-trips
// to the same Key.
func Canonicalize(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("pubkey: empty input")
	}

	switch {
	case strings.HasPrefix(s, "npub1"):
		prefix, data, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("pubkey: decode npub: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("pubkey: unexpected bech32 prefix %q", prefix)
		}
		hexKey, ok := data.(string)
		if !ok {
			return "", fmt.Errorf("pubkey: npub did not decode to a string")
		}
		return normalizeHex(hexKey)

	case strings.HasPrefix(s, "nprofile1"):
		prefix, data, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("pubkey: decode nprofile: %w", err)
		}
		if prefix != "nprofile" {
			return "", fmt.Errorf("pubkey: unexpected bech32 prefix %q", prefix)
		}
		pointer, ok := data.(nostr.ProfilePointer)
		if !ok {
			return "", fmt.Errorf("pubkey: nprofile did not decode to a pointer")
		}
		return normalizeHex(pointer.PublicKey)

	default:
		return normalizeHex(s)
	}
}

func normalizeHex(s string) (Key, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if len(lower) != HexLen {
		return "", fmt.Errorf("pubkey: expected %d hex characters, got %d", HexLen, len(lower))
	}
	raw, err := hex.DecodeString(lower)
	if err != nil {
		return "", fmt.Errorf("pubkey: invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("pubkey: expected 32 bytes, got %d", len(raw))
	}
	return Key(lower), nil
}

// String returns the canonical hex form.
func (k Key) String() string { return string(k) }

// Valid reports whether k is already a well-formed canonical key.
func (k Key) Valid() bool {
	_, err := normalizeHex(string(k))
	return err == nil
}
