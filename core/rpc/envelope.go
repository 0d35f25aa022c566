// Package rpc implements the RPC surface (spec §4.9, §6): a thin adapter
// exposing the five scoring tools over a signed pub/sub transport.
//
// Grounded on the teacher's core/network.go Node/Broadcast/Subscribe shape
// (github.com/libp2p/go-libp2p + github.com/libp2p/go-libp2p-pubsub) for the
// transport, and on tos-network-gtos's accountsigner package (btcec/v2's
// schnorr subpackage, BIP-340 signatures over a Nostr-style pubkey) for
// envelope authentication.
package rpc

import "encoding/json"

// Request is the inbound RPC envelope (spec §6: "the transport ... supplies
// { clientPubkey, toolName, args } to the core").
type Request struct {
	ID           string          `json:"id"`
	ClientPubkey string          `json:"clientPubkey"`
	ToolName     string          `json:"toolName"`
	Args         json.RawMessage `json:"args"`
	Signature    string          `json:"signature"` // hex-encoded schnorr sig over ID+ToolName+Args
}

// signingPayload builds the exact byte sequence a Signer signs and verifies
// for a Request: ID, ToolName, and Args concatenated behind length-prefixed
// framing so a boundary between fields can never be shifted (e.g. id="a",
// toolName="bc" colliding with id="ab", toolName="c"). Covering all three
// fields — not just Args — means a replayed envelope's id or toolName
// cannot be swapped without invalidating the signature.
func signingPayload(id, toolName string, args json.RawMessage) []byte {
	buf := make([]byte, 0, len(id)+len(toolName)+len(args)+24)
	buf = appendLengthPrefixed(buf, []byte(id))
	buf = appendLengthPrefixed(buf, []byte(toolName))
	buf = appendLengthPrefixed(buf, args)
	return buf
}

func appendLengthPrefixed(buf, field []byte) []byte {
	n := len(field)
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, field...)
}

// Response is the outbound RPC envelope (spec §6: "{ content |
// structuredContent, isError? }").
type Response struct {
	ID                string          `json:"id"`
	Content           string          `json:"content,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
	ErrorKind         string          `json:"errorKind,omitempty"`
}

func errorResponse(id string, kind, message string) Response {
	return Response{ID: id, Content: message, IsError: true, ErrorKind: kind}
}

func okResponse(id string, structured any) Response {
	buf, err := json.Marshal(structured)
	if err != nil {
		return errorResponse(id, "InvalidInput", "failed to marshal tool result: "+err.Error())
	}
	return Response{ID: id, StructuredContent: buf}
}
