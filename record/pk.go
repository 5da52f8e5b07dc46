package record

import (
	"github.com/mr-tron/base58"

	"github.com/aminokad/kaddht/dhterr"
)

// PKValidator implements the /pk/<peer_id> namespace (spec.md §4.3): value
// is a marshaled public key, and the key's peer-id component must match the
// peer id derived from that key. Multihash construction is out of scope
// (spec.md §1 Non-goals), so "derived peer id" here is simply the public
// key's own serialized bytes — PeerID is an opaque comparison-only handle
// everywhere else in this module (host.PeerID, spec.md §4.1), so comparing
// raw key bytes preserves the contract without needing a multihash codec.
type PKValidator struct {
	// ParsePublicKey decodes a marshaled public key, as produced by
	// host.PublicKey.Bytes(). Defaults to parsing a secp256k1 key.
	ParsePublicKey func([]byte) ([]byte, error)
}

func defaultParsePublicKey(raw []byte) ([]byte, error) {
	pub, err := ParseSecp256k1PublicKey(raw)
	if err != nil {
		return nil, err
	}
	return pub.Bytes(), nil
}

func (v *PKValidator) parse() func([]byte) ([]byte, error) {
	if v.ParsePublicKey != nil {
		return v.ParsePublicKey
	}
	return defaultParsePublicKey
}

// decodePeerIDPart accepts either base58 text or raw bytes for the peer-id
// portion of a /pk/ key, per spec.md §9's "source tolerance" note.
func decodePeerIDPart(s string) []byte {
	if b, err := base58.Decode(s); err == nil && len(b) > 0 {
		return b
	}
	return []byte(s)
}

func (v *PKValidator) Validate(key string, value []byte) error {
	_, rest, ok := Namespace(key)
	if !ok {
		return dhterr.New("record", dhterr.CodeInvalidRecordType, "malformed key %q", key)
	}
	derived, err := v.parse()(value)
	if err != nil {
		return dhterr.Wrap("record", dhterr.CodeValidation, err)
	}
	want := decodePeerIDPart(rest)
	if string(derived) != string(want) {
		return dhterr.New("record", dhterr.CodeValidation, "public key does not match peer id in key %q", key)
	}
	return nil
}

// Select for /pk/ always prefers the most recently inserted value, since
// public-key records don't carry a sequence or time field: there is only
// ever one legitimate value for a given key, so the latest write wins.
func (v *PKValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, dhterr.New("record", dhterr.CodeValidation, "select called with no values")
	}
	return len(values) - 1, nil
}
