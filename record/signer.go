package record

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/aminokad/kaddht/host"
)

// payloadPrefix opens every signed payload (spec.md §4.8).
const payloadPrefix = "libp2p-record:"

// SignedPayload builds the deterministic byte layout that signatures cover,
// per spec.md §4.8:
//
//	"libp2p-record:" || u32_le(len(key)) || key
//	                 || u32_le(len(value)) || value
//	                 || u64_le(time_received_ms)
//	                 || u32_le(len(author_id_bytes)) || author_id_bytes
func SignedPayload(key string, value []byte, timeReceived time.Time, author host.PeerID) []byte {
	keyBytes := []byte(key)
	authorBytes := []byte(author)

	buf := make([]byte, 0, len(payloadPrefix)+4+len(keyBytes)+4+len(value)+8+4+len(authorBytes))
	buf = append(buf, payloadPrefix...)
	buf = appendU32LE(buf, uint32(len(keyBytes)))
	buf = append(buf, keyBytes...)
	buf = appendU32LE(buf, uint32(len(value)))
	buf = append(buf, value...)
	buf = appendU64LE(buf, uint64(timeReceived.UnixMilli()))
	buf = appendU32LE(buf, uint32(len(authorBytes)))
	buf = append(buf, authorBytes...)
	return buf
}

func appendU32LE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64LE(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// Secp256k1PrivateKey is the default signing key type, grounded on
// btcec/v2 the same way go-ethereum's crypto package wraps it for
// transaction signatures.
type Secp256k1PrivateKey struct {
	key *btcec.PrivateKey
}

// Secp256k1PublicKey is the verification half of Secp256k1PrivateKey.
type Secp256k1PublicKey struct {
	key *btcec.PublicKey
}

// NewSecp256k1PrivateKey wraps raw key bytes.
func NewSecp256k1PrivateKey(raw []byte) *Secp256k1PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Secp256k1PrivateKey{key: priv}
}

// GenerateSecp256k1Key creates a fresh keypair from a caller-supplied seed
// of any length, hashed with SHA-256 into the private scalar (tests use a
// deterministic seed; production callers should pass crypto/rand output).
func GenerateSecp256k1Key(seed []byte) *Secp256k1PrivateKey {
	h := sha256.Sum256(seed)
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return &Secp256k1PrivateKey{key: priv}
}

func (k *Secp256k1PrivateKey) Public() host.PublicKey {
	return &Secp256k1PublicKey{key: k.key.PubKey()}
}

// Sign hashes payload with SHA-256 and produces a deterministic ECDSA
// signature (RFC 6979), the same digest-then-sign shape every secp256k1
// signer in the pack uses.
func (k *Secp256k1PrivateKey) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig := ecdsa.Sign(k.key, digest[:])
	return sig.Serialize(), nil
}

func (k *Secp256k1PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

func (k *Secp256k1PublicKey) Bytes() []byte {
	return k.key.SerializeCompressed()
}

func (k *Secp256k1PublicKey) Verify(payload, signature []byte) (bool, error) {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false, fmt.Errorf("record: parse signature: %w", err)
	}
	digest := sha256.Sum256(payload)
	return sig.Verify(digest[:], k.key), nil
}

// ParseSecp256k1PublicKey decodes a compressed or uncompressed public key.
func ParseSecp256k1PublicKey(raw []byte) (*Secp256k1PublicKey, error) {
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("record: parse public key: %w", err)
	}
	return &Secp256k1PublicKey{key: pub}, nil
}
