package record

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/aminokad/kaddht/dhterr"
	"github.com/aminokad/kaddht/host"
)

// IPNSValidityType mirrors the one recognized validity type, EOL.
type IPNSValidityType int32

const (
	ValidityEOL IPNSValidityType = 0
)

// ipnsData is the canonically-CBOR-encoded payload the v2 signature covers
// (spec.md §4.3: "the entry's canonical CBOR data field").
type ipnsData struct {
	Value        []byte           `cbor:"Value"`
	Validity     []byte           `cbor:"Validity"`
	ValidityType IPNSValidityType `cbor:"ValidityType"`
	Sequence     uint64           `cbor:"Sequence"`
	TTL          uint64           `cbor:"TTL"`
}

var canonicalCBOR, _ = cbor.CanonicalEncOptions().EncMode()

// IPNSEntry is the decoded form of a /ipns/ namespace value.
type IPNSEntry struct {
	Value        []byte
	Validity     string // RFC3339 timestamp, the EOL
	ValidityType IPNSValidityType
	Sequence     uint64
	TTL          uint64
	SignatureV1  []byte
	SignatureV2  []byte
	PubKey       []byte // optional embedded public key
}

func (e *IPNSEntry) data() ipnsData {
	return ipnsData{
		Value:        e.Value,
		Validity:     []byte(e.Validity),
		ValidityType: e.ValidityType,
		Sequence:     e.Sequence,
		TTL:          e.TTL,
	}
}

// CanonicalData returns the canonical CBOR bytes the v2 signature covers.
func (e *IPNSEntry) CanonicalData() ([]byte, error) {
	return canonicalCBOR.Marshal(e.data())
}

// Marshal encodes the entry for storage/wire transfer.
func (e *IPNSEntry) Marshal() ([]byte, error) {
	type wire struct {
		Value        []byte
		Validity     []byte
		ValidityType IPNSValidityType
		Sequence     uint64
		TTL          uint64
		SignatureV1  []byte
		SignatureV2  []byte
		PubKey       []byte
	}
	return cbor.Marshal(wire{
		Value:        e.Value,
		Validity:     []byte(e.Validity),
		ValidityType: e.ValidityType,
		Sequence:     e.Sequence,
		TTL:          e.TTL,
		SignatureV1:  e.SignatureV1,
		SignatureV2:  e.SignatureV2,
		PubKey:       e.PubKey,
	})
}

// UnmarshalIPNSEntry decodes bytes produced by Marshal.
func UnmarshalIPNSEntry(b []byte) (*IPNSEntry, error) {
	var wire struct {
		Value        []byte
		Validity     []byte
		ValidityType IPNSValidityType
		Sequence     uint64
		TTL          uint64
		SignatureV1  []byte
		SignatureV2  []byte
		PubKey       []byte
	}
	if err := cbor.Unmarshal(b, &wire); err != nil {
		return nil, err
	}
	return &IPNSEntry{
		Value:        wire.Value,
		Validity:     string(wire.Validity),
		ValidityType: wire.ValidityType,
		Sequence:     wire.Sequence,
		TTL:          wire.TTL,
		SignatureV1:  wire.SignatureV1,
		SignatureV2:  wire.SignatureV2,
		PubKey:       wire.PubKey,
	}, nil
}

// v1Payload builds the payload the legacy v1 signature covers: value ||
// validity || validity_type_int_as_string (spec.md §4.3).
func (e *IPNSEntry) v1Payload() []byte {
	buf := append([]byte(nil), e.Value...)
	buf = append(buf, []byte(e.Validity)...)
	buf = append(buf, []byte(fmt.Sprintf("%d", int32(e.ValidityType)))...)
	return buf
}

func (e *IPNSEntry) v2Payload() ([]byte, error) {
	data, err := e.CanonicalData()
	if err != nil {
		return nil, err
	}
	return append([]byte("ipns-signature:"), data...), nil
}

// IPNSValidator implements the /ipns/<peer_id> namespace (spec.md §4.3).
type IPNSValidator struct {
	KeyBook host.KeyBook
	Now     func() time.Time
}

func (v *IPNSValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// resolveKey finds the public key to verify against: the entry's own
// embedded key, the key book, or (if the peer id itself encodes a key,
// which this module treats as out of scope per spec.md §1) neither.
func (v *IPNSValidator) resolveKey(peer host.PeerID, entry *IPNSEntry) (host.PublicKey, error) {
	if len(entry.PubKey) > 0 {
		return ParseSecp256k1PublicKey(entry.PubKey)
	}
	if v.KeyBook != nil {
		if pk, ok := v.KeyBook.PubKey(peer); ok {
			return pk, nil
		}
	}
	return nil, dhterr.New("record", dhterr.CodeSignature, "no public key available for %q", peer)
}

func (v *IPNSValidator) Validate(key string, value []byte) error {
	entry, peer, err := v.decode(key, value)
	if err != nil {
		return err
	}
	if entry.ValidityType != ValidityEOL {
		return dhterr.New("record", dhterr.CodeValidation, "unsupported validity type %d", entry.ValidityType)
	}
	eol, err := time.Parse(time.RFC3339, entry.Validity)
	if err != nil {
		return dhterr.Wrap("record", dhterr.CodeValidation, err)
	}
	if !eol.After(v.now()) {
		return dhterr.New("record", dhterr.CodeValidation, "ipns entry for %q has expired", key)
	}

	pub, err := v.resolveKey(peer, entry)
	if err != nil {
		return err
	}

	if len(entry.SignatureV2) > 0 {
		payload, err := entry.v2Payload()
		if err != nil {
			return dhterr.Wrap("record", dhterr.CodeSignature, err)
		}
		ok, err := pub.Verify(payload, entry.SignatureV2)
		if err != nil {
			return dhterr.Wrap("record", dhterr.CodeSignature, err)
		}
		if !ok {
			return dhterr.New("record", dhterr.CodeSignature, "ipns v2 signature verification failed for %q", key)
		}
		return nil
	}
	if len(entry.SignatureV1) > 0 {
		ok, err := pub.Verify(entry.v1Payload(), entry.SignatureV1)
		if err != nil {
			return dhterr.Wrap("record", dhterr.CodeSignature, err)
		}
		if !ok {
			return dhterr.New("record", dhterr.CodeSignature, "ipns v1 signature verification failed for %q", key)
		}
		return nil
	}
	return dhterr.New("record", dhterr.CodeSignature, "ipns entry for %q carries no signature", key)
}

// Select picks by sequence, then EOL, then lexicographically largest value
// (spec.md §4.3).
func (v *IPNSValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, dhterr.New("record", dhterr.CodeValidation, "select called with no values")
	}
	best := -1
	var bestEntry *IPNSEntry
	var bestEOL time.Time
	for i, val := range values {
		entry, err := UnmarshalIPNSEntry(val)
		if err != nil {
			continue
		}
		eol, err := time.Parse(time.RFC3339, entry.Validity)
		if err != nil {
			continue
		}
		if best == -1 {
			best, bestEntry, bestEOL = i, entry, eol
			continue
		}
		switch {
		case entry.Sequence > bestEntry.Sequence:
			best, bestEntry, bestEOL = i, entry, eol
		case entry.Sequence < bestEntry.Sequence:
		case eol.After(bestEOL):
			best, bestEntry, bestEOL = i, entry, eol
		case eol.Before(bestEOL):
		case string(entry.Value) > string(bestEntry.Value):
			best, bestEntry, bestEOL = i, entry, eol
		}
	}
	if best == -1 {
		return 0, dhterr.New("record", dhterr.CodeValidation, "no valid ipns entries to select among")
	}
	return best, nil
}

func (v *IPNSValidator) decode(key string, value []byte) (*IPNSEntry, host.PeerID, error) {
	_, rest, ok := Namespace(key)
	if !ok {
		return nil, "", dhterr.New("record", dhterr.CodeInvalidRecordType, "malformed key %q", key)
	}
	entry, err := UnmarshalIPNSEntry(value)
	if err != nil {
		return nil, "", dhterr.Wrap("record", dhterr.CodeValidation, err)
	}
	return entry, host.PeerID(decodePeerIDPart(rest)), nil
}
