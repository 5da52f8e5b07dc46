package record

import (
	"crypto/sha256"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aminokad/kaddht/dhterr"
	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/pb"
)

// DefaultMaxRecordAge is the default validity window for /v/ records
// (spec.md §4.8).
const DefaultMaxRecordAge = 24 * time.Hour

// defaultSigCacheSize bounds the verification cache below, sized the same
// way kbucket's EWMA latency tracker bounds its own LRU.
const defaultSigCacheSize = 4096

// GenericValidator implements the /v/<path> namespace from spec.md §4.3:
// structural validation plus the signer/validator rules of §4.8. Selection
// always prefers the record with the largest time_received; Select only
// decodes candidates and does not verify signatures. Validate caches
// signature verification results by digest, since the same signed value is
// typically validated many times (on every store write and on every
// lookup that collects it).
type GenericValidator struct {
	KeyBook      host.KeyBook
	MaxRecordAge time.Duration
	Now          func() time.Time

	sigCacheInit sync.Once
	sigCache     *lru.Cache[[32]byte, bool]
}

func (v *GenericValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *GenericValidator) maxAge() time.Duration {
	if v.MaxRecordAge > 0 {
		return v.MaxRecordAge
	}
	return DefaultMaxRecordAge
}

// Validate decodes value as a marshaled pb.Record and checks its signature
// and age.
func (v *GenericValidator) Validate(key string, value []byte) error {
	rec, tr, err := v.decode(key, value)
	if err != nil {
		return err
	}
	if v.now().Sub(tr) > v.maxAge() {
		return dhterr.New("record", dhterr.CodeValidation, "record for %q exceeds max age", key)
	}
	return v.verifySignature(key, rec, tr)
}

// Select picks the index of the value with the largest time_received.
func (v *GenericValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, dhterr.New("record", dhterr.CodeValidation, "select called with no values")
	}
	best := -1
	var bestTime time.Time
	for i, val := range values {
		_, tr, err := v.decode(key, val)
		if err != nil {
			continue
		}
		if best == -1 || tr.After(bestTime) {
			best = i
			bestTime = tr
		}
	}
	if best == -1 {
		return 0, dhterr.New("record", dhterr.CodeValidation, "no valid records to select among")
	}
	return best, nil
}

func (v *GenericValidator) decode(key string, value []byte) (*pb.Record, time.Time, error) {
	rec := &pb.Record{}
	if err := rec.Unmarshal(value); err != nil {
		return nil, time.Time{}, dhterr.Wrap("record", dhterr.CodeValidation, err)
	}
	if string(rec.Key) != key {
		return nil, time.Time{}, dhterr.New("record", dhterr.CodeValidation, "record key %q does not match store key %q", rec.Key, key)
	}
	tr, err := time.Parse(time.RFC3339Nano, rec.TimeReceived)
	if err != nil {
		return nil, time.Time{}, dhterr.Wrap("record", dhterr.CodeValidation, err)
	}
	return rec, tr, nil
}

func (v *GenericValidator) cache() *lru.Cache[[32]byte, bool] {
	v.sigCacheInit.Do(func() {
		v.sigCache, _ = lru.New[[32]byte, bool](defaultSigCacheSize)
	})
	return v.sigCache
}

func (v *GenericValidator) verifySignature(key string, rec *pb.Record, tr time.Time) error {
	author := host.PeerID(rec.Author)
	payload := SignedPayload(key, rec.Value, tr, author)
	digest := sha256.Sum256(append(append([]byte{}, payload...), rec.Signature...))

	cache := v.cache()
	if ok, hit := cache.Get(digest); hit {
		if !ok {
			return dhterr.New("record", dhterr.CodeSignature, "signature verification failed for %q", key)
		}
		return nil
	}

	pub, ok := v.KeyBook.PubKey(author)
	if !ok {
		return dhterr.New("record", dhterr.CodeSignature, "no public key known for author %q", author)
	}
	valid, err := pub.Verify(payload, rec.Signature)
	if err != nil {
		return dhterr.Wrap("record", dhterr.CodeSignature, err)
	}
	cache.Add(digest, valid)
	if !valid {
		return dhterr.New("record", dhterr.CodeSignature, "signature verification failed for %q", key)
	}
	return nil
}

// Sign builds and marshals a pb.Record for key/value under priv, stamped
// with timeReceived, ready to hand to Store.Put.
func Sign(priv host.PrivateKey, author host.PeerID, key string, value []byte, timeReceived time.Time) ([]byte, error) {
	payload := SignedPayload(key, value, timeReceived, author)
	sig, err := priv.Sign(payload)
	if err != nil {
		return nil, dhterr.Wrap("record", dhterr.CodeSignature, err)
	}
	rec := &pb.Record{
		Key:          []byte(key),
		Value:        value,
		Author:       []byte(author),
		Signature:    sig,
		TimeReceived: timeReceived.UTC().Format(time.RFC3339Nano),
	}
	return rec.Marshal()
}
