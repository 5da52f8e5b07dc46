package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
)

func signedEntryV2(t *testing.T, priv *Secp256k1PrivateKey, value []byte, validity time.Time, seq uint64) *IPNSEntry {
	t.Helper()
	entry := &IPNSEntry{
		Value:        value,
		Validity:     validity.UTC().Format(time.RFC3339),
		ValidityType: ValidityEOL,
		Sequence:     seq,
	}
	payload, err := entry.v2Payload()
	require.NoError(t, err)
	sig, err := priv.Sign(payload)
	require.NoError(t, err)
	entry.SignatureV2 = sig
	return entry
}

func TestIPNSValidatorAcceptsValidV2Entry(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("ipns-seed"))
	peer := host.PeerID("ipns-peer")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{peer: priv.Public()}}

	now := time.Unix(1_700_000_000, 0).UTC()
	entry := signedEntryV2(t, priv, []byte("/ipfs/abc"), now.Add(time.Hour), 3)
	raw, err := entry.Marshal()
	require.NoError(t, err)

	v := &IPNSValidator{KeyBook: kb, Now: func() time.Time { return now }}
	require.NoError(t, v.Validate("/ipns/"+string(peer), raw))
}

func TestIPNSValidatorRejectsExpiredEntry(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("ipns-seed-2"))
	peer := host.PeerID("ipns-peer-2")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{peer: priv.Public()}}

	now := time.Unix(1_700_000_000, 0).UTC()
	entry := signedEntryV2(t, priv, []byte("/ipfs/abc"), now.Add(-time.Hour), 1)
	raw, err := entry.Marshal()
	require.NoError(t, err)

	v := &IPNSValidator{KeyBook: kb, Now: func() time.Time { return now }}
	assert.Error(t, v.Validate("/ipns/"+string(peer), raw))
}

func TestIPNSValidatorRejectsBadSignature(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("ipns-seed-3"))
	other := GenerateSecp256k1Key([]byte("ipns-seed-4"))
	peer := host.PeerID("ipns-peer-3")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{peer: other.Public()}}

	now := time.Unix(1_700_000_000, 0).UTC()
	entry := signedEntryV2(t, priv, []byte("/ipfs/abc"), now.Add(time.Hour), 1)
	raw, err := entry.Marshal()
	require.NoError(t, err)

	v := &IPNSValidator{KeyBook: kb, Now: func() time.Time { return now }}
	assert.Error(t, v.Validate("/ipns/"+string(peer), raw))
}

func TestIPNSValidatorSelectHigherSequenceWins(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("ipns-seed-5"))
	now := time.Unix(1_700_000_000, 0).UTC()

	older := signedEntryV2(t, priv, []byte("a"), now.Add(time.Hour), 1)
	newer := signedEntryV2(t, priv, []byte("b"), now.Add(time.Hour), 2)
	olderRaw, err := older.Marshal()
	require.NoError(t, err)
	newerRaw, err := newer.Marshal()
	require.NoError(t, err)

	v := &IPNSValidator{Now: func() time.Time { return now }}
	idx, err := v.Select("/ipns/x", [][]byte{olderRaw, newerRaw})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestIPNSValidatorSelectTieBreaksOnEOLThenValue(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("ipns-seed-6"))
	now := time.Unix(1_700_000_000, 0).UTC()

	a := signedEntryV2(t, priv, []byte("aaa"), now.Add(time.Hour), 5)
	b := signedEntryV2(t, priv, []byte("zzz"), now.Add(time.Hour), 5)
	aRaw, err := a.Marshal()
	require.NoError(t, err)
	bRaw, err := b.Marshal()
	require.NoError(t, err)

	v := &IPNSValidator{Now: func() time.Time { return now }}
	idx, err := v.Select("/ipns/x", [][]byte{aRaw, bRaw})
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "equal sequence and EOL: lexicographically larger value wins")
}
