package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
)

func TestSignedPayloadDeterministic(t *testing.T) {
	tr := time.UnixMilli(1_700_000_000_000).UTC()
	a := SignedPayload("/v/x", []byte("hello"), tr, host.PeerID("peer-1"))
	b := SignedPayload("/v/x", []byte("hello"), tr, host.PeerID("peer-1"))
	assert.Equal(t, a, b)

	c := SignedPayload("/v/x", []byte("different"), tr, host.PeerID("peer-1"))
	assert.NotEqual(t, a, c)
}

func TestSecp256k1SignAndVerify(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("seed-material"))
	payload := []byte("a deterministic payload")
	sig, err := priv.Sign(payload)
	require.NoError(t, err)

	ok, err := priv.Public().Verify(payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = priv.Public().Verify([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

type staticKeyBook struct {
	pub  map[host.PeerID]host.PublicKey
	priv map[host.PeerID]host.PrivateKey
}

func (b *staticKeyBook) PubKey(p host.PeerID) (host.PublicKey, bool)   { v, ok := b.pub[p]; return v, ok }
func (b *staticKeyBook) PrivKey(p host.PeerID) (host.PrivateKey, bool) { v, ok := b.priv[p]; return v, ok }

func TestGenericValidatorRoundTrip(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("author-seed"))
	author := host.PeerID("author-1")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{author: priv.Public()}}

	now := time.Unix(1_700_000_000, 0).UTC()
	gv := &GenericValidator{KeyBook: kb, Now: func() time.Time { return now }}

	key := "/v/hello"
	value, err := Sign(priv, author, key, []byte("world"), now.Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, gv.Validate(key, value))

	idx, err := gv.Select(key, [][]byte{value})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestGenericValidatorRejectsStaleRecord(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("author-seed-2"))
	author := host.PeerID("author-2")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{author: priv.Public()}}

	now := time.Unix(1_700_000_000, 0).UTC()
	gv := &GenericValidator{KeyBook: kb, Now: func() time.Time { return now }, MaxRecordAge: time.Hour}

	key := "/v/stale"
	value, err := Sign(priv, author, key, []byte("world"), now.Add(-2*time.Hour))
	require.NoError(t, err)

	assert.Error(t, gv.Validate(key, value))
}

func TestGenericValidatorSelectPicksNewest(t *testing.T) {
	priv := GenerateSecp256k1Key([]byte("author-seed-3"))
	author := host.PeerID("author-3")
	kb := &staticKeyBook{pub: map[host.PeerID]host.PublicKey{author: priv.Public()}}
	now := time.Unix(1_700_000_000, 0).UTC()
	gv := &GenericValidator{KeyBook: kb, Now: func() time.Time { return now }}

	key := "/v/pick"
	older, err := Sign(priv, author, key, []byte("old"), now.Add(-10*time.Minute))
	require.NoError(t, err)
	newer, err := Sign(priv, author, key, []byte("new"), now.Add(-time.Minute))
	require.NoError(t, err)

	idx, err := gv.Select(key, [][]byte{older, newer})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}
