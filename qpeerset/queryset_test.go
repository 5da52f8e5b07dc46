package qpeerset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aminokad/kaddht/host"
	"github.com/aminokad/kaddht/key"
)

func TestTryAddIsIdempotent(t *testing.T) {
	qp := New(key.Of([]byte("target")))
	assert.True(t, qp.TryAdd(host.PeerID("a")))
	assert.False(t, qp.TryAdd(host.PeerID("a")))
}

func TestWaitingToHeardPanics(t *testing.T) {
	qp := New(key.Of([]byte("target")))
	qp.TryAdd(host.PeerID("a"))
	qp.SetState(host.PeerID("a"), Waiting)
	assert.Panics(t, func() { qp.SetState(host.PeerID("a"), Heard) })
}

func TestClosestInStateOrdering(t *testing.T) {
	target := key.Of([]byte{0x00})
	qp := New(target)
	for _, p := range []string{"\xFF", "\x0F", "\x01", "\x00"} {
		qp.TryAdd(host.PeerID(p))
	}
	closest := qp.ClosestInState(Heard, 4)
	require.Len(t, closest, 4)
	assert.Equal(t, host.PeerID("\x00"), closest[0])
	assert.Equal(t, host.PeerID("\xFF"), closest[3])
}

func TestNumHeardOrWaiting(t *testing.T) {
	qp := New(key.Of([]byte("target")))
	qp.TryAdd(host.PeerID("a"))
	qp.TryAdd(host.PeerID("b"))
	qp.SetState(host.PeerID("a"), Waiting)
	qp.SetState(host.PeerID("a"), Queried)
	assert.Equal(t, 1, qp.NumHeardOrWaiting())
}
