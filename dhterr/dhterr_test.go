package dhterr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New("rpc", CodeTimeout, "waiting for %s", "pong")
	assert.Equal(t, "[rpc] Timeout: waiting for pong", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial refused")
	err := Wrap("rpc", CodeNetwork, cause)
	assert.ErrorIs(t, err, Network)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(Wrap("rpc", CodeNetwork, errors.New("x"))))
	assert.True(t, IsRetryable(Wrap("rpc", CodeTimeout, errors.New("x"))))
	assert.False(t, IsRetryable(Wrap("rpc", CodeProtocol, errors.New("x"))))
}

func TestMaxRetriesExceededUnwraps(t *testing.T) {
	cause := Wrap("rpc", CodeTimeout, errors.New("no response"))
	err := &MaxRetriesExceeded{Attempts: 3, Cause: cause}
	assert.ErrorIs(t, err, MaxRetries)
	assert.ErrorIs(t, err, Timeout)
}
