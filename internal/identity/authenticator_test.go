package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameforge/pkg/protocol"
)

func TestSignThenVerifyRoundTrips(t *testing.T) {
	auth, err := New()
	require.NoError(t, err)

	id := protocol.NewPlayerId()
	token := auth.Sign(id)

	assert.True(t, auth.Verify(id, token))
}

func TestVerifyRejectsWrongPlayer(t *testing.T) {
	auth, err := New()
	require.NoError(t, err)

	token := auth.Sign(protocol.NewPlayerId())
	assert.False(t, auth.Verify(protocol.NewPlayerId(), token))
}

func TestVerifyRejectsTokenFromAnotherProcess(t *testing.T) {
	authA, err := New()
	require.NoError(t, err)
	authB, err := New()
	require.NoError(t, err)

	id := protocol.NewPlayerId()
	token := authA.Sign(id)

	assert.False(t, authB.Verify(id, token), "a fresh authenticator has a different secret key")
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	auth, err := New()
	require.NoError(t, err)

	id := protocol.NewPlayerId()
	token := auth.Sign(id)
	token[0] ^= 0xFF

	assert.False(t, auth.Verify(id, token))
}
