package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamToken_RoundTrip(t *testing.T) {
	issuer := NewStreamTokenIssuer("unit-test-secret")

	token, err := issuer.Issue("streams/track-1/playlist.m3u8", time.Minute, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	key, allowExplicit, ok := issuer.Validate(token)
	assert.True(t, ok)
	assert.Equal(t, "streams/track-1/playlist.m3u8", key)
	assert.True(t, allowExplicit)
}

func TestStreamToken_ExplicitFlagPreserved(t *testing.T) {
	issuer := NewStreamTokenIssuer("unit-test-secret")

	token, err := issuer.Issue("k", time.Minute, false)
	require.NoError(t, err)

	_, allowExplicit, ok := issuer.Validate(token)
	assert.True(t, ok)
	assert.False(t, allowExplicit)
}

func TestStreamToken_ExpiredRejected(t *testing.T) {
	issuer := NewStreamTokenIssuer("unit-test-secret")

	token, err := issuer.Issue("k", -time.Minute, false)
	require.NoError(t, err)

	_, _, ok := issuer.Validate(token)
	assert.False(t, ok)
}

func TestStreamToken_WrongSecretRejected(t *testing.T) {
	issuer := NewStreamTokenIssuer("secret-a")
	other := NewStreamTokenIssuer("secret-b")

	token, err := issuer.Issue("k", time.Minute, false)
	require.NoError(t, err)

	_, _, ok := other.Validate(token)
	assert.False(t, ok)
}

func TestStreamToken_GarbageInputNeverPanics(t *testing.T) {
	issuer := NewStreamTokenIssuer("unit-test-secret")

	for _, input := range []string{"", "not-a-jwt", "a.b.c", "ey.ey.ey"} {
		_, _, ok := issuer.Validate(input)
		assert.False(t, ok, "input %q must be invalid", input)
	}
}

func TestStreamToken_TamperedPayloadRejected(t *testing.T) {
	issuer := NewStreamTokenIssuer("unit-test-secret")

	token, err := issuer.Issue("k", time.Minute, false)
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, _, ok := issuer.Validate(tampered)
	assert.False(t, ok)
}
