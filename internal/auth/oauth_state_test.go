package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateCodecRoundTrip(t *testing.T) {
	codec, err := NewStateCodec("state-secret", time.Minute, nil)
	require.NoError(t, err)

	payload, err := codec.Begin("GitHub", "request-123")
	require.NoError(t, err)
	require.NotEmpty(t, payload.Nonce)
	require.GreaterOrEqual(t, len(payload.Verifier), 43)

	token, err := codec.Encode(payload)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := codec.Decode(token, "github")
	require.NoError(t, err)
	require.Equal(t, "github", decoded.Provider)
	require.Equal(t, payload.Nonce, decoded.Nonce)
	require.Equal(t, payload.Verifier, decoded.Verifier)
	require.Equal(t, "request-123", decoded.RequestID)
	require.True(t, decoded.VerifyNonce(payload.Nonce))
	require.False(t, decoded.VerifyNonce("other"))
	require.False(t, decoded.VerifyNonce(""))
}

func TestStateCodecExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewStateCodec("state-secret", time.Minute, func() time.Time {
		return current
	})
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Nonce: "n", Verifier: "v"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = codec.Decode(token, "google")
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestStateCodecRejectsTampering(t *testing.T) {
	codec, err := NewStateCodec("state-secret", time.Minute, nil)
	require.NoError(t, err)
	other, err := NewStateCodec("other-secret", time.Minute, nil)
	require.NoError(t, err)

	token, err := codec.Encode(StatePayload{Provider: "google", Nonce: "n"})
	require.NoError(t, err)

	_, err = codec.Decode(token, "github")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = other.Decode(token, "google")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = codec.Decode("", "google")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = codec.Encode(StatePayload{})
	require.Error(t, err)

	_, err = NewStateCodec(" ", time.Minute, nil)
	require.Error(t, err)
}
