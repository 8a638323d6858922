package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/charlesng35/keyward/pkg/crypto"
)

// DefaultStateTTL bounds how long a login redirect may take to come back.
const DefaultStateTTL = 10 * time.Minute

var (
	ErrStateExpired = errors.New("oauth state: expired")
	ErrStateInvalid = errors.New("oauth state: invalid")
)

// StateCodec seals the OAuth round-trip state so callbacks cannot be forged or replayed
// against another provider.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload is the data carried through the provider redirect.
type StatePayload struct {
	Provider  string    `json:"p"`
	Nonce     string    `json:"n"`
	Verifier  string    `json:"k"`
	IssuedAt  time.Time `json:"iat"`
	RequestID string    `json:"req,omitempty"`
}

// NewStateCodec derives the state encryption key from the server secret.
func NewStateCodec(secret string, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("oauth state: secret is required")
	}
	key, err := crypto.DeriveKey([]byte(secret), "oauth-state")
	if err != nil {
		return nil, fmt.Errorf("oauth state: derive key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// TTL returns the state lifetime.
func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

// Begin creates a fresh payload for provider with a random nonce and PKCE verifier.
func (c *StateCodec) Begin(provider, requestID string) (StatePayload, error) {
	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return StatePayload{}, fmt.Errorf("oauth state: generate nonce: %w", err)
	}
	return StatePayload{
		Provider:  provider,
		Nonce:     nonce,
		Verifier:  oauth2.GenerateVerifier(),
		RequestID: requestID,
	}, nil
}

// Encode encrypts the supplied payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("oauth state: provider is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}

	encoded, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: encrypt payload: %w", err)
	}
	return encoded, nil
}

// Decode decrypts the state string and enforces expiry and the expected provider.
func (c *StateCodec) Decode(token, provider string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrStateInvalid
	}

	raw, err := crypto.Decrypt(token, c.key)
	if err != nil {
		return payload, ErrStateInvalid
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrStateInvalid
	}
	if payload.Provider == "" || payload.IssuedAt.IsZero() {
		return payload, ErrStateInvalid
	}
	if !strings.EqualFold(payload.Provider, strings.TrimSpace(provider)) {
		return payload, ErrStateInvalid
	}
	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, ErrStateExpired
	}
	return payload, nil
}

// VerifyNonce compares the nonce bound to the browser with the one sealed in state.
func (p StatePayload) VerifyNonce(nonce string) bool {
	return p.Nonce != "" && crypto.Equal(p.Nonce, nonce)
}
