package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/pkg/crypto"
)

const identityKeyBytes = 32

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		Algorithm:      c.JWT.Algorithm,
		AccessTokenTTL: ttl,
	}
}

// ProvidersConfig converts the OAuth settings into the provider registry configuration.
func (c AuthConfig) ProvidersConfig() providers.Config {
	return providers.Config{
		Google: providers.GoogleConfig{
			ClientID:     strings.TrimSpace(c.OAuth.Google.ClientID),
			ClientSecret: strings.TrimSpace(c.OAuth.Google.ClientSecret),
			RedirectURL:  strings.TrimSpace(c.OAuth.Google.RedirectURI),
		},
		GitHub: providers.GitHubConfig{
			ClientID:     strings.TrimSpace(c.OAuth.GitHub.ClientID),
			ClientSecret: strings.TrimSpace(c.OAuth.GitHub.ClientSecret),
			RedirectURL:  strings.TrimSpace(c.OAuth.GitHub.RedirectURI),
		},
		Options: providers.Options{Timeout: c.OAuth.HTTPTimeout},
	}
}

// StateCodec builds the OAuth state codec keyed from the JWT secret.
func (c AuthConfig) StateCodec() (*auth.StateCodec, error) {
	return auth.NewStateCodec(c.JWT.Secret, c.OAuth.StateTTL, nil)
}

// IdentityKey returns the key sealing cached provider tokens. An explicit
// identity_token_key must decode to 32 bytes; otherwise one is derived from the JWT secret.
func (c AuthConfig) IdentityKey() ([]byte, error) {
	if strings.TrimSpace(c.IdentityTokenKey) != "" {
		key, err := DecodeKey(c.IdentityTokenKey)
		if err != nil {
			return nil, fmt.Errorf("identity token key: %w", err)
		}
		if len(key) != identityKeyBytes {
			return nil, fmt.Errorf("identity token key: must be %d bytes, got %d", identityKeyBytes, len(key))
		}
		return key, nil
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return nil, fmt.Errorf("identity token key: jwt secret is empty")
	}
	return crypto.DeriveKey([]byte(c.JWT.Secret), "identity-tokens")
}
