package auth

import (
	"fmt"

	"github.com/charlesng35/keyward/pkg/crypto"
)

// APIKeyBytes is the number of random bytes behind every generated API key.
const APIKeyBytes = 48

// GenerateAPIKey returns a new opaque, URL-safe API key.
func GenerateAPIKey() (string, error) {
	key, err := crypto.GenerateToken(APIKeyBytes)
	if err != nil {
		return "", fmt.Errorf("api key: generate: %w", err)
	}
	return key, nil
}
