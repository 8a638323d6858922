package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Provider names.
const (
	Google = "google"
	GitHub = "github"
)

const defaultTimeout = 10 * time.Second

// ErrEmailMissing is returned when the upstream account exposes no usable email.
var ErrEmailMissing = errors.New("providers: upstream profile has no email")

// Profile is the normalised identity returned by an upstream provider.
type Profile struct {
	Email          string
	FullName       string
	AvatarURL      string
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	Raw            map[string]any
}

// Provider exchanges an authorization code for an upstream identity.
type Provider interface {
	Name() string
	// AuthCodeURL returns the consent redirect for state, bound to the PKCE verifier.
	AuthCodeURL(state, verifier string) string
	// Exchange trades the callback code for tokens and the normalised profile.
	Exchange(ctx context.Context, code, verifier string) (*Profile, error)
}

// Options tune outbound calls made by providers.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// clientContext binds the configured HTTP client to ctx for oauth2 and oidc calls.
func (o Options) clientContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func validateClient(name, clientID, clientSecret, redirectURL string) error {
	switch {
	case strings.TrimSpace(clientID) == "":
		return errors.New(name + " provider: client id is required")
	case strings.TrimSpace(clientSecret) == "":
		return errors.New(name + " provider: client secret is required")
	case strings.TrimSpace(redirectURL) == "":
		return errors.New(name + " provider: redirect url is required")
	}
	return nil
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
