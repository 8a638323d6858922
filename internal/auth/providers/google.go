package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultGoogleIssuer is Google's OpenID Connect issuer.
const DefaultGoogleIssuer = "https://accounts.google.com"

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
}

// Enabled reports whether client credentials are present.
func (c GoogleConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type googleProvider struct {
	oauthConfig *oauth2.Config
	oidc        *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	opts        Options
}

// NewGoogle discovers the issuer and builds the Google provider.
func NewGoogle(ctx context.Context, cfg GoogleConfig, opts Options) (Provider, error) {
	if err := validateClient(Google, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL); err != nil {
		return nil, err
	}
	issuerURL := strings.TrimSpace(cfg.Issuer)
	if issuerURL == "" {
		issuerURL = DefaultGoogleIssuer
	}
	opts = opts.withDefaults()

	discoverCtx, cancel := opts.clientContext(ctx)
	defer cancel()

	issuer, err := oidc.NewProvider(discoverCtx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("google provider: discovery failed: %w", err)
	}

	return &googleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		oidc:     issuer,
		verifier: issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		opts:     opts,
	}, nil
}

func (p *googleProvider) Name() string {
	return Google
}

func (p *googleProvider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (p *googleProvider) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	ctx, cancel := p.opts.clientContext(ctx)
	defer cancel()

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google provider: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google provider: id token missing")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google provider: verify id token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}

	if stringValue(claims, "email") == "" {
		info, err := p.oidc.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, fmt.Errorf("google provider: userinfo: %w", err)
		}
		if err := info.Claims(&claims); err != nil {
			return nil, fmt.Errorf("google provider: decode userinfo: %w", err)
		}
	}

	profile := &Profile{
		Email:          stringValue(claims, "email"),
		FullName:       stringValue(claims, "name"),
		AvatarURL:      stringValue(claims, "picture"),
		ProviderUserID: idToken.Subject,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		Raw:            claims,
	}
	if profile.Email == "" {
		return nil, ErrEmailMissing
	}
	return profile, nil
}
