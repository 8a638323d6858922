package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultGitHubAPI is the GitHub REST API base URL.
const DefaultGitHubAPI = "https://api.github.com"

// GitHubConfig configures the GitHub provider. Endpoint overrides exist for GitHub
// Enterprise installs.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// Enabled reports whether client credentials are present.
func (c GitHubConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type githubProvider struct {
	oauthConfig *oauth2.Config
	apiBase     string
	opts        Options
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// NewGitHub builds the GitHub provider.
func NewGitHub(cfg GitHubConfig, opts Options) (Provider, error) {
	if err := validateClient(GitHub, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL); err != nil {
		return nil, err
	}

	endpoint := endpoints.GitHub
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if apiBase == "" {
		apiBase = DefaultGitHubAPI
	}

	return &githubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"user:email", "read:user"},
		},
		apiBase: apiBase,
		opts:    opts.withDefaults(),
	}, nil
}

func (p *githubProvider) Name() string {
	return GitHub
}

func (p *githubProvider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (p *githubProvider) Exchange(ctx context.Context, code, verifier string) (*Profile, error) {
	ctx, cancel := p.opts.clientContext(ctx)
	defer cancel()

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("github provider: exchange failed: %w", err)
	}
	client := p.oauthConfig.Client(ctx, token)

	var user githubUser
	raw := map[string]any{}
	if err := p.get(ctx, client, "/user", &raw); err != nil {
		return nil, err
	}
	encoded, _ := json.Marshal(raw)
	if err := json.Unmarshal(encoded, &user); err != nil {
		return nil, fmt.Errorf("github provider: decode user: %w", err)
	}

	email := strings.TrimSpace(user.Email)
	if email == "" {
		var emails []githubEmail
		if err := p.get(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, candidate := range emails {
			if candidate.Primary {
				email = candidate.Email
				break
			}
		}
	}
	if email == "" {
		return nil, ErrEmailMissing
	}

	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = user.Login
	}

	return &Profile{
		Email:          email,
		FullName:       name,
		AvatarURL:      user.AvatarURL,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		Raw:            raw,
	}, nil
}

func (p *githubProvider) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("github provider: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github provider: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github provider: GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github provider: decode %s: %w", path, err)
	}
	return nil
}
