package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
	"github.com/charlesng35/keyward/internal/store"
	apperrors "github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/logger"
	"github.com/charlesng35/keyward/pkg/metrics"
)

// DefaultAPIKeyHeader carries the opaque API key.
const DefaultAPIKeyHeader = "X-API-Key"

// Challenge schemes advertised through WWW-Authenticate.
const (
	ChallengeBearer = "Bearer"
	ChallengeAPIKey = "ApiKey"
)

// Method identifies which credential authenticated a principal.
type Method string

const (
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
)

// CredentialRequirement declares which credential a route accepts.
type CredentialRequirement int

const (
	// CredentialNone accepts anonymous callers; credentials are resolved optionally.
	CredentialNone CredentialRequirement = iota
	// CredentialToken requires a valid bearer token.
	CredentialToken
	// CredentialKey requires a valid API key.
	CredentialKey
	// CredentialEither requires an API key or a bearer token, trying the key first.
	CredentialEither
)

func (r CredentialRequirement) String() string {
	switch r {
	case CredentialNone:
		return "none"
	case CredentialToken:
		return "token"
	case CredentialKey:
		return "api_key"
	case CredentialEither:
		return "either"
	default:
		return "unknown"
	}
}

// Credentials are the raw artifacts presented by a request.
type Credentials struct {
	Authorization string
	APIKey        string
}

// BearerToken extracts the token from a "Bearer <token>" authorization value.
func (c Credentials) BearerToken() (string, bool) {
	return ParseBearer(c.Authorization)
}

// ParseBearer extracts a bearer token, matching the scheme case-insensitively.
func ParseBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// Principal is an authenticated user together with the credential that proved it.
type Principal struct {
	User   *models.User
	Method Method
	Claims *Claims
	APIKey *models.APIKey
}

// Grants returns the grants carried by the credential: the token snapshot for
// token principals, direct plus role grants for key principals.
func (p *Principal) Grants() permissions.Grants {
	if p == nil {
		return permissions.Grants{}
	}
	switch p.Method {
	case MethodAPIKey:
		return permissions.ForAPIKey(p.APIKey)
	case MethodToken:
		if p.Claims != nil {
			return p.Claims.Grants()
		}
	}
	return permissions.Grants{}
}

// PrincipalStore is the subset of the store the resolver reads.
type PrincipalStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetAPIKeyByValue(ctx context.Context, key string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Resolver authenticates credentials into principals.
type Resolver struct {
	tokens *JWTService
	store  PrincipalStore
	now    func() time.Time
	log    *zap.Logger
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the clock used for API key expiry and last-used stamps.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a resolver over the token service and principal store.
func NewResolver(tokens *JWTService, st PrincipalStore, opts ...ResolverOption) (*Resolver, error) {
	if tokens == nil {
		return nil, errors.New("resolver: token service is required")
	}
	if st == nil {
		return nil, errors.New("resolver: store is required")
	}
	r := &Resolver{
		tokens: tokens,
		store:  st,
		now:    time.Now,
		log:    logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var (
	errTokenCredential  = apperrors.ErrInvalidCredential.WithChallenge(ChallengeBearer)
	errKeyCredential    = apperrors.ErrInvalidCredential.WithMessage("Invalid or expired API key").WithChallenge(ChallengeAPIKey)
	errEitherCredential = apperrors.ErrUnauthorized.WithMessage("Valid JWT token or API key required")
)

// ResolveToken authenticates a bearer authorization header. Missing, malformed,
// expired and foreign tokens all fail with the same InvalidCredential error.
func (r *Resolver) ResolveToken(ctx context.Context, authorization string) (*Principal, error) {
	raw, ok := ParseBearer(authorization)
	if !ok {
		return nil, r.fail(MethodToken, errTokenCredential, nil)
	}

	claims, err := r.tokens.Validate(raw)
	if err != nil {
		return nil, r.fail(MethodToken, errTokenCredential, err)
	}

	user, err := r.store.GetUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.fail(MethodToken, errTokenCredential, err)
		}
		return nil, fmt.Errorf("resolver: load token subject: %w", err)
	}
	if !user.IsActive {
		return nil, r.inactive(MethodToken, user)
	}

	metrics.AuthAttempts.WithLabelValues(string(MethodToken), "success").Inc()
	return &Principal{User: user, Method: MethodToken, Claims: claims}, nil
}

// ResolveKey authenticates an opaque API key by exact match. A successful
// resolution stamps the key's last-used time.
func (r *Resolver) ResolveKey(ctx context.Context, value string) (*Principal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, r.fail(MethodAPIKey, errKeyCredential, nil)
	}

	key, err := r.store.GetAPIKeyByValue(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.fail(MethodAPIKey, errKeyCredential, err)
		}
		return nil, fmt.Errorf("resolver: load api key: %w", err)
	}

	now := r.now()
	if !key.IsValid(now) {
		return nil, r.fail(MethodAPIKey, errKeyCredential, fmt.Errorf("api key %s inactive or expired", key.ID))
	}
	if key.UserID == nil {
		return nil, r.fail(MethodAPIKey, errKeyCredential, fmt.Errorf("api key %s has no owner", key.ID))
	}

	user, err := r.store.GetUser(ctx, *key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, r.fail(MethodAPIKey, errKeyCredential, err)
		}
		return nil, fmt.Errorf("resolver: load api key owner: %w", err)
	}
	if !user.IsActive {
		return nil, r.inactive(MethodAPIKey, user)
	}

	if err := r.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		return nil, fmt.Errorf("resolver: touch api key: %w", err)
	}
	key.LastUsedAt = &now

	metrics.AuthAttempts.WithLabelValues(string(MethodAPIKey), "success").Inc()
	return &Principal{User: user, Method: MethodAPIKey, APIKey: key}, nil
}

// ResolveEither tries the API key first and the bearer token second.
func (r *Resolver) ResolveEither(ctx context.Context, creds Credentials) (*Principal, error) {
	return r.Begin(creds).Require(ctx, CredentialEither)
}

// OptionalToken is ResolveToken with every failure downgraded to an absent principal.
func (r *Resolver) OptionalToken(ctx context.Context, authorization string) *Principal {
	principal, _ := r.ResolveToken(ctx, authorization)
	return principal
}

// OptionalKey is ResolveKey with every failure downgraded to an absent principal.
func (r *Resolver) OptionalKey(ctx context.Context, value string) *Principal {
	principal, _ := r.ResolveKey(ctx, value)
	return principal
}

// OptionalEither is ResolveEither with every failure downgraded to an absent principal.
func (r *Resolver) OptionalEither(ctx context.Context, creds Credentials) *Principal {
	principal, _ := r.ResolveEither(ctx, creds)
	return principal
}

// Begin starts a per-request resolution. Each credential path runs at most once
// and only when asked for.
func (r *Resolver) Begin(creds Credentials) *Resolution {
	return &Resolution{resolver: r, creds: creds}
}

func (r *Resolver) fail(method Method, base *apperrors.AppError, cause error) error {
	metrics.AuthAttempts.WithLabelValues(string(method), "failure").Inc()
	if cause != nil {
		r.log.Debug("credential rejected", zap.String("method", string(method)), zap.Error(cause))
		return base.WithInternal(cause)
	}
	return base
}

func (r *Resolver) inactive(method Method, user *models.User) error {
	metrics.AuthAttempts.WithLabelValues(string(method), "inactive").Inc()
	r.log.Info("inactive principal rejected", zap.String("method", string(method)), zap.String("user_id", user.ID))
	return apperrors.ErrInactivePrincipal
}

type pathResult struct {
	done      bool
	principal *Principal
	err       error
}

// Resolution memoises the outcome of each credential path for one request.
type Resolution struct {
	resolver *Resolver
	creds    Credentials
	token    pathResult
	key      pathResult
}

// HasToken reports whether a bearer token was presented.
func (res *Resolution) HasToken() bool {
	_, ok := res.creds.BearerToken()
	return ok
}

// HasKey reports whether an API key was presented.
func (res *Resolution) HasKey() bool {
	return strings.TrimSpace(res.creds.APIKey) != ""
}

// Token resolves the token path.
func (res *Resolution) Token(ctx context.Context) (*Principal, error) {
	if !res.token.done {
		res.token.principal, res.token.err = res.resolver.ResolveToken(ctx, res.creds.Authorization)
		res.token.done = true
	}
	return res.token.principal, res.token.err
}

// Key resolves the API key path.
func (res *Resolution) Key(ctx context.Context) (*Principal, error) {
	if !res.key.done {
		res.key.principal, res.key.err = res.resolver.ResolveKey(ctx, res.creds.APIKey)
		res.key.done = true
	}
	return res.key.principal, res.key.err
}

// Require enforces a credential requirement. CredentialNone never fails: it returns
// whichever principal resolves, or nil.
func (res *Resolution) Require(ctx context.Context, req CredentialRequirement) (*Principal, error) {
	switch req {
	case CredentialToken:
		return res.Token(ctx)
	case CredentialKey:
		return res.Key(ctx)
	case CredentialEither:
		return res.either(ctx)
	case CredentialNone:
		principal, _ := res.either(ctx)
		return principal, nil
	default:
		return nil, fmt.Errorf("resolver: unknown credential requirement %d", req)
	}
}

func (res *Resolution) either(ctx context.Context) (*Principal, error) {
	var inactive bool

	if res.HasKey() {
		principal, err := res.Key(ctx)
		if err == nil {
			return principal, nil
		}
		if !isCredentialFailure(err) {
			return nil, err
		}
		inactive = errors.Is(err, apperrors.ErrInactivePrincipal)
	}

	if res.HasToken() {
		principal, err := res.Token(ctx)
		if err == nil {
			return principal, nil
		}
		if !isCredentialFailure(err) {
			return nil, err
		}
		inactive = inactive || errors.Is(err, apperrors.ErrInactivePrincipal)
	}

	if inactive {
		return nil, apperrors.ErrInactivePrincipal
	}
	return nil, errEitherCredential
}

// Grants returns the grants to evaluate route requirements against. Only the paths the
// requirement accepts are consulted. For Either and None, key-derived grants win when a
// key resolved and yields a non-empty set; the token snapshot fills in otherwise.
func (res *Resolution) Grants(ctx context.Context, req CredentialRequirement) permissions.Grants {
	useKey := req != CredentialToken
	useToken := req != CredentialKey

	var keyGrants, tokenGrants *permissions.Grants
	if useKey && res.HasKey() {
		if principal, err := res.Key(ctx); err == nil {
			g := principal.Grants()
			keyGrants = &g
		}
	}
	if useToken && res.HasToken() {
		if principal, err := res.Token(ctx); err == nil {
			g := principal.Grants()
			tokenGrants = &g
		}
	}
	return permissions.PreferKey(keyGrants, tokenGrants)
}

func isCredentialFailure(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidCredential) || errors.Is(err, apperrors.ErrInactivePrincipal)
}
