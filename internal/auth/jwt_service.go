package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 30 * time.Minute

// SigningAlgorithm is the only accepted token algorithm. It is fixed server side and
// never taken from the token header.
const SigningAlgorithm = "HS256"

// TokenTimePrecision is the resolution of the iat and exp claims. Whole seconds would
// let a token expire up to a second before its lifetime has elapsed.
const TokenTimePrecision = time.Millisecond

func init() {
	jwt.TimePrecision = TokenTimePrecision
}

// Token validation failures. Every Validate error wraps exactly one of these.
var (
	ErrTokenInvalidSignature = errors.New("jwt: invalid signature")
	ErrTokenExpired          = errors.New("jwt: token expired")
	ErrTokenMalformed        = errors.New("jwt: malformed token")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	Algorithm      string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims is the decoded token payload. Roles and Permissions are a snapshot taken at
// issuance and are not refreshed until a new token is issued.
type Claims struct {
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// UserID returns the subject identifier.
func (c *Claims) UserID() string {
	return c.Subject
}

// Grants exposes the embedded snapshot as an evaluable grant set.
func (c *Claims) Grants() permissions.Grants {
	return permissions.Grants{
		Roles:       permissions.Normalize(c.Roles),
		Permissions: permissions.Normalize(c.Permissions),
	}
}

// TokenClaims holds the parameters used when issuing a new access token.
type TokenClaims struct {
	Subject     string
	Email       string
	Roles       []string
	Permissions []string
}

// JWTService issues and validates signed bearer tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg != "" && alg != SigningAlgorithm {
		return nil, fmt.Errorf("jwt: unsupported algorithm %q", cfg.Algorithm)
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// TTL returns the default token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue signs the supplied claims. A non-positive ttl falls back to the configured lifetime.
func (s *JWTService) Issue(input TokenClaims, ttl time.Duration) (string, error) {
	if input.Subject == "" {
		return "", errors.New("jwt: subject is required")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	claims := &Claims{
		Email:       input.Email,
		Roles:       permissions.Normalize(input.Roles),
		Permissions: permissions.Normalize(input.Permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// IssueFor issues a token carrying the user's current role and permission snapshot.
func (s *JWTService) IssueFor(user *models.User) (string, error) {
	if user == nil {
		return "", errors.New("jwt: user is required")
	}
	grants := permissions.ForPrincipal(user)
	return s.Issue(TokenClaims{
		Subject:     user.ID,
		Email:       user.Email,
		Roles:       grants.Roles,
		Permissions: grants.Permissions,
	}, 0)
}

// Validate parses a signed token, checking the signature with the fixed algorithm and
// the expiry against the service clock.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: token string is empty", ErrTokenMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrTokenMalformed)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrTokenMalformed)
	}

	return &claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrTokenInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
