package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/database/testutil"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
	"github.com/charlesng35/keyward/internal/store"
	"github.com/charlesng35/keyward/pkg/response"
)

type guardFixture struct {
	db     *gorm.DB
	store  *store.GormStore
	tokens *auth.JWTService
	guard  *Guard
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	st, err := store.NewGormStore(db)
	require.NoError(t, err)
	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "middleware-secret"})
	require.NoError(t, err)
	resolver, err := auth.NewResolver(tokens, st)
	require.NoError(t, err)

	return &guardFixture{db: db, store: st, tokens: tokens, guard: NewGuard(resolver, "")}
}

func (f *guardFixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	loaded, err := f.store.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	token, err := f.tokens.IssueFor(loaded)
	require.NoError(t, err)
	return token
}

func (f *guardFixture) key(t *testing.T, owner *models.User, roles ...string) string {
	t.Helper()
	value, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	key := &models.APIKey{Key: value, Name: "mw", IsActive: true, UserID: &owner.ID}
	for _, name := range roles {
		key.Roles = append(key.Roles, testutil.MustRole(t, f.db, name))
	}
	require.NoError(t, f.store.CreateAPIKey(context.Background(), key))
	return value
}

func (f *guardFixture) router(cred auth.CredentialRequirement, reqs ...permissions.Requirement) *gin.Engine {
	r := gin.New()
	r.GET("/secure", f.guard.Authorize(cred, reqs...), func(c *gin.Context) {
		body := gin.H{"user_id": c.GetString(CtxUserIDKey)}
		if principal, ok := PrincipalFromContext(c); ok {
			body["method"] = string(principal.Method)
		}
		if actor, ok := auditctx.FromContext(c.Request.Context()); ok {
			body["actor"] = actor.Email
			body["actor_method"] = actor.Method
			body["api_key_id"] = actor.APIKeyID
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func serve(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *response.ErrorInfo {
	t.Helper()
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	return payload.Error
}

func TestAuthorizeTokenRoute(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com", models.RoleUser)
	r := f.router(auth.CredentialToken)

	w := serve(r, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	require.Equal(t, "Could not validate credentials", decodeError(t, w).Message)

	w = serve(r, map[string]string{"Authorization": "Bearer " + f.token(t, user)})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, user.ID, body["user_id"])
	require.Equal(t, "token", body["method"])
	require.Equal(t, "member@example.com", body["actor"])

	w = serve(r, map[string]string{"X-API-Key": f.key(t, user)})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthorizeKeyRoute(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com")
	r := f.router(auth.CredentialKey)

	w := serve(r, map[string]string{"X-API-Key": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "ApiKey", w.Header().Get("WWW-Authenticate"))
	require.Equal(t, "Invalid or expired API key", decodeError(t, w).Message)

	w = serve(r, map[string]string{"X-API-Key": f.key(t, user)})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthorizeCustomKeyHeader(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com")
	f.guard = NewGuard(f.guard.resolver, "X-Service-Key")
	require.Equal(t, "X-Service-Key", f.guard.KeyHeader())
	r := f.router(auth.CredentialKey)

	key := f.key(t, user)
	require.Equal(t, http.StatusUnauthorized, serve(r, map[string]string{"X-API-Key": key}).Code)
	require.Equal(t, http.StatusOK, serve(r, map[string]string{"X-Service-Key": key}).Code)
}

func TestAuthorizeEitherRoute(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com")
	r := f.router(auth.CredentialEither)

	w := serve(r, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Header().Get("WWW-Authenticate"))
	require.Equal(t, "Valid JWT token or API key required", decodeError(t, w).Message)

	w = serve(r, map[string]string{"X-API-Key": "bad", "Authorization": "Bearer " + f.token(t, user)})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, f.store.SetUserActive(context.Background(), user.ID, false))
	w = serve(r, map[string]string{"Authorization": "Bearer " + f.token(t, user)})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "INACTIVE_PRINCIPAL", decodeError(t, w).Code)
}

func TestAuthorizeOptionalRoute(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com")
	r := f.router(auth.CredentialNone)

	w := serve(r, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, map[string]string{"Authorization": "Bearer " + f.token(t, user)})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), user.ID)

	w = serve(f.router(auth.CredentialNone, permissions.AnyOf(models.RoleAdmin)), nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthorizeRequirements(t *testing.T) {
	f := newGuardFixture(t)
	admin := testutil.MustCreateUser(t, f.db, "admin@example.com", models.RoleAdmin)
	viewer := testutil.MustCreateUser(t, f.db, "viewer@example.com", models.RoleViewer)

	adminOnly := f.router(auth.CredentialEither, permissions.AnyOf(models.RoleAdmin))
	writeUsers := f.router(auth.CredentialEither, permissions.AllOf("users:write"))

	require.Equal(t, http.StatusOK, serve(adminOnly, map[string]string{"Authorization": "Bearer " + f.token(t, admin)}).Code)
	require.Equal(t, http.StatusOK, serve(writeUsers, map[string]string{"Authorization": "Bearer " + f.token(t, admin)}).Code)

	w := serve(adminOnly, map[string]string{"Authorization": "Bearer " + f.token(t, viewer)})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "INSUFFICIENT_GRANT", decodeError(t, w).Code)

	w = serve(writeUsers, map[string]string{"Authorization": "Bearer " + f.token(t, viewer)})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, decodeError(t, w).Message, "users:write")
}

func TestAuthorizePrefersKeyGrants(t *testing.T) {
	f := newGuardFixture(t)
	admin := testutil.MustCreateUser(t, f.db, "admin@example.com", models.RoleAdmin)
	viewerKey := f.key(t, admin, models.RoleViewer)
	emptyKey := f.key(t, admin)
	writeUsers := f.router(auth.CredentialEither, permissions.AllOf("users:write"))

	w := serve(writeUsers, map[string]string{"X-API-Key": viewerKey, "Authorization": "Bearer " + f.token(t, admin)})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = serve(writeUsers, map[string]string{"X-API-Key": emptyKey, "Authorization": "Bearer " + f.token(t, admin)})
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(writeUsers, map[string]string{"X-API-Key": emptyKey})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthorizeTokenRouteIgnoresKeyGrants(t *testing.T) {
	f := newGuardFixture(t)
	member := testutil.MustCreateUser(t, f.db, "member@example.com", models.RoleUser)
	adminKey := f.key(t, member, models.RoleAdmin)
	adminOnly := f.router(auth.CredentialToken, permissions.AnyOf(models.RoleAdmin))

	w := serve(adminOnly, map[string]string{"X-API-Key": adminKey, "Authorization": "Bearer " + f.token(t, member)})
	require.Equal(t, http.StatusForbidden, w.Code)

	stored, err := f.store.GetAPIKeyByValue(context.Background(), adminKey)
	require.NoError(t, err)
	require.Nil(t, stored.LastUsedAt)
}

func TestAuthorizeRecordsKeyOnActor(t *testing.T) {
	f := newGuardFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com")
	value := f.key(t, user)
	stored, err := f.store.GetAPIKeyByValue(context.Background(), value)
	require.NoError(t, err)

	w := serve(f.router(auth.CredentialKey), map[string]string{"X-API-Key": value})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "api_key", body["actor_method"])
	require.Equal(t, stored.ID, body["api_key_id"])

	w = serve(f.router(auth.CredentialToken), map[string]string{"Authorization": "Bearer " + f.token(t, user)})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "token", body["actor_method"])
	require.Empty(t, body["api_key_id"])
}
