package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/internal/database/testutil"
	"github.com/charlesng35/keyward/internal/models"
)

type stubProvider struct {
	name    string
	profile *providers.Profile
	err     error
	codes   []string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) AuthCodeURL(state, verifier string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state) + "&challenge=" + url.QueryEscape(verifier)
}

func (s *stubProvider) Exchange(_ context.Context, code, _ string) (*providers.Profile, error) {
	s.codes = append(s.codes, code)
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type routerFixture struct {
	t        *testing.T
	db       *gorm.DB
	tokens   *auth.JWTService
	provider *stubProvider
	handler  http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "router-secret", Issuer: "keyward"})
	require.NoError(t, err)
	states, err := auth.NewStateCodec("router-secret", time.Minute, nil)
	require.NoError(t, err)

	registry, err := providers.NewRegistry(context.Background(), providers.Config{})
	require.NoError(t, err)
	stub := &stubProvider{name: "github", profile: &providers.Profile{
		Email:          "octo@example.com",
		ProviderUserID: "1",
		AccessToken:    "gho_token",
	}}
	require.NoError(t, registry.Register(stub))

	engine, err := NewRouter(Dependencies{DB: db, Tokens: tokens, Registry: registry, States: states}, Options{
		Name:    "keyward",
		Version: "test",
	})
	require.NoError(t, err)

	return &routerFixture{t: t, db: db, tokens: tokens, provider: stub, handler: engine}
}

func (f *routerFixture) tokenFor(user *models.User) string {
	f.t.Helper()
	var loaded models.User
	require.NoError(f.t, f.db.Preload("Roles.Permissions").First(&loaded, "id = ?", user.ID).Error)
	token, err := f.tokens.IssueFor(&loaded)
	require.NoError(f.t, err)
	return token
}

func (f *routerFixture) do(method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func apiKey(key string) map[string]string {
	return map[string]string{auth.DefaultAPIKeyHeader: key}
}

func (f *routerFixture) createKey(token, body string) models.APIKey {
	f.t.Helper()
	w, env := f.do(http.MethodPost, "/api/v1/api-keys", body, bearer(token))
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	var key models.APIKey
	require.NoError(f.t, json.Unmarshal(env.Data, &key))
	require.NotEmpty(f.t, key.Key)
	return key
}

func TestRouterPublicRoutes(t *testing.T) {
	f := newRouterFixture(t)

	w, env := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = f.do(http.MethodGet, "/api/v1/demo/public", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = f.do(http.MethodGet, "/api/v1/auth/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"providers":["github"]}`, string(env.Data))

	w, env = f.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)

	w, _ = f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "keyward_api_latency_seconds")
}

func TestRouterCredentialPaths(t *testing.T) {
	f := newRouterFixture(t)
	user := testutil.MustCreateUser(t, f.db, "member@example.com", models.RoleUser)
	token := f.tokenFor(user)
	key := f.createKey(token, `{"name":"ci"}`)

	cases := []struct {
		path    string
		headers map[string]string
		status  int
	}{
		{"/api/v1/demo/jwt-only", bearer(token), http.StatusOK},
		{"/api/v1/demo/jwt-only", apiKey(key.Key), http.StatusUnauthorized},
		{"/api/v1/demo/apikey-only", apiKey(key.Key), http.StatusOK},
		{"/api/v1/demo/apikey-only", bearer(token), http.StatusUnauthorized},
		{"/api/v1/demo/either-auth", bearer(token), http.StatusOK},
		{"/api/v1/demo/either-auth", apiKey(key.Key), http.StatusOK},
		{"/api/v1/demo/either-auth", nil, http.StatusUnauthorized},
		{"/api/v1/demo/either-auth", bearer("garbage"), http.StatusUnauthorized},
		{"/api/v1/demo/either-auth", apiKey("sk_unknown"), http.StatusUnauthorized},
		{"/api/v1/demo/read-users-permission", bearer(token), http.StatusOK},
		{"/api/v1/demo/write-users-permission", bearer(token), http.StatusForbidden},
		{"/api/v1/demo/admin-only", bearer(token), http.StatusForbidden},
	}
	for _, tc := range cases {
		w, _ := f.do(http.MethodGet, tc.path, "", tc.headers)
		require.Equal(t, tc.status, w.Code, "%s %v: %s", tc.path, tc.headers, w.Body.String())
	}

	w, env := f.do(http.MethodGet, "/api/v1/demo/either-auth", "", apiKey(key.Key))
	require.Equal(t, http.StatusOK, w.Code)
	var echo map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &echo))
	require.Equal(t, "API_KEY", echo["auth_type"])
	require.Equal(t, user.ID, echo["user_id"])
}

func TestRouterKeyGrantsFollowTheKey(t *testing.T) {
	f := newRouterFixture(t)
	admin := testutil.MustCreateUser(t, f.db, "admin@example.com", models.RoleAdmin)
	token := f.tokenFor(admin)
	write := testutil.MustPermission(t, f.db, "users:write")

	key := f.createKey(token, `{"name":"writer","permission_ids":["`+write.ID+`"]}`)

	w, _ := f.do(http.MethodGet, "/api/v1/demo/write-users-permission", "", apiKey(key.Key))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(http.MethodGet, "/api/v1/demo/admin-only", "", apiKey(key.Key))
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = f.do(http.MethodGet, "/api/v1/demo/admin-only", "", bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterAPIKeyLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	owner := testutil.MustCreateUser(t, f.db, "owner@example.com", models.RoleUser)
	other := testutil.MustCreateUser(t, f.db, "other@example.com", models.RoleUser)
	ownerToken := f.tokenFor(owner)
	otherToken := f.tokenFor(other)

	key := f.createKey(ownerToken, `{"name":"deploy","description":"deploy bot"}`)

	w, env := f.do(http.MethodGet, "/api/v1/api-keys", "", bearer(ownerToken))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, string(env.Data), key.Key)
	require.Contains(t, string(env.Data), `"name":"deploy"`)

	w, _ = f.do(http.MethodGet, "/api/v1/api-keys", "", apiKey(key.Key))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/api-keys/" + key.ID},
		{http.MethodPatch, "/api/v1/api-keys/" + key.ID + "/deactivate"},
		{http.MethodDelete, "/api/v1/api-keys/" + key.ID},
	} {
		w, _ = f.do(route.method, route.path, "", bearer(otherToken))
		require.Equal(t, http.StatusNotFound, w.Code, route.path)
	}

	w, _ = f.do(http.MethodPatch, "/api/v1/api-keys/"+key.ID+"/deactivate", "", bearer(ownerToken))
	require.Equal(t, http.StatusOK, w.Code)
	w, env = f.do(http.MethodGet, "/api/v1/demo/apikey-only", "", apiKey(key.Key))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIAL", env.Error.Code)

	w, _ = f.do(http.MethodPatch, "/api/v1/api-keys/"+key.ID+"/activate", "", bearer(ownerToken))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(http.MethodGet, "/api/v1/demo/apikey-only", "", apiKey(key.Key))
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(http.MethodDelete, "/api/v1/api-keys/"+key.ID, "", bearer(ownerToken))
	require.Equal(t, http.StatusNoContent, w.Code)
	w, _ = f.do(http.MethodGet, "/api/v1/api-keys/"+key.ID, "", bearer(ownerToken))
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(http.MethodPost, "/api/v1/api-keys", `{"description":"nameless"}`, bearer(ownerToken))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterInactivePrincipal(t *testing.T) {
	f := newRouterFixture(t)
	user := testutil.MustCreateUser(t, f.db, "sleepy@example.com", models.RoleUser)
	token := f.tokenFor(user)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	w, env := f.do(http.MethodGet, "/api/v1/auth/me", "", bearer(token))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "INACTIVE_PRINCIPAL", env.Error.Code)
}

func TestRouterAdminRoutes(t *testing.T) {
	f := newRouterFixture(t)
	admin := testutil.MustCreateUser(t, f.db, "admin@example.com", models.RoleAdmin)
	member := testutil.MustCreateUser(t, f.db, "member@example.com", models.RoleUser)
	adminToken := f.tokenFor(admin)
	memberToken := f.tokenFor(member)
	viewer := testutil.MustRole(t, f.db, models.RoleViewer)

	w, _ := f.do(http.MethodGet, "/api/v1/roles", "", bearer(memberToken))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(http.MethodPost, "/api/v1/roles", `{"name":"support"}`, bearer(memberToken))
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = f.do(http.MethodPost, "/api/v1/roles", `{"name":"support"}`, bearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code)

	assign := "/api/v1/users/" + member.ID + "/roles/" + viewer.ID
	w, _ = f.do(http.MethodPost, assign, "", bearer(memberToken))
	require.Equal(t, http.StatusForbidden, w.Code)
	w, _ = f.do(http.MethodPost, assign, "", bearer(adminToken))
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(http.MethodGet, "/api/v1/users", "", bearer(memberToken))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(http.MethodDelete, "/api/v1/users/"+member.ID, "", bearer(memberToken))
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env := f.do(http.MethodGet, "/api/v1/audit?action=role.create", "", bearer(adminToken))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "role.create")
	w, _ = f.do(http.MethodGet, "/api/v1/audit", "", bearer(memberToken))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterOAuthRoundTrip(t *testing.T) {
	f := newRouterFixture(t)

	w, env := f.do(http.MethodGet, "/api/v1/auth/google/login", "", nil)
	require.Equal(t, http.StatusNotImplemented, w.Code)
	require.Equal(t, "PROVIDER_UNCONFIGURED", env.Error.Code)

	w, _ = f.do(http.MethodGet, "/api/v1/auth/github/login", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	nonce := cookies[0]
	require.Equal(t, "keyward_oauth_nonce", nonce.Name)
	require.True(t, nonce.HttpOnly)

	callback := "/api/v1/auth/github/callback?code=abc&state=" + url.QueryEscape(state)

	w, env = f.do(http.MethodGet, callback, "", map[string]string{"Cookie": nonce.Name + "=forged"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid state parameter", env.Error.Message)

	w, _ = f.do(http.MethodGet, "/api/v1/auth/github/callback?code=abc&state=tampered", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(http.MethodGet, callback, "", map[string]string{"Cookie": nonce.Name + "=" + nonce.Value})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		AccessToken string      `json:"access_token"`
		TokenType   string      `json:"token_type"`
		User        models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.Equal(t, "bearer", login.TokenType)
	require.Equal(t, "octo@example.com", login.User.Email)
	require.Equal(t, []string{"abc"}, f.provider.codes)

	w, env = f.do(http.MethodGet, "/api/v1/auth/me", "", bearer(login.AccessToken))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "octo@example.com")

	f.provider.err = errors.New("bad code")
	w, env = f.do(http.MethodGet, callback, "", map[string]string{"Cookie": nonce.Name + "=" + nonce.Value})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "UPSTREAM_IDENTITY_FAILURE", env.Error.Code)

	w, env = f.do(http.MethodGet, "/api/v1/auth/github/callback?error=access_denied", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, env.Error.Message, "access_denied")
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{}, Options{})
	require.Error(t, err)
}
