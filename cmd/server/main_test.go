package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/keyward/internal/app"
	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/database"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/pkg/logger"
)

func testEnv(t *testing.T) string {
	t.Helper()
	restore := logger.Set(nil)
	t.Cleanup(restore)

	dir := t.TempDir()
	t.Setenv("KEYWARD_DATABASE_DRIVER", "sqlite")
	t.Setenv("KEYWARD_DATABASE_PATH", filepath.Join(dir, "keyward.sqlite"))
	t.Setenv("KEYWARD_AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("KEYWARD_LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateUserPrintsUsableToken(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, "--config", dir, "create-user", "--email", "Root@Example.com", "--role", "admin", "--superuser")
	require.NoError(t, err)
	require.Contains(t, out, "email: root@example.com")

	var token string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "token: ") {
			token = strings.TrimPrefix(line, "token: ")
		}
	}
	require.NotEmpty(t, token)

	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "cli-secret"})
	require.NoError(t, err)
	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "root@example.com", claims.Email)
	require.Equal(t, []string{"admin"}, claims.Roles)
	require.Contains(t, claims.Permissions, "users:delete")

	db, err := database.Open(database.Config{Driver: "sqlite", Path: filepath.Join(dir, "keyward.sqlite")})
	require.NoError(t, err)
	defer database.Close(db)
	var entry models.AuditLog
	require.NoError(t, db.Where("action = ?", "user.create").Take(&entry).Error)
	require.Equal(t, auditctx.MethodCLI, entry.Method)
	require.Nil(t, entry.APIKeyID)
	require.Equal(t, "keyward/"+version, entry.UserAgent)

	_, err = execute(t, "--config", dir, "create-user", "--email", "root@example.com")
	require.Error(t, err)
}

func TestCreateUserRequiresEmail(t *testing.T) {
	dir := testEnv(t)
	_, err := execute(t, "--config", dir, "create-user")
	require.Error(t, err)
}

func TestSeedCommand(t *testing.T) {
	dir := testEnv(t)
	out, err := execute(t, "--config", dir, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "seeded")

	out, err = execute(t, "--config", dir, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "seeded")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	dir := testEnv(t)
	cfg, log, err := prepare(dir)
	require.NoError(t, err)

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	defer stack.Shutdown(context.Background(), log)

	require.Empty(t, stack.Registry.Names())

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "connected")
}

func TestBootstrapRuntimeDatabaseRateLimit(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("KEYWARD_RATELIMIT_REQUESTS", "2")
	t.Setenv("KEYWARD_RATELIMIT_STORE", "database")
	cfg, log, err := prepare(dir)
	require.NoError(t, err)

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	defer stack.Shutdown(context.Background(), log)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/demo/public", nil))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	t.Setenv("KEYWARD_RATELIMIT_STORE", "carrier-pigeon")
	cfg, log, err = prepare(dir)
	require.NoError(t, err)
	_, err = bootstrapRuntime(context.Background(), cfg, log)
	require.ErrorContains(t, err, "carrier-pigeon")
}

func TestPrepareGeneratesSecretWhenUnset(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("KEYWARD_AUTH_JWT_SECRET", "")

	cfg, _, err := prepare(dir)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Auth.JWT.Secret)

	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
}
