package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"display_name" validate:"required,max=5"`
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var body sampleRequest
		if !bindAndValidate(c, &body) {
			return
		}
		c.String(http.StatusOK, body.Email)
	})

	cases := []struct {
		body    string
		status  int
		message string
	}{
		{`{"email":"a@example.com","display_name":"abc"}`, http.StatusOK, "a@example.com"},
		{`{`, http.StatusBadRequest, "invalid JSON payload"},
		{`{"email":"nope","display_name":"abc"}`, http.StatusBadRequest, "email must be a valid email address"},
		{`{"email":"a@example.com","display_name":"abcdefgh"}`, http.StatusBadRequest, "display name must be at most 5 characters"},
		{`{}`, http.StatusBadRequest, "email is required"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
		require.Equal(t, tc.status, w.Code, tc.body)
		require.Contains(t, w.Body.String(), tc.message, tc.body)
	}
}

func TestBindAndValidateAPIKeyRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/keys", func(c *gin.Context) {
		var body createAPIKeyRequest
		if !bindAndValidate(c, &body) {
			return
		}
		c.String(http.StatusCreated, body.Name)
	})

	future := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	cases := []struct {
		body    string
		status  int
		message string
	}{
		{`{"name":"ci","expires_at":"` + future + `"}`, http.StatusCreated, "ci"},
		{`{"name":"ci","expires_at":"2001-01-01T00:00:00Z"}`, http.StatusBadRequest, "expires at must be in the future"},
		{`{"name":"ci","expires_at":"tomorrow"}`, http.StatusBadRequest, "timestamps must be RFC3339"},
		{`{"name":"ci","role_ids":"admin"}`, http.StatusBadRequest, "role ids must be a list"},
		{`{"name":"ci","permission_ids":["users:write"]}`, http.StatusBadRequest, "permission ids[0] must be a valid UUID"},
		{`{"name":42}`, http.StatusBadRequest, "name must be a string"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/keys", strings.NewReader(tc.body)))
		require.Equal(t, tc.status, w.Code, tc.body)
		require.Contains(t, w.Body.String(), tc.message, tc.body)
	}
}

func TestBindAndValidateRoleAndPermissionNames(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/permissions", func(c *gin.Context) {
		var body createPermissionRequest
		if bindAndValidate(c, &body) {
			c.Status(http.StatusCreated)
		}
	})
	r.POST("/roles", func(c *gin.Context) {
		var body createRoleRequest
		if bindAndValidate(c, &body) {
			c.Status(http.StatusCreated)
		}
	})

	serve := func(path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return w
	}

	require.Equal(t, http.StatusCreated, serve("/permissions", `{"name":"Reports:Export"}`).Code)
	w := serve("/permissions", `{"name":"reports"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "name must look like resource:action")

	require.Equal(t, http.StatusCreated, serve("/roles", `{"name":"support"}`).Code)
	w = serve("/roles", `{"name":"support staff"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "name may only contain letters")
}

func TestParseIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?skip=10&limit=abc", nil)

	require.Equal(t, 10, parseIntQuery(c, "skip", 0))
	require.Equal(t, 50, parseIntQuery(c, "limit", 50))
	require.Equal(t, 7, parseIntQuery(c, "missing", 7))
}
