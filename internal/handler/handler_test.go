package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/retosmicro/authsvc/internal/auth"
	"github.com/retosmicro/authsvc/internal/models"
	"github.com/retosmicro/authsvc/internal/service"
	"github.com/retosmicro/authsvc/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	storage *storage.MemoryStorage
	service service.Service
}

func newTestEnv() *testEnv {
	st := storage.NewMemoryStorage()
	tokens := auth.NewTokenManager("test-secret", "1h")
	svc := service.NewService(st, tokens, bcrypt.MinCost)
	h := NewHandler(svc, tokens, discardLogger())

	return &testEnv{
		router:  h.InitRoutes(),
		storage: st,
		service: svc,
	}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	return w
}

func (e *testEnv) register(t *testing.T, username, email, password string) (map[string]interface{}, string) {
	t.Helper()

	w := e.do(http.MethodPost, "/auth/register", "", gin.H{
		"username":  username,
		"email":     email,
		"password":  password,
		"firstName": "Test",
		"lastName":  "User",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	token, _ := resp["access_token"].(string)
	require.NotEmpty(t, token)

	return resp, token
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv()

	// Register.
	resp, _ := env.register(t, "alice", "alice@x.com", "pw12345678")
	assert.Equal(t, "Bearer", resp["token_type"])
	assert.NotNil(t, resp["expires_in"])

	user, ok := resp["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "active", user["status"])

	// Login with the right password.
	w := env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "pw12345678"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var loginResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	token, _ := loginResp["access_token"].(string)
	require.NotEmpty(t, token)

	loggedIn := loginResp["user"].(map[string]interface{})
	assert.NotNil(t, loggedIn["lastLoginAt"], "login must surface last_login_at")

	// Login with the wrong password.
	w = env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "wrongpw"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Own profile.
	w = env.do(http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice", me["username"])

	// Admin listing is off limits for the user role.
	w = env.do(http.MethodGet, "/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegister_NeverLeaksHash(t *testing.T) {
	env := newTestEnv()

	resp, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(raw)), "password")

	w := env.do(http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, strings.ToLower(w.Body.String()), "password")
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv()

	// Missing fields.
	w := env.do(http.MethodPost, "/auth/register", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Short password.
	w = env.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "email": "alice@x.com", "password": "short",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Conflict on either unique field.
	env.register(t, "alice", "alice@x.com", "pw12345678")
	w = env.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice", "email": "new@x.com", "password": "pw12345678",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice2", "email": "alice@x.com", "password": "pw12345678",
		"firstName": "A", "lastName": "B",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogin_FailuresIndistinguishable(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "alice@x.com", "pw12345678")

	wrongPw := env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "wrongpw"})
	unknown := env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "ghost", "password": "pw12345678"})

	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv()
	_, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	// No header.
	w := env.do(http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong scheme.
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Basic "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	w = env.do(http.MethodGet, "/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Legacy JWT scheme keyword still works.
	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "JWT "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPatchProfile(t *testing.T) {
	env := newTestEnv()
	_, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	// No recognized fields.
	w := env.do(http.MethodPatch, "/users/me", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPatch, "/users/me", token, gin.H{"phone": "+34 600 111 222", "firstName": "Alicia"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "Alicia", me["firstName"])
	assert.Equal(t, "+34 600 111 222", me["phone"])
	assert.Equal(t, "User", me["lastName"])
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv()
	_, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	w := env.do(http.MethodPut, "/users/me/password", token, gin.H{
		"currentPassword": "wrongpw", "newPassword": "newpw12345",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPut, "/users/me/password", token, gin.H{
		"currentPassword": "pw12345678", "newPassword": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/users/me/password", token, gin.H{
		"currentPassword": "pw12345678", "newPassword": "newpw12345",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "newpw12345"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv()
	_, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	w := env.do(http.MethodDelete, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The token still verifies, but the row is gone.
	w = env.do(http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestForgotPassword_GenericResponse(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "alice@x.com", "pw12345678")

	known := env.do(http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "alice@x.com"})
	unknown := env.do(http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "ghost@x.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	// Malformed email is the one rejected shape.
	w := env.do(http.MethodPost, "/auth/forgot-password", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice", "alice@x.com", "pw12345678")

	resetToken, err := env.service.RequestPasswordReset(context.Background(), "alice@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	// Unknown token.
	w := env.do(http.MethodPost, "/auth/reset-password", "", gin.H{"token": "bogus", "newPassword": "newpw12345"})
	assert.Equal(t, http.StatusGone, w.Code)

	// Short password.
	w = env.do(http.MethodPost, "/auth/reset-password", "", gin.H{"token": resetToken, "newPassword": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Success.
	w = env.do(http.MethodPost, "/auth/reset-password", "", gin.H{"token": resetToken, "newPassword": "newpw12345"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The consumed token is dead.
	w = env.do(http.MethodPost, "/auth/reset-password", "", gin.H{"token": resetToken, "newPassword": "anotherpw1"})
	assert.Equal(t, http.StatusGone, w.Code)

	w = env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "newpw12345"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListUsers_Admin(t *testing.T) {
	env := newTestEnv()

	for i := 0; i < 30; i++ {
		env.register(t, fmt.Sprintf("user%02d", i), fmt.Sprintf("user%02d@x.com", i), "pw12345678")
	}

	adminResp, _ := env.register(t, "root", "root@x.com", "pw12345678")
	adminUser := adminResp["user"].(map[string]interface{})
	adminID := adminUser["id"].(string)
	env.storage.SetRole(mustUUID(t, adminID), models.RoleAdmin)

	// Re-login so the token carries the admin role.
	w := env.do(http.MethodPost, "/auth/login", "", gin.H{"username": "root", "password": "pw12345678"})
	require.Equal(t, http.StatusOK, w.Code)
	var loginResp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	adminToken := loginResp["access_token"].(string)

	w = env.do(http.MethodGet, "/users?limit=10&page=2", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Items []map[string]interface{} `json:"items"`
		Total int                      `json:"total"`
		Page  int                      `json:"page"`
		Limit int                      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 31, list.Total)
	assert.Equal(t, 2, list.Page)
	assert.Equal(t, 10, list.Limit)
	assert.Len(t, list.Items, 10)

	// Search narrows the total independently of pagination.
	w = env.do(http.MethodGet, "/users?search=user0&limit=3", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 10, list.Total)
	assert.Len(t, list.Items, 3)

	// Out-of-allowlist sort silently falls back; limit above the cap clamps.
	w = env.do(http.MethodGet, "/users?sortBy=evil&limit=1000", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 100, list.Limit)
	assert.Equal(t, 31, list.Total)
}

func TestSaludo(t *testing.T) {
	env := newTestEnv()
	_, token := env.register(t, "alice", "alice@x.com", "pw12345678")

	w := env.do(http.MethodGet, "/saludo", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/saludo?nombre=bob", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/saludo?nombre=alice", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mensaje":"Hola alice"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
