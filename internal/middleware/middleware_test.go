package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamecafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTokens(t *testing.T) *utils.TokenManager {
	t.Helper()
	tm, err := utils.NewTokenManager("middleware-test-secret-42")
	require.NoError(t, err)
	return tm
}

func serve(engine *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := newTokens(t)
	valid, err := tokens.GenerateAccessToken(7, "owner", "Owner", time.Minute)
	require.NoError(t, err)
	expired, err := tokens.GenerateAccessToken(7, "owner", "Owner", -time.Minute)
	require.NoError(t, err)
	foreign, err := newForeignToken(t)
	require.NoError(t, err)

	engine := gin.New()
	engine.GET("/", AuthMiddleware(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetInt64(ContextUserID),
			"role":    c.GetString(ContextUserRole),
		})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"extra parts", "Bearer a b", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"other secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(engine, tc.header)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":7,"role":"Owner"}`, w.Body.String())
			}
		})
	}
}

func newForeignToken(t *testing.T) (string, error) {
	t.Helper()
	other, err := utils.NewTokenManager("some-other-secret-value")
	require.NoError(t, err)
	return other.GenerateAccessToken(7, "owner", "Owner", time.Minute)
}

func TestRoleAuthMiddleware(t *testing.T) {
	tests := []struct {
		role     string
		status   int
		wantRole string
	}{
		{"Owner", http.StatusOK, "Owner"},
		{"ADMIN", http.StatusOK, "Admin"},
		{"Customer", http.StatusForbidden, ""},
		{"", http.StatusForbidden, ""},
	}
	for _, tc := range tests {
		t.Run("role "+tc.role, func(t *testing.T) {
			engine := gin.New()
			engine.GET("/", func(c *gin.Context) {
				if tc.role != "" {
					c.Set(ContextUserRole, tc.role)
				}
				c.Next()
			}, RoleAuthMiddleware("Owner", "Admin"), func(c *gin.Context) {
				c.String(http.StatusOK, c.GetString(ContextUserRole))
			})

			w := serve(engine, "")

			assert.Equal(t, tc.status, w.Code)
			if tc.wantRole != "" {
				assert.Equal(t, tc.wantRole, w.Body.String())
			}
		})
	}
}

func TestRateLimiter_Limit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	engine := gin.New()
	engine.GET("/", rl.Limit(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("192.0.2.1"))
	assert.Equal(t, http.StatusNoContent, call("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("192.0.2.1"))
	assert.Equal(t, http.StatusNoContent, call("192.0.2.2"), "limits are per client")
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 1)
	rl.now = func() time.Time { return now }

	rl.getLimiter("192.0.2.1")
	rl.getLimiter("192.0.2.2")
	require.Len(t, rl.visitors, 2)

	now = now.Add(visitorTTL + time.Second)
	rl.getLimiter("192.0.2.2")

	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "192.0.2.2")
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.GET("/", RequestID(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(utils.RequestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = serve(engine, "")
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
}
