package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAdminRouter(auth *AdminAuth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin/poll", auth.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-admin-token"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("未配置哈希时接口关闭", func(t *testing.T) {
		auth := NewAdminAuth("")
		assert.False(t, auth.Enabled())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
		newAdminRouter(auth).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("缺少令牌返回401", func(t *testing.T) {
		auth := NewAdminAuth(string(hash))
		assert.True(t, auth.Enabled())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
		newAdminRouter(auth).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("错误令牌返回401", func(t *testing.T) {
		auth := NewAdminAuth(string(hash))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		newAdminRouter(auth).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("正确令牌放行", func(t *testing.T) {
		auth := NewAdminAuth(string(hash))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
		req.Header.Set("Authorization", "Bearer correct-admin-token")
		newAdminRouter(auth).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bearer前缀大小写不敏感", func(t *testing.T) {
		auth := NewAdminAuth(string(hash))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/poll", nil)
		req.Header.Set("Authorization", "bearer correct-admin-token")
		newAdminRouter(auth).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
