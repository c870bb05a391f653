package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth 管理接口的令牌校验中间件。
//
// 配置里只存 bcrypt 哈希，请求方经 Authorization: Bearer 带明文
// 令牌。哈希未配置时管理路由整体关闭。
type AdminAuth struct {
	tokenHash string
}

// NewAdminAuth 创建管理令牌中间件。
func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{tokenHash: tokenHash}
}

// Enabled 是否配置了管理令牌。
func (a *AdminAuth) Enabled() bool {
	return a.tokenHash != ""
}

// RequireAdmin 要求携带有效的管理令牌。
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.tokenHash == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "管理接口未启用"})
			c.Abort()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少管理令牌"})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "管理令牌无效"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// bearerToken 从 Authorization 头提取 Bearer 令牌。
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
