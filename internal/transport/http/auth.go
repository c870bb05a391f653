package httptransport

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"outreach/backend/internal/service"
)

// AuthHandler 处理 Google OAuth 接入流程。
type AuthHandler struct {
	accounts *service.AccountService
	log      *zap.Logger
}

// NewAuthHandler 创建授权处理器。
func NewAuthHandler(accounts *service.AccountService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

// Google 重定向到 Google 授权页。
// GET /v1/auth/google
func (h *AuthHandler) Google(c *gin.Context) {
	url, err := h.accounts.ConsentURL()
	if err != nil {
		h.log.Error("failed to build consent url", zap.Error(err))
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback 处理授权回调，接入新账号。
// GET /v1/auth/google/callback?state=...&code=...
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		BadRequest(c, "缺少授权码")
		return
	}

	email, err := h.accounts.HandleCallback(c.Request.Context(), c.Query("state"), code)
	if err != nil {
		h.log.Error("oauth callback failed", zap.Error(err))
		respondError(c, err)
		return
	}

	SuccessWithMsg(c, fmt.Sprintf("邮箱 %s 已成功接入系统", email), gin.H{"email": email})
}

// Me 返回已接入账号的信息。
// GET /v1/auth/me?owner=...
func (h *AuthHandler) Me(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		BadRequest(c, MsgMissingOwner)
		return
	}

	manager, err := h.accounts.Get(owner)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, manager)
}
