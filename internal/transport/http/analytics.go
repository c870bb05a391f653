package httptransport

import (
	"github.com/gin-gonic/gin"

	"outreach/backend/internal/service"
)

// AnalyticsHandler 提供运营看板与台账查询。
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	tracker   *service.Tracker
}

// NewAnalyticsHandler 创建看板处理器。
func NewAnalyticsHandler(analytics *service.AnalyticsService, tracker *service.Tracker) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, tracker: tracker}
}

// Dashboard 返回某账号的看板快照。
// GET /v1/managers/:owner/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	stats, err := h.analytics.Dashboard(c.Request.Context(), c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, stats)
}

// Clients 返回客户表现摘要。
// GET /v1/managers/:owner/analytics/clients
func (h *AnalyticsHandler) Clients(c *gin.Context) {
	perf, err := h.analytics.ClientPerformance(c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"clients": perf, "total": len(perf)})
}

// Messages 返回台账中的消息记录（审计视图）。
// GET /v1/managers/:owner/messages
func (h *AnalyticsHandler) Messages(c *gin.Context) {
	messages, err := h.tracker.Messages(c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"messages": messages, "total": len(messages)})
}
