package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"outreach/backend/internal/health"
	"outreach/backend/internal/service"
)

// AdminHandler 提供运维接口：手动触发引擎、查看健康详情。
type AdminHandler struct {
	tracker *service.Tracker
	checker *health.HealthChecker
	log     *zap.Logger
}

// NewAdminHandler 创建运维处理器。
func NewAdminHandler(tracker *service.Tracker, checker *health.HealthChecker, log *zap.Logger) *AdminHandler {
	return &AdminHandler{tracker: tracker, checker: checker, log: log}
}

// TriggerPoll 立即执行一轮全量轮询。
// POST /v1/admin/poll
func (h *AdminHandler) TriggerPoll(c *gin.Context) {
	if err := h.tracker.PollOnce(c.Request.Context()); err != nil {
		h.log.Error("manual poll failed", zap.Error(err))
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "轮询已执行", nil)
}

// TriggerRetry 立即执行一轮重试扫描。
// POST /v1/admin/retry
func (h *AdminHandler) TriggerRetry(c *gin.Context) {
	if err := h.tracker.RetryOnce(c.Request.Context()); err != nil {
		h.log.Error("manual retry sweep failed", zap.Error(err))
		respondError(c, err)
		return
	}
	SuccessWithMsg(c, "重试扫描已执行", nil)
}

// Health 返回各依赖的健康详情。
// GET /v1/admin/health
func (h *AdminHandler) Health(c *gin.Context) {
	Success(c, h.checker.CheckHealth())
}
