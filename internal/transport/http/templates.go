package httptransport

import (
	"github.com/gin-gonic/gin"

	"outreach/backend/internal/service"
)

// TemplateHandler 处理预置邮件模板的查询与预览。
type TemplateHandler struct {
	templates *service.TemplateService
}

// NewTemplateHandler 创建模板处理器。
func NewTemplateHandler(templates *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// List 返回全部模板。
// GET /v1/templates
func (h *TemplateHandler) List(c *gin.Context) {
	Success(c, gin.H{"templates": h.templates.List()})
}

// Get 返回单个模板的完整内容。
// GET /v1/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.templates.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, tpl)
}

// Preview 渲染模板正文做预览。
// GET /v1/templates/:id/preview?name=...&managerName=...
func (h *TemplateHandler) Preview(c *gin.Context) {
	tpl, err := h.templates.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	body := service.Render(tpl.Body, c.Query("name"), c.Query("managerName"))
	Success(c, gin.H{
		"subject": tpl.Subject,
		"body":    body,
	})
}
