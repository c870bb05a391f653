package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"outreach/backend/internal/service"
)

// CampaignHandler 处理外联群发任务。
type CampaignHandler struct {
	campaigns *service.CampaignService
	templates *service.TemplateService
}

// NewCampaignHandler 创建群发任务处理器。
func NewCampaignHandler(campaigns *service.CampaignService, templates *service.TemplateService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, templates: templates}
}

type startCampaignRequest struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Template string `json:"template"`
}

// Start 创建并启动一次群发。
// 指定 template 且未给主题/正文时，用模板内容补齐。
// POST /v1/managers/:owner/campaigns
func (h *CampaignHandler) Start(c *gin.Context) {
	var req startCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if req.Template != "" && (req.Subject == "" || req.Message == "") {
		tpl, err := h.templates.Get(req.Template)
		if err != nil {
			respondError(c, err)
			return
		}
		if req.Subject == "" {
			req.Subject = tpl.Subject
		}
		if req.Message == "" {
			req.Message = tpl.Body
		}
	}

	campaign, err := h.campaigns.Start(c.Request.Context(), c.Param("owner"), req.Subject, req.Message, req.Template)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, gin.H{
		"campaignId":      campaign.ID,
		"totalRecipients": campaign.TotalRecipients,
		"status":          campaign.Status,
	})
}

// Status 返回单个任务的状态与逐收件人结果。
// GET /v1/campaigns/:id
func (h *CampaignHandler) Status(c *gin.Context) {
	campaign, err := h.campaigns.Status(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, campaign)
}

// List 返回某账号最近的任务列表。
// GET /v1/managers/:owner/campaigns?limit=20
func (h *CampaignHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	campaigns, err := h.campaigns.List(c.Param("owner"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"campaigns": campaigns, "total": len(campaigns)})
}
