package httptransport

import (
	"github.com/gin-gonic/gin"

	"outreach/backend/internal/service"
)

// ClientHandler 处理客户名单的增删改查。
type ClientHandler struct {
	clients *service.ClientService
}

// NewClientHandler 创建客户名单处理器。
func NewClientHandler(clients *service.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

type addClientRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// Add 向名单添加客户。
// POST /v1/managers/:owner/clients
func (h *ClientHandler) Add(c *gin.Context) {
	var req addClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	client, err := h.clients.Add(c.Param("owner"), req.Email, req.Name, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, client)
}

// List 返回名单中的全部客户。
// GET /v1/managers/:owner/clients
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.clients.List(c.Param("owner"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"clients": clients, "total": len(clients)})
}

// Get 返回名单中的单个客户。
// GET /v1/managers/:owner/clients/:email
func (h *ClientHandler) Get(c *gin.Context) {
	client, err := h.clients.Get(c.Param("owner"), c.Param("email"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, client)
}

type updateClientRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

// Update 更新客户信息。
// PATCH /v1/managers/:owner/clients/:email
func (h *ClientHandler) Update(c *gin.Context) {
	var req updateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	client, err := h.clients.Update(c.Param("owner"), c.Param("email"), req.Name, req.Status, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, client)
}

// Remove 从名单移除客户。
// DELETE /v1/managers/:owner/clients/:email
func (h *ClientHandler) Remove(c *gin.Context) {
	if err := h.clients.Remove(c.Param("owner"), c.Param("email")); err != nil {
		respondError(c, err)
		return
	}
	NoContent(c)
}
