package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"outreach/backend/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeStageUpdate      MessageType = "stage_update"
	MessageTypeCampaignProgress MessageType = "campaign_progress"
	MessageTypePing             MessageType = "ping"
	MessageTypePong             MessageType = "pong"
	MessageTypeSubscribe        MessageType = "subscribe"
	MessageTypeUnsubscribe      MessageType = "unsubscribe"
	MessageTypeSubscribed       MessageType = "subscribed"
	MessageTypeError            MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Owner     string          `json:"owner,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	owners map[string]bool // 订阅的账号邮箱
	mu     sync.RWMutex
	log    *zap.Logger
}

// Hub 管理所有WebSocket连接，按账号邮箱分发事件。
//
// 同时实现 service.EventPublisher 与 service.CampaignEvents，
// 前端订阅某个账号后实时收到其台账阶段变化和群发进度。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	owners         map[string]map[string]*Client // ownerEmail -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	Owner   string
	Message *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		owners:         make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for owner := range client.owners {
					if clients, exists := h.owners[owner]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.owners, owner)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToOwner(msg.Owner, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// StageUpdateData 台账阶段变化通知数据
type StageUpdateData struct {
	MessageID string `json:"messageId"`
	Stage     string `json:"stage"`
	Terminal  bool   `json:"terminal"`
}

// PublishStage 广播一条消息的阶段变化。
func (h *Hub) PublishStage(ownerEmail, messageID string, stage domain.Stage) {
	data, err := json.Marshal(StageUpdateData{
		MessageID: messageID,
		Stage:     string(stage),
		Terminal:  stage.Terminal(),
	})
	if err != nil {
		h.log.Error("failed to marshal stage update", zap.Error(err))
		return
	}

	h.enqueue(ownerEmail, &Message{
		Type:      MessageTypeStageUpdate,
		Owner:     ownerEmail,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// CampaignProgressData 群发进度通知数据
type CampaignProgressData struct {
	CampaignID      string `json:"campaignId"`
	Status          string `json:"status"`
	TotalRecipients int    `json:"totalRecipients"`
	SentCount       int    `json:"sentCount"`
	FailedCount     int    `json:"failedCount"`
}

// PublishCampaign 广播一次群发的进度快照。
func (h *Hub) PublishCampaign(ownerEmail string, campaign *domain.Campaign) {
	data, err := json.Marshal(CampaignProgressData{
		CampaignID:      campaign.ID,
		Status:          string(campaign.Status),
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		FailedCount:     campaign.FailedCount,
	})
	if err != nil {
		h.log.Error("failed to marshal campaign progress", zap.Error(err))
		return
	}

	h.enqueue(ownerEmail, &Message{
		Type:      MessageTypeCampaignProgress,
		Owner:     ownerEmail,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// enqueue 把消息交给广播循环，满时丢弃而不是阻塞发布方。
func (h *Hub) enqueue(owner string, msg *Message) {
	select {
	case h.broadcast <- &BroadcastMessage{Owner: domain.NormalizeAddress(owner), Message: msg}:
	default:
		h.log.Warn("broadcast queue full, dropping event", zap.String("owner", owner))
	}
}

// broadcastToOwner 向订阅特定账号的客户端广播消息
func (h *Hub) broadcastToOwner(owner string, msg *Message) {
	h.mu.RLock()
	clients := h.owners[owner]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.owners = make(map[string]map[string]*Client)
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, 256),
			hub:    hub,
			owners: make(map[string]bool),
			log:    hub.log,
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeOwner(msg.Owner)
	case MessageTypeUnsubscribe:
		c.unsubscribeOwner(msg.Owner)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeOwner 订阅某个账号的事件流
func (c *Client) subscribeOwner(owner string) {
	owner = domain.NormalizeAddress(owner)
	if owner == "" {
		c.sendError("owner email is required")
		return
	}

	c.mu.Lock()
	c.owners[owner] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.owners[owner] == nil {
		c.hub.owners[owner] = make(map[string]*Client)
	}
	c.hub.owners[owner][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to owner",
		zap.String("clientID", c.ID),
		zap.String("owner", owner))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		Owner:     owner,
		Timestamp: time.Now(),
	})
}

// unsubscribeOwner 取消订阅
func (c *Client) unsubscribeOwner(owner string) {
	owner = domain.NormalizeAddress(owner)

	c.mu.Lock()
	delete(c.owners, owner)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.owners[owner]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.owners, owner)
		}
	}
	c.hub.mu.Unlock()

	c.log.Info("unsubscribed from owner",
		zap.String("clientID", c.ID),
		zap.String("owner", owner))
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
