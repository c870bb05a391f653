package storage

import (
	"errors"
	"time"

	"outreach/backend/internal/domain"
)

var (
	// ErrManagerNotFound 账号不存在
	ErrManagerNotFound = errors.New("manager not found")
	// ErrClientNotFound 客户不存在
	ErrClientNotFound = errors.New("client not found")
	// ErrClientExists 客户已在名单中
	ErrClientExists = errors.New("client already exists")
	// ErrMessageNotFound 台账中不存在该消息
	ErrMessageNotFound = errors.New("tracked message not found")
	// ErrMessageExists 台账中已存在同 ID 消息
	ErrMessageExists = errors.New("tracked message already exists")
	// ErrCampaignNotFound campaign 不存在
	ErrCampaignNotFound = errors.New("campaign not found")
)

// ManagerRepository 定义 Manager 账号的存取操作。
type ManagerRepository interface {
	// UpsertManager 按邮箱地址插入或更新账号（授权回调调用）。
	UpsertManager(manager *domain.Manager) error
	GetManager(email string) (*domain.Manager, error)
	ListManagers() ([]domain.Manager, error)
	// UpdateCredential 原地替换指定账号的凭证。
	UpdateCredential(email string, cred domain.Credential) error
}

// ClientRepository 定义客户名单的存取操作。
type ClientRepository interface {
	AddClient(client *domain.Client) error
	GetClient(ownerEmail, clientEmail string) (*domain.Client, error)
	ListClients(ownerEmail string) ([]domain.Client, error)
	UpdateClient(client *domain.Client) error
	RemoveClient(ownerEmail, clientEmail string) error
	// IncrementResponseCount 客户回信计数 +1，分类成功时调用。
	IncrementResponseCount(ownerEmail, clientEmail string) error
	// MarkClientEmailed 记录外联邮件的最近发送时间。
	MarkClientEmailed(ownerEmail, clientEmail string, at time.Time) error
}

// LedgerRepository 定义消息台账的存取操作。
//
// 台账按 (ownerEmail, messageID) 唯一，只增不删；每次写入
// 必须在引擎处理下一封消息之前落盘。
type LedgerRepository interface {
	IsKnownMessage(ownerEmail, messageID string) (bool, error)
	// RecordDiscovery 首次登记一封消息；重复登记返回 ErrMessageExists。
	RecordDiscovery(msg *domain.TrackedMessage) error
	// SetMessageStage 转移消息阶段并更新随附簿记；未知消息返回 ErrMessageNotFound。
	SetMessageStage(ownerEmail, messageID string, stage domain.Stage, upd domain.StageUpdate) error
	GetMessage(ownerEmail, messageID string) (*domain.TrackedMessage, error)
	ListMessages(ownerEmail string) ([]domain.TrackedMessage, error)
	// ListMessagesByStage 返回处于给定阶段之一的消息，发现顺序排列。
	ListMessagesByStage(ownerEmail string, stages ...domain.Stage) ([]domain.TrackedMessage, error)
}

// CampaignRepository 定义外联任务的存取操作。
type CampaignRepository interface {
	CreateCampaign(campaign *domain.Campaign) error
	GetCampaign(id string) (*domain.Campaign, error)
	ListCampaigns(ownerEmail string, limit int) ([]domain.Campaign, error)
	UpdateCampaign(campaign *domain.Campaign) error
	AddCampaignRecipient(recipient *domain.CampaignRecipient) error
}

// Store 聚合所有存储接口。
type Store interface {
	ManagerRepository
	ClientRepository
	LedgerRepository
	CampaignRepository

	Close() error
	Health() error
}
