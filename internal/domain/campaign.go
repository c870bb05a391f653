package domain

import "time"

// CampaignStatus 外联投递任务状态
type CampaignStatus string

const (
	CampaignStarting  CampaignStatus = "starting"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignPaused    CampaignStatus = "paused"
)

// RecipientStatus 单个收件人的投递结果
type RecipientStatus string

const (
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientBounced RecipientStatus = "bounced"
)

// Campaign 表示一次向客户名单群发外联邮件的任务。
//
// 发送在后台顺序执行，逐收件人记录结果；计数器与状态
// 随发送进度更新。
type Campaign struct {
	ID              string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ManagerEmail    string              `json:"managerEmail" gorm:"type:varchar(255);index;not null"`
	Subject         string              `json:"subject" gorm:"type:varchar(500);not null"`
	Message         string              `json:"message" gorm:"type:text;not null"`
	Template        string              `json:"template" gorm:"type:varchar(64);default:default"`
	Status          CampaignStatus      `json:"status" gorm:"type:varchar(16);index;default:starting"`
	TotalRecipients int                 `json:"totalRecipients"`
	SentCount       int                 `json:"sentCount" gorm:"default:0"`
	FailedCount     int                 `json:"failedCount" gorm:"default:0"`
	Error           string              `json:"error,omitempty" gorm:"type:text"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Recipients      []CampaignRecipient `json:"recipients,omitempty" gorm:"foreignKey:CampaignID"`
}

// CampaignRecipient 记录一次 campaign 中单个收件人的投递结果。
type CampaignRecipient struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CampaignID string          `json:"-" gorm:"type:varchar(36);index;not null"`
	Email      string          `json:"email" gorm:"type:varchar(255);not null"`
	Status     RecipientStatus `json:"status" gorm:"type:varchar(16);not null"`
	Error      string          `json:"error,omitempty" gorm:"type:text"`
	SentAt     time.Time       `json:"sentAt"`
}
