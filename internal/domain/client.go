package domain

import "time"

// ClientStatus 客户状态
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
	ClientBounced  ClientStatus = "bounced"
)

// Valid 检查状态取值是否合法。
func (s ClientStatus) Valid() bool {
	switch s {
	case ClientActive, ClientInactive, ClientBounced:
		return true
	}
	return false
}

// Client 表示某个 Manager 名下的一个已知客户（回信筛选的白名单项）。
type Client struct {
	ID            string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ManagerEmail  string       `json:"-" gorm:"type:varchar(255);index:idx_client_owner_email,unique;not null"`
	Email         string       `json:"email" gorm:"type:varchar(255);index:idx_client_owner_email,unique;not null"`
	Name          string       `json:"name" gorm:"type:varchar(255)"`
	Status        ClientStatus `json:"status" gorm:"type:varchar(16);default:active"`
	Notes         string       `json:"notes" gorm:"type:text"`
	AddedAt       time.Time    `json:"addedAt"`
	LastEmailSent *time.Time   `json:"lastEmailSent,omitempty"`
	ResponseCount int          `json:"responseCount" gorm:"default:0"`
}
