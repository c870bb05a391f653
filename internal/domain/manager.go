package domain

import "time"

// Manager 表示一个已授权接入系统的邮箱账号（Mailbox Owner）。
//
// 以邮箱地址作为唯一业务键；OAuth 凭证由本实体独占持有，
// 刷新后原地更新。由授权回调首次 upsert 创建，之后由
// 轮询/重试引擎持续更新，本系统不删除该记录。
type Manager struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	AccessToken  string     `json:"-" gorm:"type:text;not null"`
	RefreshToken string     `json:"-" gorm:"type:text;not null"`
	TokenExpiry  *time.Time `json:"tokenExpiry,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Credential 是访问邮箱与表格 API 所需的凭证对。
//
// 调用方在 TokenExpiry 已过期时必须先刷新并持久化新凭证再使用。
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
}

// Credential 返回当前持有的凭证快照。
func (m *Manager) Credential() Credential {
	return Credential{
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		Expiry:       m.TokenExpiry,
	}
}

// Expired 判断凭证在给定时刻是否已过期。
// 没有过期时间的凭证视为未过期，由 API 调用自身报错兜底。
func (c Credential) Expired(now time.Time) bool {
	return c.Expiry != nil && c.Expiry.Before(now)
}
