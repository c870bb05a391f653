package sql

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

// ========== Ledger ==========

// IsKnownMessage 查询消息是否已在台账中。
func (s *Store) IsKnownMessage(ownerEmail, messageID string) (bool, error) {
	var count int64
	err := s.db.Model(&domain.TrackedMessage{}).
		Where("manager_email = ? AND message_id = ?",
			domain.NormalizeAddress(ownerEmail), messageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordDiscovery 首次登记一封消息。复合主键保证同一账号的台账中
// 一个邮件 ID 至多出现一次，重复插入映射为 ErrMessageExists。
func (s *Store) RecordDiscovery(msg *domain.TrackedMessage) error {
	msg.ManagerEmail = domain.NormalizeAddress(msg.ManagerEmail)
	if msg.Stage == "" {
		msg.Stage = domain.StagePending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := s.db.Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrMessageExists
	}
	return err
}

// SetMessageStage 转移消息阶段并更新随附簿记。
func (s *Store) SetMessageStage(ownerEmail, messageID string, stage domain.Stage, upd domain.StageUpdate) error {
	values := map[string]interface{}{"stage": stage}
	if upd.RetryCount != nil {
		values["retry_count"] = *upd.RetryCount
	}
	if upd.LastError != nil {
		values["last_error"] = *upd.LastError
	}

	result := s.db.Model(&domain.TrackedMessage{}).
		Where("manager_email = ? AND message_id = ?",
			domain.NormalizeAddress(ownerEmail), messageID).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMessageNotFound
	}
	return nil
}

// GetMessage 按 ID 获取台账记录。
func (s *Store) GetMessage(ownerEmail, messageID string) (*domain.TrackedMessage, error) {
	var msg domain.TrackedMessage
	err := s.db.
		Where("manager_email = ? AND message_id = ?",
			domain.NormalizeAddress(ownerEmail), messageID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages 返回整个台账，发现顺序排列。
func (s *Store) ListMessages(ownerEmail string) ([]domain.TrackedMessage, error) {
	var messages []domain.TrackedMessage
	err := s.db.
		Where("manager_email = ?", domain.NormalizeAddress(ownerEmail)).
		Order("created_at").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListMessagesByStage 返回处于给定阶段之一的消息。
func (s *Store) ListMessagesByStage(ownerEmail string, stages ...domain.Stage) ([]domain.TrackedMessage, error) {
	var messages []domain.TrackedMessage
	err := s.db.
		Where("manager_email = ? AND stage IN ?",
			domain.NormalizeAddress(ownerEmail), stages).
		Order("created_at").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ========== Campaign ==========

// CreateCampaign 保存新建的外联任务。
func (s *Store) CreateCampaign(campaign *domain.Campaign) error {
	campaign.ManagerEmail = domain.NormalizeAddress(campaign.ManagerEmail)
	return s.db.Create(campaign).Error
}

// GetCampaign 按 ID 获取任务（含收件人明细）。
func (s *Store) GetCampaign(id string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := s.db.Preload("Recipients").Where("id = ?", id).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// ListCampaigns 返回某账号的任务列表，新建在前。
func (s *Store) ListCampaigns(ownerEmail string, limit int) ([]domain.Campaign, error) {
	query := s.db.
		Where("manager_email = ?", domain.NormalizeAddress(ownerEmail)).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var campaigns []domain.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

// UpdateCampaign 更新任务状态与计数。
func (s *Store) UpdateCampaign(campaign *domain.Campaign) error {
	result := s.db.Model(&domain.Campaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]interface{}{
			"status":       campaign.Status,
			"sent_count":   campaign.SentCount,
			"failed_count": campaign.FailedCount,
			"error":        campaign.Error,
			"completed_at": campaign.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrCampaignNotFound
	}
	return nil
}

// AddCampaignRecipient 追加一条收件人投递结果。
func (s *Store) AddCampaignRecipient(recipient *domain.CampaignRecipient) error {
	return s.db.Create(recipient).Error
}
