package memory

import (
	"sort"
	"sync"
	"time"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

// Store 使用内存保存账号、客户名单、消息台账与外联任务，
// 主要用于开发验证与测试。
type Store struct {
	mu        sync.RWMutex
	managers  map[string]*domain.Manager            // ownerEmail -> manager
	clients   map[string][]*domain.Client           // ownerEmail -> roster（加入顺序）
	ledger    map[string][]*domain.TrackedMessage   // ownerEmail -> 台账（发现顺序）
	ledgerIdx map[string]map[string]int             // ownerEmail -> messageID -> 台账下标
	campaigns map[string]*domain.Campaign           // campaignID -> campaign
	byOwner   map[string][]string                   // ownerEmail -> campaignID（创建顺序）
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		managers:  make(map[string]*domain.Manager),
		clients:   make(map[string][]*domain.Client),
		ledger:    make(map[string][]*domain.TrackedMessage),
		ledgerIdx: make(map[string]map[string]int),
		campaigns: make(map[string]*domain.Campaign),
		byOwner:   make(map[string][]string),
	}
}

// ========== Manager ==========

// UpsertManager 按邮箱插入或更新账号。
func (s *Store) UpsertManager(manager *domain.Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeAddress(manager.Email)
	now := time.Now().UTC()
	if existing, ok := s.managers[key]; ok {
		existing.AccessToken = manager.AccessToken
		existing.RefreshToken = manager.RefreshToken
		existing.TokenExpiry = manager.TokenExpiry
		existing.UpdatedAt = now
		return nil
	}

	cp := *manager
	cp.Email = key
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.managers[key] = &cp
	return nil
}

// GetManager 按邮箱获取账号。
func (s *Store) GetManager(email string) (*domain.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.managers[domain.NormalizeAddress(email)]
	if !ok {
		return nil, storage.ErrManagerNotFound
	}
	cp := *m
	return &cp, nil
}

// ListManagers 返回全部账号快照。
func (s *Store) ListManagers() ([]domain.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Manager, 0, len(s.managers))
	for _, m := range s.managers {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// UpdateCredential 原地替换凭证。
func (s *Store) UpdateCredential(email string, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.managers[domain.NormalizeAddress(email)]
	if !ok {
		return storage.ErrManagerNotFound
	}
	m.AccessToken = cred.AccessToken
	m.RefreshToken = cred.RefreshToken
	m.TokenExpiry = cred.Expiry
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// ========== Client ==========

// AddClient 向名单追加客户，重复地址返回 ErrClientExists。
func (s *Store) AddClient(client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := domain.NormalizeAddress(client.ManagerEmail)
	addr := domain.NormalizeAddress(client.Email)
	for _, c := range s.clients[owner] {
		if domain.NormalizeAddress(c.Email) == addr {
			return storage.ErrClientExists
		}
	}

	cp := *client
	cp.ManagerEmail = owner
	cp.Email = addr
	if cp.AddedAt.IsZero() {
		cp.AddedAt = time.Now().UTC()
	}
	s.clients[owner] = append(s.clients[owner], &cp)
	return nil
}

// GetClient 按地址查找客户。
func (s *Store) GetClient(ownerEmail, clientEmail string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, _, err := s.findClient(ownerEmail, clientEmail)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

// ListClients 返回名单快照，按加入顺序。
func (s *Store) ListClients(ownerEmail string) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roster := s.clients[domain.NormalizeAddress(ownerEmail)]
	out := make([]domain.Client, 0, len(roster))
	for _, c := range roster {
		out = append(out, *c)
	}
	return out, nil
}

// UpdateClient 更新客户的可变字段。
func (s *Store) UpdateClient(client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _, err := s.findClient(client.ManagerEmail, client.Email)
	if err != nil {
		return err
	}
	c.Name = client.Name
	c.Status = client.Status
	c.Notes = client.Notes
	return nil
}

// RemoveClient 将客户移出名单。
func (s *Store) RemoveClient(ownerEmail, clientEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, err := s.findClient(ownerEmail, clientEmail)
	if err != nil {
		return err
	}
	owner := domain.NormalizeAddress(ownerEmail)
	s.clients[owner] = append(s.clients[owner][:idx], s.clients[owner][idx+1:]...)
	return nil
}

// IncrementResponseCount 客户回信计数 +1。
func (s *Store) IncrementResponseCount(ownerEmail, clientEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _, err := s.findClient(ownerEmail, clientEmail)
	if err != nil {
		return err
	}
	c.ResponseCount++
	return nil
}

// MarkClientEmailed 记录外联邮件最近发送时间。
func (s *Store) MarkClientEmailed(ownerEmail, clientEmail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _, err := s.findClient(ownerEmail, clientEmail)
	if err != nil {
		return err
	}
	c.LastEmailSent = &at
	return nil
}

// findClient 调用方必须持有锁。
func (s *Store) findClient(ownerEmail, clientEmail string) (*domain.Client, int, error) {
	owner := domain.NormalizeAddress(ownerEmail)
	addr := domain.NormalizeAddress(clientEmail)
	for i, c := range s.clients[owner] {
		if domain.NormalizeAddress(c.Email) == addr {
			return c, i, nil
		}
	}
	return nil, -1, storage.ErrClientNotFound
}

// ========== Ledger ==========

// IsKnownMessage 查询消息是否已在台账中。
func (s *Store) IsKnownMessage(ownerEmail, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.ledgerIdx[domain.NormalizeAddress(ownerEmail)]
	if !ok {
		return false, nil
	}
	_, known := idx[messageID]
	return known, nil
}

// RecordDiscovery 首次登记一封消息，按 (owner, messageID) 去重。
func (s *Store) RecordDiscovery(msg *domain.TrackedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner := domain.NormalizeAddress(msg.ManagerEmail)
	idx, ok := s.ledgerIdx[owner]
	if !ok {
		idx = make(map[string]int)
		s.ledgerIdx[owner] = idx
	}
	if _, exists := idx[msg.MessageID]; exists {
		return storage.ErrMessageExists
	}

	cp := *msg
	cp.ManagerEmail = owner
	if cp.Stage == "" {
		cp.Stage = domain.StagePending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	idx[cp.MessageID] = len(s.ledger[owner])
	s.ledger[owner] = append(s.ledger[owner], &cp)
	return nil
}

// SetMessageStage 转移消息阶段并更新随附簿记。
func (s *Store) SetMessageStage(ownerEmail, messageID string, stage domain.Stage, upd domain.StageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.lookupMessage(ownerEmail, messageID)
	if err != nil {
		return err
	}
	msg.Stage = stage
	if upd.RetryCount != nil {
		msg.RetryCount = *upd.RetryCount
	}
	if upd.LastError != nil {
		msg.LastError = *upd.LastError
	}
	return nil
}

// GetMessage 按 ID 获取台账记录。
func (s *Store) GetMessage(ownerEmail, messageID string) (*domain.TrackedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, err := s.lookupMessage(ownerEmail, messageID)
	if err != nil {
		return nil, err
	}
	cp := *msg
	return &cp, nil
}

// ListMessages 返回整个台账快照，发现顺序排列。
func (s *Store) ListMessages(ownerEmail string) ([]domain.TrackedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledger[domain.NormalizeAddress(ownerEmail)]
	out := make([]domain.TrackedMessage, 0, len(entries))
	for _, m := range entries {
		out = append(out, *m)
	}
	return out, nil
}

// ListMessagesByStage 返回处于给定阶段之一的消息。
func (s *Store) ListMessagesByStage(ownerEmail string, stages ...domain.Stage) ([]domain.TrackedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[domain.Stage]struct{}, len(stages))
	for _, st := range stages {
		want[st] = struct{}{}
	}

	var out []domain.TrackedMessage
	for _, m := range s.ledger[domain.NormalizeAddress(ownerEmail)] {
		if _, ok := want[m.Stage]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

// lookupMessage 调用方必须持有锁。
func (s *Store) lookupMessage(ownerEmail, messageID string) (*domain.TrackedMessage, error) {
	owner := domain.NormalizeAddress(ownerEmail)
	idx, ok := s.ledgerIdx[owner]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	i, ok := idx[messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	return s.ledger[owner][i], nil
}

// ========== Campaign ==========

// CreateCampaign 保存新建的外联任务。
func (s *Store) CreateCampaign(campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *campaign
	cp.ManagerEmail = domain.NormalizeAddress(cp.ManagerEmail)
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.campaigns[cp.ID] = &cp
	s.byOwner[cp.ManagerEmail] = append(s.byOwner[cp.ManagerEmail], cp.ID)
	return nil
}

// GetCampaign 按 ID 获取任务（含收件人明细）。
func (s *Store) GetCampaign(id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, storage.ErrCampaignNotFound
	}
	cp := *c
	cp.Recipients = append([]domain.CampaignRecipient(nil), c.Recipients...)
	return &cp, nil
}

// ListCampaigns 返回某账号的任务列表，新建在前。
func (s *Store) ListCampaigns(ownerEmail string, limit int) ([]domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byOwner[domain.NormalizeAddress(ownerEmail)]
	out := make([]domain.Campaign, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if c, ok := s.campaigns[ids[i]]; ok {
			cp := *c
			cp.Recipients = nil
			out = append(out, cp)
		}
	}
	return out, nil
}

// UpdateCampaign 更新任务状态与计数。
func (s *Store) UpdateCampaign(campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[campaign.ID]
	if !ok {
		return storage.ErrCampaignNotFound
	}
	c.Status = campaign.Status
	c.SentCount = campaign.SentCount
	c.FailedCount = campaign.FailedCount
	c.Error = campaign.Error
	c.CompletedAt = campaign.CompletedAt
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AddCampaignRecipient 追加一条收件人投递结果。
func (s *Store) AddCampaignRecipient(recipient *domain.CampaignRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[recipient.CampaignID]
	if !ok {
		return storage.ErrCampaignNotFound
	}
	c.Recipients = append(c.Recipients, *recipient)
	return nil
}

// Close 实现 storage.Store。
func (s *Store) Close() error { return nil }

// Health 实现 storage.Store。
func (s *Store) Health() error { return nil }
