package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

// ClientService 管理各 Manager 的客户名单。
//
// 名单同时是回信筛选的白名单：轮询/重试引擎只处理名单中
// active 客户的来信。
type ClientService struct {
	store storage.Store
	log   *zap.Logger

	now func() time.Time
}

// NewClientService 创建客户名单服务。
func NewClientService(store storage.Store, log *zap.Logger) *ClientService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClientService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Add 向名单添加客户。地址会先规范化；重复添加返回 ErrClientExists。
func (s *ClientService) Add(ownerEmail, clientEmail, name, notes string) (*domain.Client, error) {
	clientEmail = domain.NormalizeAddress(clientEmail)
	if err := domain.ValidateEmail(clientEmail); err != nil {
		return nil, err
	}

	client := &domain.Client{
		ID:           uuid.NewString(),
		ManagerEmail: domain.NormalizeAddress(ownerEmail),
		Email:        clientEmail,
		Name:         strings.TrimSpace(name),
		Status:       domain.ClientActive,
		Notes:        notes,
		AddedAt:      s.now(),
	}
	if err := s.store.AddClient(client); err != nil {
		return nil, err
	}

	s.log.Info("client added",
		zap.String("owner", client.ManagerEmail),
		zap.String("client", client.Email))
	return client, nil
}

// Get 获取名单中的单个客户。
func (s *ClientService) Get(ownerEmail, clientEmail string) (*domain.Client, error) {
	return s.store.GetClient(domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail))
}

// List 返回某账号的全部客户，添加顺序排列。
func (s *ClientService) List(ownerEmail string) ([]domain.Client, error) {
	return s.store.ListClients(domain.NormalizeAddress(ownerEmail))
}

// Update 更新客户的展示名、状态和备注。nil 字段保持不变。
func (s *ClientService) Update(ownerEmail, clientEmail string, name, status, notes *string) (*domain.Client, error) {
	client, err := s.store.GetClient(domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail))
	if err != nil {
		return nil, err
	}

	if name != nil {
		client.Name = strings.TrimSpace(*name)
	}
	if status != nil {
		st := domain.ClientStatus(*status)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidStatus, *status)
		}
		client.Status = st
	}
	if notes != nil {
		client.Notes = *notes
	}

	if err := s.store.UpdateClient(client); err != nil {
		return nil, err
	}
	return client, nil
}

// Remove 从名单移除客户。已入台账的历史消息不受影响。
func (s *ClientService) Remove(ownerEmail, clientEmail string) error {
	owner := domain.NormalizeAddress(ownerEmail)
	addr := domain.NormalizeAddress(clientEmail)
	if err := s.store.RemoveClient(owner, addr); err != nil {
		return err
	}
	s.log.Info("client removed", zap.String("owner", owner), zap.String("client", addr))
	return nil
}
