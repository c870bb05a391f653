package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/monitoring"
	"outreach/backend/internal/storage"
)

var (
	ErrNoActiveClients = errors.New("no active clients to send to")
	ErrEmptyCampaign   = errors.New("subject and message are required")
)

// MailSender 发送一封外联邮件。
//
// Gmail 实现以凭证对应的账号身份发信；SMTP 中继实现忽略凭证，
// 走配置好的中继账号。
type MailSender interface {
	Send(ctx context.Context, cred domain.Credential, from, to, subject, body string) error
}

// CampaignEvents 接收 campaign 进度事件（WebSocket 推送用）。
type CampaignEvents interface {
	PublishCampaign(ownerEmail string, campaign *domain.Campaign)
}

// CampaignService 执行向客户名单群发外联邮件的任务。
//
// 发送在后台顺序进行，用速率限制器控制节奏；每个收件人的
// 结果单独落库，计数器随进度更新。
type CampaignService struct {
	store    storage.Store
	sender   MailSender
	accounts *AccountService
	limiter  *rate.Limiter
	metrics  *monitoring.Metrics
	events   CampaignEvents
	log      *zap.Logger

	callTimeout time.Duration
	now         func() time.Time
}

// NewCampaignService 创建外联任务服务。
// sendInterval 为相邻两封邮件之间的最小间隔。
func NewCampaignService(
	store storage.Store,
	sender MailSender,
	accounts *AccountService,
	sendInterval time.Duration,
	callTimeout time.Duration,
	metrics *monitoring.Metrics,
	events CampaignEvents,
	log *zap.Logger,
) *CampaignService {
	if sendInterval <= 0 {
		sendInterval = time.Second
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CampaignService{
		store:       store,
		sender:      sender,
		accounts:    accounts,
		limiter:     rate.NewLimiter(rate.Every(sendInterval), 1),
		metrics:     metrics,
		events:      events,
		log:         log,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Start 创建一个 campaign 并在后台开始发送。
// 名单中没有 active 客户时直接拒绝，不建任务。
func (s *CampaignService) Start(ctx context.Context, ownerEmail, subject, message, template string) (*domain.Campaign, error) {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(message) == "" {
		return nil, ErrEmptyCampaign
	}

	owner := domain.NormalizeAddress(ownerEmail)
	manager, err := s.store.GetManager(owner)
	if err != nil {
		return nil, err
	}

	clients, err := s.store.ListClients(owner)
	if err != nil {
		return nil, err
	}
	recipients := make([]domain.Client, 0, len(clients))
	for _, c := range clients {
		if c.Status == domain.ClientActive {
			recipients = append(recipients, c)
		}
	}
	if len(recipients) == 0 {
		return nil, ErrNoActiveClients
	}

	if template == "" {
		template = "default"
	}
	campaign := &domain.Campaign{
		ID:              uuid.NewString(),
		ManagerEmail:    owner,
		Subject:         subject,
		Message:         message,
		Template:        template,
		Status:          domain.CampaignStarting,
		TotalRecipients: len(recipients),
		CreatedAt:       s.now(),
	}
	if err := s.store.CreateCampaign(campaign); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CampaignsStarted.Inc()
	}
	s.log.Info("campaign started",
		zap.String("campaign", campaign.ID),
		zap.String("owner", owner),
		zap.Int("recipients", len(recipients)))

	go s.run(context.WithoutCancel(ctx), manager, campaign, recipients)

	snapshot := *campaign
	return &snapshot, nil
}

// run 后台顺序发送一个 campaign。
func (s *CampaignService) run(ctx context.Context, manager *domain.Manager, campaign *domain.Campaign, recipients []domain.Client) {
	campaign.Status = domain.CampaignSending
	s.saveProgress(campaign)

	managerName := displayName(manager.Email)

	for _, client := range recipients {
		if err := s.limiter.Wait(ctx); err != nil {
			s.fail(campaign, err)
			return
		}

		cred, err := s.accounts.FreshCredential(ctx, manager)
		if err != nil {
			// 凭证刷新失败对所有后续收件人都一样，整个任务终止
			s.fail(campaign, err)
			return
		}

		body := Render(campaign.Message, client.Name, managerName)
		sendCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err = s.sender.Send(sendCtx, cred, manager.Email, client.Email, campaign.Subject, body)
		cancel()

		recipient := &domain.CampaignRecipient{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Email:      client.Email,
			SentAt:     s.now(),
		}
		if err != nil {
			recipient.Status = domain.RecipientFailed
			recipient.Error = err.Error()
			campaign.FailedCount++
			if s.metrics != nil {
				s.metrics.CampaignSends.WithLabelValues("failed").Inc()
			}
			s.log.Warn("campaign send failed",
				zap.String("campaign", campaign.ID),
				zap.String("recipient", client.Email),
				zap.Error(err))
		} else {
			recipient.Status = domain.RecipientSent
			campaign.SentCount++
			if s.metrics != nil {
				s.metrics.CampaignSends.WithLabelValues("sent").Inc()
			}
			if err := s.store.MarkClientEmailed(campaign.ManagerEmail, client.Email, recipient.SentAt); err != nil {
				s.log.Warn("failed to mark client emailed",
					zap.String("client", client.Email), zap.Error(err))
			}
		}

		if err := s.store.AddCampaignRecipient(recipient); err != nil {
			s.log.Error("failed to record campaign recipient",
				zap.String("campaign", campaign.ID),
				zap.String("recipient", client.Email),
				zap.Error(err))
		}
		s.saveProgress(campaign)
	}

	now := s.now()
	campaign.Status = domain.CampaignCompleted
	campaign.CompletedAt = &now
	s.saveProgress(campaign)

	s.log.Info("campaign completed",
		zap.String("campaign", campaign.ID),
		zap.Int("sent", campaign.SentCount),
		zap.Int("failed", campaign.FailedCount))
}

// fail 将 campaign 置为 failed 并记录原因。
func (s *CampaignService) fail(campaign *domain.Campaign, err error) {
	campaign.Status = domain.CampaignFailed
	campaign.Error = err.Error()
	s.saveProgress(campaign)
	s.log.Error("campaign failed",
		zap.String("campaign", campaign.ID), zap.Error(err))
}

// saveProgress 持久化并广播 campaign 当前进度。
func (s *CampaignService) saveProgress(campaign *domain.Campaign) {
	if err := s.store.UpdateCampaign(campaign); err != nil {
		s.log.Error("failed to persist campaign progress",
			zap.String("campaign", campaign.ID), zap.Error(err))
	}
	if s.events != nil {
		snapshot := *campaign
		s.events.PublishCampaign(campaign.ManagerEmail, &snapshot)
	}
}

// Status 返回单个 campaign 的当前状态（含逐收件人结果）。
func (s *CampaignService) Status(id string) (*domain.Campaign, error) {
	return s.store.GetCampaign(id)
}

// List 返回某账号最近的 campaign，新的在前。
func (s *CampaignService) List(ownerEmail string, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListCampaigns(domain.NormalizeAddress(ownerEmail), limit)
}

// displayName 从邮箱地址推出发件人署名。
func displayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
