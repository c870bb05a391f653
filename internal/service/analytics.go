package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
	"outreach/backend/internal/storage/redis"
)

// recentWindow 看板"近期活动"的统计窗口。
const recentWindow = 30 * 24 * time.Hour

// dashboardTTL 看板缓存的保鲜时长。
const dashboardTTL = 2 * time.Minute

// AnalyticsService 汇总各 Manager 的运营看板数据。
//
// 看板是读多写少的聚合视图，启用 Redis 时整块快照缓存，
// 缓存未命中或未启用时现算。
type AnalyticsService struct {
	store storage.Store
	cache *redis.Cache
	log   *zap.Logger

	now func() time.Time
}

// NewAnalyticsService 创建看板服务。cache 可以为 nil。
func NewAnalyticsService(store storage.Store, cache *redis.Cache, log *zap.Logger) *AnalyticsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsService{
		store: store,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// Dashboard 返回某账号的看板快照。
func (s *AnalyticsService) Dashboard(ctx context.Context, ownerEmail string) (*domain.DashboardStats, error) {
	owner := domain.NormalizeAddress(ownerEmail)

	if s.cache != nil {
		if cached, err := s.cache.GetCachedDashboard(ctx, owner); err == nil {
			return cached, nil
		}
	}

	stats, err := s.computeDashboard(owner)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheDashboard(ctx, stats, dashboardTTL); err != nil {
			s.log.Warn("failed to cache dashboard", zap.String("owner", owner), zap.Error(err))
		}
	}
	return stats, nil
}

func (s *AnalyticsService) computeDashboard(owner string) (*domain.DashboardStats, error) {
	manager, err := s.store.GetManager(owner)
	if err != nil {
		return nil, err
	}

	stats := &domain.DashboardStats{
		ManagerEmail: owner,
		ConnectedAt:  manager.CreatedAt,
	}
	since := s.now().Add(-recentWindow)

	campaigns, err := s.store.ListCampaigns(owner, 0)
	if err != nil {
		return nil, err
	}
	stats.TotalCampaigns = len(campaigns)
	for _, c := range campaigns {
		if c.Status == domain.CampaignCompleted {
			stats.CompletedCampaigns++
		}
		if c.CreatedAt.After(since) {
			stats.RecentCampaigns++
		}
		stats.EmailsSent += c.SentCount
		stats.EmailsFailed += c.FailedCount
	}
	if total := stats.EmailsSent + stats.EmailsFailed; total > 0 {
		stats.SendSuccessRate = float64(stats.EmailsSent) / float64(total) * 100
	}

	clients, err := s.store.ListClients(owner)
	if err != nil {
		return nil, err
	}
	stats.TotalClients = len(clients)
	for _, c := range clients {
		if c.Status == domain.ClientActive {
			stats.ActiveClients++
		}
		if c.ResponseCount > 0 {
			stats.ClientsWithResponses++
		}
		stats.TotalResponses += c.ResponseCount
	}
	if stats.EmailsSent > 0 {
		stats.ResponseRate = float64(stats.TotalResponses) / float64(stats.EmailsSent) * 100
	}

	messages, err := s.store.ListMessages(owner)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		stats.MessageStages.Add(m.Stage)
		if m.Stage == domain.StageSuccess && m.CreatedAt.After(since) {
			stats.RecentResponses++
		}
	}

	return stats, nil
}

// ClientPerformance 返回某账号名下所有客户的表现摘要，按回信数降序。
func (s *AnalyticsService) ClientPerformance(ownerEmail string) ([]domain.ClientPerformance, error) {
	owner := domain.NormalizeAddress(ownerEmail)
	clients, err := s.store.ListClients(owner)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ClientPerformance, 0, len(clients))
	for _, c := range clients {
		out = append(out, domain.ClientPerformance{
			Email:         c.Email,
			Name:          c.Name,
			Status:        c.Status,
			ResponseCount: c.ResponseCount,
			LastEmailSent: c.LastEmailSent,
			AddedAt:       c.AddedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ResponseCount > out[j].ResponseCount
	})
	return out, nil
}

// Invalidate 使某账号的看板缓存失效（台账或名单变更后调用）。
func (s *AnalyticsService) Invalidate(ctx context.Context, ownerEmail string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDashboard(ctx, domain.NormalizeAddress(ownerEmail)); err != nil {
		s.log.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
