package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现，用于看板统计快照等读多写少的数据。
type Cache struct {
	client *redis.Client
}

// NewCache 创建 Redis 缓存实例。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping 检查 Redis 连接是否可用。
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ========== 看板统计缓存 ==========

// CacheDashboard 缓存某账号的看板统计快照。
func (c *Cache) CacheDashboard(ctx context.Context, stats *domain.DashboardStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, dashboardKey(stats.ManagerEmail), data, ttl).Err()
}

// GetCachedDashboard 获取缓存的看板统计快照。
func (c *Cache) GetCachedDashboard(ctx context.Context, ownerEmail string) (*domain.DashboardStats, error) {
	data, err := c.client.Get(ctx, dashboardKey(ownerEmail)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var stats domain.DashboardStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvalidateDashboard 使某账号的看板缓存失效（台账或名单变更后调用）。
func (c *Cache) InvalidateDashboard(ctx context.Context, ownerEmail string) error {
	return c.client.Del(ctx, dashboardKey(ownerEmail)).Err()
}

func dashboardKey(ownerEmail string) string {
	return fmt.Sprintf("dashboard:%s", domain.NormalizeAddress(ownerEmail))
}
