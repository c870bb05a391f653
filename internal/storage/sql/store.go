package sql

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreach/backend/internal/domain"
	"outreach/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
//
// 每个写操作都是一条独立提交的语句，引擎在处理下一封消息之前
// 台账已经落盘，进程崩溃不会让已登记的消息被当作新消息重放。
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if driverName == "mysql" {
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driverName: driverName}
	if err := store.Migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Manager{},
		&domain.Client{},
		&domain.TrackedMessage{},
		&domain.Campaign{},
		&domain.CampaignRecipient{},
	)
}

// ========== Manager ==========

// UpsertManager 按邮箱插入或更新账号。
func (s *Store) UpsertManager(manager *domain.Manager) error {
	manager.Email = domain.NormalizeAddress(manager.Email)

	var existing domain.Manager
	err := s.db.Where("email = ?", manager.Email).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(manager).Error
	}
	if err != nil {
		return err
	}

	return s.db.Model(&existing).Updates(map[string]interface{}{
		"access_token":  manager.AccessToken,
		"refresh_token": manager.RefreshToken,
		"token_expiry":  manager.TokenExpiry,
	}).Error
}

// GetManager 按邮箱获取账号。
func (s *Store) GetManager(email string) (*domain.Manager, error) {
	var manager domain.Manager
	err := s.db.Where("email = ?", domain.NormalizeAddress(email)).First(&manager).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrManagerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &manager, nil
}

// ListManagers 返回全部账号。
func (s *Store) ListManagers() ([]domain.Manager, error) {
	var managers []domain.Manager
	if err := s.db.Order("email").Find(&managers).Error; err != nil {
		return nil, err
	}
	return managers, nil
}

// UpdateCredential 原地替换凭证。
func (s *Store) UpdateCredential(email string, cred domain.Credential) error {
	result := s.db.Model(&domain.Manager{}).
		Where("email = ?", domain.NormalizeAddress(email)).
		Updates(map[string]interface{}{
			"access_token":  cred.AccessToken,
			"refresh_token": cred.RefreshToken,
			"token_expiry":  cred.Expiry,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrManagerNotFound
	}
	return nil
}

// ========== Client ==========

// AddClient 向名单追加客户。
func (s *Store) AddClient(client *domain.Client) error {
	client.ManagerEmail = domain.NormalizeAddress(client.ManagerEmail)
	client.Email = domain.NormalizeAddress(client.Email)
	if client.AddedAt.IsZero() {
		client.AddedAt = time.Now().UTC()
	}

	err := s.db.Create(client).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrClientExists
	}
	return err
}

// GetClient 按地址查找客户。
func (s *Store) GetClient(ownerEmail, clientEmail string) (*domain.Client, error) {
	var client domain.Client
	err := s.db.
		Where("manager_email = ? AND email = ?",
			domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail)).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients 返回名单，按加入顺序。
func (s *Store) ListClients(ownerEmail string) ([]domain.Client, error) {
	var clients []domain.Client
	err := s.db.
		Where("manager_email = ?", domain.NormalizeAddress(ownerEmail)).
		Order("added_at").
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

// UpdateClient 更新客户的可变字段。
func (s *Store) UpdateClient(client *domain.Client) error {
	result := s.db.Model(&domain.Client{}).
		Where("manager_email = ? AND email = ?",
			domain.NormalizeAddress(client.ManagerEmail), domain.NormalizeAddress(client.Email)).
		Updates(map[string]interface{}{
			"name":   client.Name,
			"status": client.Status,
			"notes":  client.Notes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrClientNotFound
	}
	return nil
}

// RemoveClient 将客户移出名单。
func (s *Store) RemoveClient(ownerEmail, clientEmail string) error {
	result := s.db.
		Where("manager_email = ? AND email = ?",
			domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail)).
		Delete(&domain.Client{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrClientNotFound
	}
	return nil
}

// IncrementResponseCount 客户回信计数 +1。
func (s *Store) IncrementResponseCount(ownerEmail, clientEmail string) error {
	result := s.db.Model(&domain.Client{}).
		Where("manager_email = ? AND email = ?",
			domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail)).
		UpdateColumn("response_count", gorm.Expr("response_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrClientNotFound
	}
	return nil
}

// MarkClientEmailed 记录外联邮件最近发送时间。
func (s *Store) MarkClientEmailed(ownerEmail, clientEmail string, at time.Time) error {
	result := s.db.Model(&domain.Client{}).
		Where("manager_email = ? AND email = ?",
			domain.NormalizeAddress(ownerEmail), domain.NormalizeAddress(clientEmail)).
		UpdateColumn("last_email_sent", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrClientNotFound
	}
	return nil
}
