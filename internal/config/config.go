package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色控制台输出
	File        string // 日志文件路径，留空只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用看板统计缓存
	Address  string // Redis 服务地址，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// GoogleConfig 定义 Google OAuth 与表格接入配置
type GoogleConfig struct {
	ClientID     string // OAuth 客户端 ID
	ClientSecret string // OAuth 客户端密钥
	RedirectURI  string // 授权回调地址
	SheetID      string // 分类结果落表的表格 ID
	SheetRange   string // 追加行的范围，默认 "Sheet1!A2:I2"
	StateSecret  string // 授权 state 参数的签名密钥，至少 32 字符
}

// OpenAIConfig 定义分类器所用的模型配置
type OpenAIConfig struct {
	APIKey string // API 密钥
	Model  string // 模型名，默认 gpt-4
}

// PollConfig 定义轮询引擎与重试引擎的行为参数
type PollConfig struct {
	ListWindow    int           // 每个 tick 列出的最近邮件数量，默认 10
	BackoffWindow time.Duration // 失败消息自发现起的重试退避窗口，默认 2h
	MaxAttempts   int           // 单条消息的最大重试次数，默认 3
	CallTimeout   time.Duration // 单次外部调用（邮箱/分类/落表）的超时，默认 60s
	FullSpec      string        // 全量轮询 cron 表达式，默认每小时
	RetrySpec     string        // 重试扫描 cron 表达式，默认每 30 分钟
	BusinessSpec  string        // 工作时段高频轮询 cron 表达式，默认工作日 9-18 点每 5 分钟
}

// CampaignConfig 定义外联群发的发送参数
type CampaignConfig struct {
	SendInterval time.Duration // 相邻两封的最小间隔，默认 1s（限速用）
	SMTPRelay    string        // 可选的 SMTP 中继地址 "host:port"，留空走 Gmail API
	SMTPUser     string        // SMTP 中继用户名
	SMTPPassword string        // SMTP 中继密码
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// AdminConfig 定义管理接口的访问控制
type AdminConfig struct {
	TokenHash string // 管理令牌的 bcrypt 哈希，留空表示不启用管理路由
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Google   GoogleConfig
	OpenAI   OpenAIConfig
	Poll     PollConfig
	Campaign CampaignConfig
	CORS     CORSConfig
	Admin    AdminConfig
}

// Load 从环境变量和 .env 文件加载系统配置。
//
// 加载优先级（从高到低）：系统环境变量 > .env 文件 > 默认值。
// 环境变量前缀 OUTREACH_，例如 OUTREACH_GOOGLE_CLIENT_ID。
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默跳过
	loadEnvFile()

	viper.SetEnvPrefix("outreach")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("google.sheet_range", "Sheet1!A2:I2")
	viper.SetDefault("openai.model", "gpt-4")
	viper.SetDefault("poll.list_window", 10)
	viper.SetDefault("poll.backoff_window", "2h")
	viper.SetDefault("poll.max_attempts", 3)
	viper.SetDefault("poll.call_timeout", "60s")
	viper.SetDefault("poll.full_spec", "0 * * * *")
	viper.SetDefault("poll.retry_spec", "*/30 * * * *")
	viper.SetDefault("poll.business_spec", "*/5 9-18 * * 1-5")
	viper.SetDefault("campaign.send_interval", "1s")
	viper.SetDefault("cors.allowed_origins", "*")

	backoff, err := time.ParseDuration(viper.GetString("poll.backoff_window"))
	if err != nil {
		return nil, fmt.Errorf("invalid poll.backoff_window: %w", err)
	}
	callTimeout, err := time.ParseDuration(viper.GetString("poll.call_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid poll.call_timeout: %w", err)
	}
	sendInterval, err := time.ParseDuration(viper.GetString("campaign.send_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid campaign.send_interval: %w", err)
	}
	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	listWindow := viper.GetInt("poll.list_window")
	if listWindow <= 0 {
		listWindow = 10
	}
	maxAttempts := viper.GetInt("poll.max_attempts")
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	stateSecret := viper.GetString("google.state_secret")
	if stateSecret != "" && len(stateSecret) < 32 {
		return nil, fmt.Errorf("google.state_secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Google: GoogleConfig{
			ClientID:     viper.GetString("google.client_id"),
			ClientSecret: viper.GetString("google.client_secret"),
			RedirectURI:  viper.GetString("google.redirect_uri"),
			SheetID:      viper.GetString("google.sheet_id"),
			SheetRange:   viper.GetString("google.sheet_range"),
			StateSecret:  stateSecret,
		},
		OpenAI: OpenAIConfig{
			APIKey: viper.GetString("openai.api_key"),
			Model:  viper.GetString("openai.model"),
		},
		Poll: PollConfig{
			ListWindow:    listWindow,
			BackoffWindow: backoff,
			MaxAttempts:   maxAttempts,
			CallTimeout:   callTimeout,
			FullSpec:      viper.GetString("poll.full_spec"),
			RetrySpec:     viper.GetString("poll.retry_spec"),
			BusinessSpec:  viper.GetString("poll.business_spec"),
		},
		Campaign: CampaignConfig{
			SendInterval: sendInterval,
			SMTPRelay:    viper.GetString("campaign.smtp_relay"),
			SMTPUser:     viper.GetString("campaign.smtp_user"),
			SMTPPassword: viper.GetString("campaign.smtp_password"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Admin: AdminConfig{
			TokenHash: viper.GetString("admin.token_hash"),
		},
	}

	return cfg, nil
}

// loadEnvFile 尝试从当前目录或父目录加载 .env 文件。
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// parseList 解析逗号分隔的配置项。
func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
