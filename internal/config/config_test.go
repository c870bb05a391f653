package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"OUTREACH_SERVER_HOST",
		"OUTREACH_SERVER_PORT",
		"OUTREACH_LOG_LEVEL",
		"OUTREACH_DATABASE_TYPE",
		"OUTREACH_DATABASE_DSN",
		"OUTREACH_GOOGLE_CLIENT_ID",
		"OUTREACH_GOOGLE_SHEET_RANGE",
		"OUTREACH_GOOGLE_STATE_SECRET",
		"OUTREACH_OPENAI_MODEL",
		"OUTREACH_POLL_LIST_WINDOW",
		"OUTREACH_POLL_BACKOFF_WINDOW",
		"OUTREACH_POLL_MAX_ATTEMPTS",
		"OUTREACH_POLL_CALL_TIMEOUT",
		"OUTREACH_POLL_FULL_SPEC",
		"OUTREACH_CAMPAIGN_SEND_INTERVAL",
		"OUTREACH_CORS_ALLOWED_ORIGINS",
		"OUTREACH_ADMIN_TOKEN_HASH",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "", cfg.Database.Type)
		assert.Equal(t, "Sheet1!A2:I2", cfg.Google.SheetRange)
		assert.Equal(t, "gpt-4", cfg.OpenAI.Model)
		assert.Equal(t, 10, cfg.Poll.ListWindow)
		assert.Equal(t, 2*time.Hour, cfg.Poll.BackoffWindow)
		assert.Equal(t, 3, cfg.Poll.MaxAttempts)
		assert.Equal(t, 60*time.Second, cfg.Poll.CallTimeout)
		assert.Equal(t, "0 * * * *", cfg.Poll.FullSpec)
		assert.Equal(t, "*/30 * * * *", cfg.Poll.RetrySpec)
		assert.Equal(t, time.Second, cfg.Campaign.SendInterval)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Empty(t, cfg.Admin.TokenHash)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("OUTREACH_SERVER_HOST", "127.0.0.1")
		os.Setenv("OUTREACH_SERVER_PORT", "9090")
		os.Setenv("OUTREACH_LOG_LEVEL", "debug")
		os.Setenv("OUTREACH_DATABASE_TYPE", "postgres")
		os.Setenv("OUTREACH_DATABASE_DSN", "postgres://localhost/outreach")
		os.Setenv("OUTREACH_GOOGLE_CLIENT_ID", "client-id.apps.googleusercontent.com")
		os.Setenv("OUTREACH_GOOGLE_STATE_SECRET", "state-secret-that-is-32-chars-ok")
		os.Setenv("OUTREACH_POLL_LIST_WINDOW", "25")
		os.Setenv("OUTREACH_POLL_BACKOFF_WINDOW", "4h")
		os.Setenv("OUTREACH_POLL_MAX_ATTEMPTS", "5")
		os.Setenv("OUTREACH_CAMPAIGN_SEND_INTERVAL", "2s")
		os.Setenv("OUTREACH_CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "postgres", cfg.Database.Type)
		assert.Equal(t, "client-id.apps.googleusercontent.com", cfg.Google.ClientID)
		assert.Equal(t, 25, cfg.Poll.ListWindow)
		assert.Equal(t, 4*time.Hour, cfg.Poll.BackoffWindow)
		assert.Equal(t, 5, cfg.Poll.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.Campaign.SendInterval)
		assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("state密钥过短被拒绝", func(t *testing.T) {
		os.Setenv("OUTREACH_GOOGLE_STATE_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)

		os.Unsetenv("OUTREACH_GOOGLE_STATE_SECRET")
	})

	t.Run("非法时间表达式被拒绝", func(t *testing.T) {
		os.Setenv("OUTREACH_POLL_BACKOFF_WINDOW", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)

		os.Unsetenv("OUTREACH_POLL_BACKOFF_WINDOW")
	})

	t.Run("非正数轮询参数回退默认值", func(t *testing.T) {
		os.Setenv("OUTREACH_POLL_BACKOFF_WINDOW", "2h")
		os.Setenv("OUTREACH_POLL_LIST_WINDOW", "-1")
		os.Setenv("OUTREACH_POLL_MAX_ATTEMPTS", "0")

		cfg, err := Load()
		assert.NoError(t, err)
		assert.Equal(t, 10, cfg.Poll.ListWindow)
		assert.Equal(t, 3, cfg.Poll.MaxAttempts)
	})
}
