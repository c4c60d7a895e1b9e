// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	// 验证认证默认值
	assert.False(t, cfg.Auth.Enabled)
	assert.NotEmpty(t, cfg.Auth.DevUserID)

	// 验证 Database 默认值
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "voicehub.db", cfg.Database.Name)

	// 验证提供商默认值
	assert.Equal(t, "https://api.deepgram.com", cfg.Deepgram.BaseURL)
	assert.Equal(t, "nova-2", cfg.Deepgram.Model)
	assert.Equal(t, "aura-asteria-en", cfg.Deepgram.Voice)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 256, cfg.Gemini.MaxOutputTokens)

	// 验证语音回合默认值
	assert.Equal(t, 4096, cfg.Voice.HistoryTokenBudget)
	assert.Equal(t, "audio/webm", cfg.Voice.AudioMimeType)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  rate_limit_rps: 50

database:
  driver: "postgres"
  host: "db.example.com"
  port: 5433
  name: "voicehub_prod"

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  lock_ttl: 10s

deepgram:
  api_key: "dg-key"
  voice: "aura-orion-en"

gemini:
  api_key: "gm-key"
  max_output_tokens: 512

voice:
  history_token_budget: 2048

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o600))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, float64(50), cfg.Server.RateLimitRPS)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, "dg-key", cfg.Deepgram.APIKey)
	assert.Equal(t, "aura-orion-en", cfg.Deepgram.Voice)
	assert.Equal(t, 512, cfg.Gemini.MaxOutputTokens)
	assert.Equal(t, 2048, cfg.Voice.HistoryTokenBudget)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 文件未覆盖的字段保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "nova-2", cfg.Deepgram.Model)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("VOICEHUB_SERVER_HTTP_PORT", "7070")
	t.Setenv("VOICEHUB_DATABASE_DRIVER", "mysql")
	t.Setenv("VOICEHUB_DEEPGRAM_API_KEY", "env-key")
	t.Setenv("VOICEHUB_REDIS_ENABLED", "true")
	t.Setenv("VOICEHUB_SERVER_SHUTDOWN_TIMEOUT", "45s")
	t.Setenv("VOICEHUB_LOG_OUTPUT_PATHS", "stdout, /var/log/voicehub.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "env-key", cfg.Deepgram.APIKey)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"stdout", "/var/log/voicehub.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesBeatFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0o600))
	t.Setenv("VOICEHUB_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
}

func TestLoader_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			called = true
			return nil
		}).
		Load()
	require.NoError(t, err)
	assert.True(t, called)
}

// --- Validate 测试 ---

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, true},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, true},
		{"auth with secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.JWTSecret = "s3cret"
		}, false},
		{"negative budget", func(c *Config) { c.Voice.HistoryTokenBudget = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- DSN 测试 ---

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", Name: "db", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=db sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, User: "u", Password: "p", Name: "db"}
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "voicehub.db"}
	assert.Equal(t, "voicehub.db", lite.DSN())

	unknown := DatabaseConfig{Driver: "oracle"}
	assert.Empty(t, unknown.DSN())
}
