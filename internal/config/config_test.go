package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
mysql:
  host: db.internal
  port: 3307
  username: hiring
  password: secret
  database: hiring_pipeline
redis:
  address: redis.internal:6379
server:
  address: ":9090"
  api_key: hr-secret
scorer:
  model: qwen-plus
  score_timeout: 2s
  fallback_score: 75
  qpm: 600
scheduler:
  poll_interval: 1s
  batch_size: 3
pipeline:
  absent_oa_counts_as_zero: true
timezone: Asia/Kolkata
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "hr-secret", cfg.Server.APIKey)
	assert.Equal(t, "2s", cfg.Scorer.ScoreTimeout)
	assert.Equal(t, 75, cfg.Scorer.FallbackScore)
	assert.Equal(t, 600, cfg.Scorer.QPM)
	assert.Equal(t, "1s", cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Scheduler.BatchSize)
	assert.True(t, cfg.Pipeline.AbsentOACountsAsZero)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mysql:\n  host: localhost\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
	assert.Equal(t, "5s", cfg.Scheduler.PollInterval)
	assert.Equal(t, 10, cfg.Scheduler.BatchSize)
	assert.Equal(t, "3s", cfg.Scorer.ScoreTimeout)
	assert.Equal(t, 50, cfg.Scorer.FallbackScore)
	assert.Equal(t, "hiring.email.exchange", cfg.RabbitMQ.EmailEventsExchange)
	assert.Equal(t, "q.hiring_email", cfg.RabbitMQ.EmailQueue)
	assert.False(t, cfg.Pipeline.AbsentOACountsAsZero)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scorer:\n  api_key: from_file\n"), 0644))

	t.Setenv("SCORER_API_KEY", "from_env")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Scorer.APIKey)
}

func TestLoadConfigMissingFileInTest(t *testing.T) {
	// 测试环境下，找不到配置文件时应返回默认配置
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "localhost", cfg.MySQL.Host)
	assert.Equal(t, "hiring_pipeline", cfg.MySQL.Database)
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, GetDuration("3s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("garbage", time.Minute))
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.MySQL.Host)

	// 不允许覆盖已有文件
	assert.Error(t, CreateSampleConfig(path))
}
