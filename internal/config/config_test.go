package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: \"9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "./dataset/spam.csv", cfg.Dataset.Path)
	assert.Equal(t, "file", cfg.Artifacts.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 0.2, cfg.Classifier.TestSize)
	assert.Equal(t, 1.0, cfg.Classifier.Alpha)
	assert.Equal(t, 2, cfg.Classifier.MinExamples)
	assert.Equal(t, 30*time.Second, cfg.Telegram.VoteTimeout)
	assert.Equal(t, 100, cfg.Telegram.HistorySize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123:abc")
	t.Setenv("TEST_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(writeConfig(t, `
telegram:
  enabled: true
  token: "${TEST_BOT_TOKEN}"
  watched_chat_ids: [-100123, 42]
  vote_timeout: 45s
auth:
  jwt_secret: "$TEST_JWT_SECRET"
`))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []int64{-100123, 42}, cfg.Telegram.WatchedChatIDs)
	assert.Equal(t, 45*time.Second, cfg.Telegram.VoteTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "artifacts backend", content: "artifacts:\n  backend: s3\n"},
		{name: "database type", content: "database:\n  type: mysql\n"},
		{name: "log level", content: "logging:\n  level: verbose\n"},
		{name: "test size", content: "classifier:\n  test_size: 1.5\n"},
		{name: "min examples", content: "classifier:\n  min_examples: 1\n"},
		{name: "telegram without token", content: "telegram:\n  enabled: true\n"},
		{name: "not yaml", content: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_RepositoryConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Telegram.Enabled)
}
