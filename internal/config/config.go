package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Dataset struct {
		Path string `yaml:"path"` // CSV с колонками message,spam
	} `yaml:"dataset"`

	Artifacts struct {
		Backend string `yaml:"backend"` // "file" or "database"
		Dir     string `yaml:"dir"`
	} `yaml:"artifacts"`

	Database struct {
		Path string `yaml:"path"` // SQLite path or PostgreSQL URL
		Type string `yaml:"type"` // "sqlite" or "postgres"
	} `yaml:"database"`

	Classifier struct {
		TestSize      float64 `yaml:"test_size"`
		Alpha         float64 `yaml:"alpha"`
		MinExamples   int     `yaml:"min_examples"`
		SplitAttempts int     `yaml:"split_attempts"`
	} `yaml:"classifier"`

	Telegram Telegram `yaml:"telegram"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Settings struct {
		Path string `yaml:"path"` // файл с режимом работы бота
	} `yaml:"settings"`

	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
}

// Telegram configures the moderation bot.
type Telegram struct {
	Enabled        bool          `yaml:"enabled"`
	Token          string        `yaml:"token"`
	WatchedChatIDs []int64       `yaml:"watched_chat_ids"` // пусто - все чаты
	VoteTimeout    time.Duration `yaml:"vote_timeout"`
	HistorySize    int           `yaml:"history_size"`
	Debug          bool          `yaml:"debug"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.setDefaults()

	// Expand environment variables in secrets
	config.Telegram.Token = os.ExpandEnv(config.Telegram.Token)
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.Database.Path = os.ExpandEnv(config.Database.Path)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	if c.Dataset.Path == "" {
		c.Dataset.Path = "./dataset/spam.csv"
	}

	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "file"
	}

	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "./checkpoints"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/moderator.db"
	}

	if c.Classifier.TestSize == 0 {
		c.Classifier.TestSize = 0.2
	}

	if c.Classifier.Alpha == 0 {
		c.Classifier.Alpha = 1.0
	}

	if c.Classifier.MinExamples == 0 {
		c.Classifier.MinExamples = 2
	}

	if c.Classifier.SplitAttempts == 0 {
		c.Classifier.SplitAttempts = 10
	}

	if c.Telegram.VoteTimeout == 0 {
		c.Telegram.VoteTimeout = 30 * time.Second
	}

	if c.Telegram.HistorySize == 0 {
		c.Telegram.HistorySize = 100
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.Settings.Path == "" {
		c.Settings.Path = "./configs/settings.yml"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects values the application cannot start with.
func (c *Config) Validate() error {
	switch c.Artifacts.Backend {
	case "file", "database":
	default:
		return fmt.Errorf("invalid artifacts.backend %q: must be file or database", c.Artifacts.Backend)
	}

	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.type %q: must be sqlite or postgres", c.Database.Type)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}

	if c.Classifier.TestSize <= 0 || c.Classifier.TestSize >= 1 {
		return fmt.Errorf("classifier.test_size must be between 0 and 1, got %g", c.Classifier.TestSize)
	}
	if c.Classifier.Alpha <= 0 {
		return fmt.Errorf("classifier.alpha must be positive, got %g", c.Classifier.Alpha)
	}
	if c.Classifier.MinExamples < 2 {
		return fmt.Errorf("classifier.min_examples must be at least 2, got %d", c.Classifier.MinExamples)
	}
	if c.Classifier.SplitAttempts < 1 {
		return fmt.Errorf("classifier.split_attempts must be positive, got %d", c.Classifier.SplitAttempts)
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram is enabled")
	}
	if c.Telegram.HistorySize < 0 {
		return fmt.Errorf("telegram.history_size must not be negative")
	}

	return nil
}
