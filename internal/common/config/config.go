// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Queue         QueueConfig             `mapstructure:"queue"`
	CRM           CRMConfig               `mapstructure:"crm"`
	Telegram      TelegramConfig          `mapstructure:"telegram"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	ListenAddr        string `mapstructure:"listen_addr"`
	MetricsListenAddr string `mapstructure:"metrics_listen_addr"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig holds the knobs for the Redis-backed job queue and its worker.
type QueueConfig struct {
	Prefix          string `mapstructure:"prefix"`
	Concurrency     int    `mapstructure:"concurrency"`
	RatePerSecond   int    `mapstructure:"rate_per_second"`
	DefaultAttempts int    `mapstructure:"default_attempts"`
	BackoffBase     int    `mapstructure:"backoff_base"`    // milliseconds
	PollInterval    int    `mapstructure:"poll_interval"`   // milliseconds
	StalledTimeout  int    `mapstructure:"stalled_timeout"` // milliseconds
	CompletedTTL    int    `mapstructure:"completed_ttl"`   // hours
	FailedTTL       int    `mapstructure:"failed_ttl"`      // hours
}

// WorkerConfig holds the core settings applicable to every queue handler.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds, 0 keeps the handler default
}

// CRMConfig holds settings for the external CRM integration.
type CRMConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"`     // milliseconds
	MaxRetries int    `mapstructure:"max_retries"` // inline attempt retries
}

// TelegramConfig holds the bot credentials and destination channels.
type TelegramConfig struct {
	BotToken       string `mapstructure:"bot_token"`
	LeadChatID     string `mapstructure:"lead_chat_id"`
	ActivityChatID string `mapstructure:"activity_chat_id"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
}

// NotificationConfig holds settings for the send-notification worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
