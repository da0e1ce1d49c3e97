// internal/common/config/loader.go
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

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like CRM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if absent
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the usual locations, falling back to the
// process environment when none is found.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credential fields straight from the environment
// when the YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.CRM.BaseURL == "" {
		if val := os.Getenv("CRM_BASE_URL"); val != "" {
			cfg.CRM.BaseURL = val
		}
	}
	if cfg.CRM.APIKey == "" {
		if val := os.Getenv("CRM_API_KEY"); val != "" {
			cfg.CRM.APIKey = val
		}
	}

	if cfg.Telegram.BotToken == "" {
		if val := os.Getenv("TELEGRAM_BOT_TOKEN"); val != "" {
			cfg.Telegram.BotToken = val
		}
	}
	if cfg.Telegram.LeadChatID == "" {
		if val := os.Getenv("TELEGRAM_LEAD_CHAT_ID"); val != "" {
			cfg.Telegram.LeadChatID = val
		}
	}
	if cfg.Telegram.ActivityChatID == "" {
		if val := os.Getenv("TELEGRAM_ACTIVITY_CHAT_ID"); val != "" {
			cfg.Telegram.ActivityChatID = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":3000"
	}
	if cfg.HTTP.MetricsListenAddr == "" {
		cfg.HTTP.MetricsListenAddr = ":8080"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Queue defaults mirror the delivery contract: 3 attempts, 1s base
	// backoff, 5 concurrent handlers, 10 jobs/second.
	if cfg.Queue.Prefix == "" {
		cfg.Queue.Prefix = "leadpipe"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 5
	}
	if cfg.Queue.RatePerSecond == 0 {
		cfg.Queue.RatePerSecond = 10
	}
	if cfg.Queue.DefaultAttempts == 0 {
		cfg.Queue.DefaultAttempts = 3
	}
	if cfg.Queue.BackoffBase == 0 {
		cfg.Queue.BackoffBase = 1000
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 250
	}
	if cfg.Queue.StalledTimeout == 0 {
		cfg.Queue.StalledTimeout = 60000
	}
	if cfg.Queue.CompletedTTL == 0 {
		cfg.Queue.CompletedTTL = 24
	}
	if cfg.Queue.FailedTTL == 0 {
		cfg.Queue.FailedTTL = 24 * 7
	}

	if cfg.CRM.Timeout == 0 {
		cfg.CRM.Timeout = 15000
	}
	if cfg.CRM.MaxRetries == 0 {
		cfg.CRM.MaxRetries = 2
	}

	if cfg.Telegram.Timeout == 0 {
		cfg.Telegram.Timeout = 10000
	}

	// Every known handler runs unless the YAML disables it by name.
	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConfig)
	}
	for _, name := range []string{"crm-sync", "log-activity", "send-notification"} {
		if _, ok := cfg.Workers[name]; !ok {
			cfg.Workers[name] = WorkerConfig{Enabled: true}
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields. Missing integration
// credentials fail here, at startup, rather than per job.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.CRM.Provider != "" {
		if cfg.CRM.BaseURL == "" {
			return fmt.Errorf("crm.base_url is required when crm.provider is set")
		}
		if cfg.CRM.APIKey == "" {
			return fmt.Errorf("crm.api_key is required when crm.provider is set")
		}
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.LeadChatID == "" {
		return fmt.Errorf("telegram.lead_chat_id is required when telegram.bot_token is set")
	}

	if cfg.Notifications.Email.Enabled {
		if cfg.Notifications.Email.FromEmail == "" || cfg.Notifications.Email.ToEmail == "" {
			return fmt.Errorf("notifications.email.from_email and to_email are required when email is enabled")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
