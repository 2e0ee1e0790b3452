// Package config loads the fiscalwatch configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivossos/fiscalwatch/internal/domain"
)

// Load reads config from a YAML file onto the defaults, then applies
// FISCALWATCH_* environment variable overrides. A missing file is not an
// error; the defaults describe a working single-node deployment. A .env file
// in the working directory is loaded first if present.
func Load(path string) (*domain.Config, error) {
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("FISCALWATCH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("FISCALWATCH_PORT"); v > 0 {
		cfg.Server.Port = v
	}

	if v := os.Getenv("FISCALWATCH_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("FISCALWATCH_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("FISCALWATCH_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := envInt("FISCALWATCH_POSTGRES_PORT"); v > 0 {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("FISCALWATCH_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("FISCALWATCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("FISCALWATCH_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("FISCALWATCH_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("FISCALWATCH_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("FISCALWATCH_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("FISCALWATCH_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("FISCALWATCH_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("FISCALWATCH_KAFKA_BROKERS"); v != "" {
		cfg.EventBus.KafkaBrokers = strings.Split(v, ",")
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramBotToken = v
		cfg.Notify.TelegramEnabled = true
	}
	if v := envInt64("TELEGRAM_CHAT_ID"); v != 0 {
		cfg.Notify.TelegramChatID = v
	}
	if v := os.Getenv("FISCALWATCH_SMTP_USERNAME"); v != "" {
		cfg.Notify.SMTPUsername = v
	}
	if v := os.Getenv("FISCALWATCH_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTPPassword = v
	}

	if v := os.Getenv("FISCALWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FISCALWATCH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks that the configuration is internally consistent.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("repository.driver must be sqlite or postgres, got %q", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.type must be memory or redis, got %q", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel", "nats", "kafka":
	default:
		return fmt.Errorf("event_bus.type must be channel, nats or kafka, got %q", cfg.EventBus.Type)
	}
	if cfg.EventBus.Type == "kafka" && len(cfg.EventBus.KafkaBrokers) == 0 {
		return fmt.Errorf("event_bus.kafka_brokers is required for the kafka bus")
	}

	if cfg.Notify.TelegramEnabled && cfg.Notify.TelegramBotToken == "" {
		return fmt.Errorf("notify.telegram_bot_token is required when telegram is enabled")
	}
	if cfg.Notify.EmailEnabled && len(cfg.Notify.EmailRecipients) == 0 {
		return fmt.Errorf("notify.email_recipients is required when email is enabled")
	}

	th := cfg.Thresholds
	if th.OverpricingPercentage <= 0 {
		return fmt.Errorf("thresholds.overpricing_percentage must be positive")
	}
	if th.SplitOrderThreshold <= 0 {
		return fmt.Errorf("thresholds.split_order_threshold must be positive")
	}
	if th.SupplierConcentrationThreshold <= 0 || th.SupplierConcentrationThreshold >= 1 {
		return fmt.Errorf("thresholds.supplier_concentration_threshold must be in (0, 1)")
	}
	if th.EmergencyRecurrenceDays <= 0 {
		return fmt.Errorf("thresholds.emergency_recurrence_days must be positive")
	}
	if th.PayrollVariationThreshold <= 0 {
		return fmt.Errorf("thresholds.payroll_variation_threshold must be positive")
	}

	return nil
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envInt64(name string) int64 {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
