package domain

import "time"

// Config holds the complete fiscalwatch configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`

	// Thresholds parameterize the anomaly detectors.
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// Thresholds is the immutable set of named detector parameters. It is passed
// by value into the dispatcher and each detector; there is no process-wide
// mutable settings object.
type Thresholds struct {
	// OverpricingPercentage flags unit prices above the market reference by
	// more than this percentage (e.g. 25 means 25%).
	OverpricingPercentage float64 `json:"overpricing_percentage" yaml:"overpricing_percentage"`

	// SplitOrderThreshold is the procurement ceiling (currency amount) that
	// split purchases appear designed to stay under.
	SplitOrderThreshold float64 `json:"split_order_threshold" yaml:"split_order_threshold"`

	// SupplierConcentrationThreshold is the maximum tolerated share of total
	// spend for a single supplier (fraction, e.g. 0.70).
	SupplierConcentrationThreshold float64 `json:"supplier_concentration_threshold" yaml:"supplier_concentration_threshold"`

	// EmergencyRecurrenceDays is the window within which repeated emergency
	// purchases from one supplier are suspicious.
	EmergencyRecurrenceDays int `json:"emergency_recurrence_days" yaml:"emergency_recurrence_days"`

	// PayrollVariationThreshold is the minimum relative deviation from the
	// position mean for a payment to count as an outlier (fraction).
	PayrollVariationThreshold float64 `json:"payroll_variation_threshold" yaml:"payroll_variation_threshold"`
}

// DefaultThresholds returns the standard detector parameters used by the
// Capivari deployment.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OverpricingPercentage:          25,
		SplitOrderThreshold:            8000,
		SupplierConcentrationThreshold: 0.70,
		EmergencyRecurrenceDays:        30,
		PayrollVariationThreshold:      0.30,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramEnabled  bool     `json:"telegramEnabled" yaml:"telegram_enabled"`
	TelegramBotToken string   `json:"-" yaml:"telegram_bot_token"`
	TelegramChatID   int64    `json:"telegramChatId" yaml:"telegram_chat_id"`
	EmailEnabled     bool     `json:"emailEnabled" yaml:"email_enabled"`
	SMTPHost         string   `json:"smtpHost" yaml:"smtp_host"`
	SMTPPort         int      `json:"smtpPort" yaml:"smtp_port"`
	SMTPUsername     string   `json:"-" yaml:"smtp_username"`
	SMTPPassword     string   `json:"-" yaml:"smtp_password"`
	EmailRecipients  []string `json:"emailRecipients" yaml:"email_recipients"`

	// WeeklyDigestCron schedules the digest job (cron spec with seconds).
	WeeklyDigestCron string `json:"weeklyDigestCron" yaml:"weekly_digest_cron"`
}

// DefaultConfig returns a configuration suitable for a single-node deployment:
// SQLite storage, in-process cache and channel event bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Thresholds: DefaultThresholds(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./data/fiscalwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Notify: NotifyConfig{
			SMTPHost:         "smtp.gmail.com",
			SMTPPort:         587,
			WeeklyDigestCron: "0 0 8 * * 1", // Monday 08:00
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fiscalwatch",
		},
	}
}
