package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/inletmail/inlet/internal/mail"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server ports
	APIPort    int
	SMTPPort   int
	SMTPDomain string

	// Routing
	DefaultDomain        string
	RecipientHeaderOrder string
	ProcessingEnabled    bool
	LogUnmatched         bool

	// Spool
	SpoolPath        string
	SleepDuration    time.Duration
	ArchiveProcessed bool

	// Jabber transport
	JabberHost     string
	JabberUser     string
	JabberPassword string

	// Queue transport
	RedisAddr      string
	QueueNamespace string

	// IMAP ingest (optional)
	IMAPHost     string
	IMAPPort     int
	IMAPUser     string
	IMAPPassword string
	IMAPFolder   string
	IMAPUseTLS   bool

	// Logging
	LogLevel string

	// Security
	APIKey         string
	AllowedOrigins string
	AppEnv         string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}

	// Required: DATABASE_URL
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	var err error
	if cfg.APIPort, err = intEnv("API_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", 2525); err != nil {
		return nil, err
	}
	cfg.SMTPDomain = stringEnv("SMTP_DOMAIN", "localhost")

	cfg.DefaultDomain = stringEnv("DEFAULT_DOMAIN", fallbackDomain())
	cfg.RecipientHeaderOrder = stringEnv("RECIPIENT_HEADER_ORDER",
		strings.Join(mail.DefaultRecipientOrder, ","))
	if cfg.ProcessingEnabled, err = boolEnv("PROCESSING_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.LogUnmatched, err = boolEnv("LOG_UNMATCHED", false); err != nil {
		return nil, err
	}

	cfg.SpoolPath = stringEnv("SPOOL_PATH", "./spool")
	if cfg.SleepDuration, err = durationEnv("SLEEP_DURATION", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ArchiveProcessed, err = boolEnv("ARCHIVE_PROCESSED", false); err != nil {
		return nil, err
	}

	cfg.JabberHost = os.Getenv("JABBER_HOST")
	cfg.JabberUser = os.Getenv("JABBER_USER")
	cfg.JabberPassword = os.Getenv("JABBER_PASSWORD")

	cfg.RedisAddr = stringEnv("REDIS_ADDR", "localhost:6379")
	cfg.QueueNamespace = stringEnv("QUEUE_NAMESPACE", "resque")

	cfg.IMAPHost = os.Getenv("IMAP_HOST")
	if cfg.IMAPPort, err = intEnv("IMAP_PORT", 0); err != nil {
		return nil, err
	}
	cfg.IMAPUser = os.Getenv("IMAP_USER")
	cfg.IMAPPassword = os.Getenv("IMAP_PASSWORD")
	cfg.IMAPFolder = stringEnv("IMAP_FOLDER", "INBOX")
	if cfg.IMAPUseTLS, err = boolEnv("IMAP_TLS", true); err != nil {
		return nil, err
	}

	cfg.LogLevel = stringEnv("LOG_LEVEL", "info")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.AppEnv = stringEnv("APP_ENV", "development")

	return cfg, nil
}

// LoadWithValidation loads and validates configuration, failing fast on errors
func LoadWithValidation() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProduction(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL cannot be empty")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("APIPort must be between 1 and 65535")
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTPPort must be between 1 and 65535")
	}
	if c.SpoolPath == "" {
		return fmt.Errorf("SpoolPath cannot be empty")
	}
	if c.SleepDuration <= 0 {
		return fmt.Errorf("SleepDuration must be positive")
	}
	return nil
}

// ValidateProduction performs additional validation for production environment
func (c *Config) ValidateProduction() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required in production")
	}

	if c.AllowedOrigins == "" {
		return fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}

	if strings.Contains(c.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard (*) origins are not allowed in production")
	}

	if strings.Contains(c.DatabaseURL, "sslmode=disable") {
		return fmt.Errorf("sslmode=disable is not allowed in production")
	}

	return nil
}

// HeaderOrder returns the configured recipient header priority as a list.
func (c *Config) HeaderOrder() []string {
	parts := strings.Split(c.RecipientHeaderOrder, ",")
	order := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			order = append(order, trimmed)
		}
	}
	if len(order) == 0 {
		return mail.DefaultRecipientOrder
	}
	return order
}

// Origins returns the allowed origins as a list.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogConfig logs configuration values (excluding secrets)
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.Int("api_port", c.APIPort),
		slog.Int("smtp_port", c.SMTPPort),
		slog.String("smtp_domain", c.SMTPDomain),
		slog.String("default_domain", c.DefaultDomain),
		slog.String("recipient_header_order", c.RecipientHeaderOrder),
		slog.Bool("processing_enabled", c.ProcessingEnabled),
		slog.Bool("log_unmatched", c.LogUnmatched),
		slog.String("spool_path", c.SpoolPath),
		slog.Duration("sleep_duration", c.SleepDuration),
		slog.Bool("archive_processed", c.ArchiveProcessed),
		slog.Bool("jabber_configured", c.JabberHost != ""),
		slog.Bool("imap_configured", c.IMAPHost != ""),
		slog.String("redis_addr", c.RedisAddr),
		slog.String("queue_namespace", c.QueueNamespace),
		slog.String("log_level", c.LogLevel),
		slog.String("app_env", c.AppEnv),
		slog.Bool("api_key_set", c.APIKey != ""),
	)
}

// fallbackDomain is the domain applied to rules created without one when
// DEFAULT_DOMAIN is not set. The host name matches what a local MTA would
// append to unqualified addresses.
func fallbackDomain() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "localhost"
}

func stringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}

func boolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	return parsed, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return parsed, nil
}
