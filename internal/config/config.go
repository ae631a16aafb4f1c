package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/mail-failover/internal/domain"
)

const (
	CounterBackendFile  = "file"
	CounterBackendRedis = "redis"
)

type Config struct {
	PrimaryEmail    string `env:"PRIMARY_EMAIL,required=true"`
	PrimaryPassword string `env:"PRIMARY_PASSWORD,required=true"`
	BackupEmail     string `env:"BACKUP_EMAIL,required=true"`
	BackupPassword  string `env:"BACKUP_PASSWORD,required=true"`
	AdminEmail      string `env:"ADMIN_EMAIL,required=true"`

	SMTPHost       string `env:"SMTP_HOST,default=smtp.gmail.com"`
	SMTPPort       int    `env:"SMTP_PORT,default=587"`
	SMTPTimeoutRaw string `env:"SMTP_TIMEOUT,default=30s"`

	RetryDelayRaw       string `env:"RETRY_DELAY,default=1s"`
	EscalationThreshold int    `env:"ESCALATION_THRESHOLD,default=4"`

	CounterBackend string `env:"COUNTER_BACKEND,default=file"`
	CounterFile    string `env:"COUNTER_FILE,default=attempt_count.txt"`
	AuditLogFile   string `env:"AUDIT_LOG_FILE,default=notifications.log"`

	RedisURL        string `env:"REDIS_URL"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	RabbitMQURL     string `env:"RABBITMQ_URL"`
	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL"`

	APIPort  int    `env:"API_PORT,default=3000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	SMTPTimeout time.Duration
	RetryDelay  time.Duration
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	required := map[string]*string{
		"PRIMARY_EMAIL":    &c.PrimaryEmail,
		"PRIMARY_PASSWORD": &c.PrimaryPassword,
		"BACKUP_EMAIL":     &c.BackupEmail,
		"BACKUP_PASSWORD":  &c.BackupPassword,
		"ADMIN_EMAIL":      &c.AdminEmail,
	}
	for name, value := range required {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	var err error
	if c.SMTPTimeout, err = parseDuration("SMTP_TIMEOUT", c.SMTPTimeoutRaw); err != nil {
		return err
	}
	if c.RetryDelay, err = parseDuration("RETRY_DELAY", c.RetryDelayRaw); err != nil {
		return err
	}

	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTPPort)
	}
	if c.EscalationThreshold < 1 {
		return fmt.Errorf("ESCALATION_THRESHOLD must be >= 1, got %d", c.EscalationThreshold)
	}

	c.CounterBackend = strings.ToLower(strings.TrimSpace(c.CounterBackend))
	switch c.CounterBackend {
	case CounterBackendFile:
	case CounterBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when COUNTER_BACKEND=redis")
		}
	default:
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q, got %q", CounterBackendFile, CounterBackendRedis, c.CounterBackend)
	}

	return nil
}

func parseDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

// PrimaryIdentity returns the primary sender credential.
func (c *Config) PrimaryIdentity() domain.Identity {
	return domain.Identity{Role: domain.RolePrimary, Address: c.PrimaryEmail, Secret: c.PrimaryPassword}
}

// BackupIdentity returns the backup sender credential.
func (c *Config) BackupIdentity() domain.Identity {
	return domain.Identity{Role: domain.RoleBackup, Address: c.BackupEmail, Secret: c.BackupPassword}
}
