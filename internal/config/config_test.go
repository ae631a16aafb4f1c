package config

import (
	"testing"
	"time"

	"github.com/kursadbilgin/mail-failover/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PRIMARY_EMAIL", "primary@example.com")
	t.Setenv("PRIMARY_PASSWORD", "primary-secret")
	t.Setenv("BACKUP_EMAIL", "backup@example.com")
	t.Setenv("BACKUP_PASSWORD", "backup-secret")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 3000 {
		t.Errorf("APIPort = %d, want 3000", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.SMTPHost != "smtp.gmail.com" || cfg.SMTPPort != 587 {
		t.Errorf("SMTP = %s:%d, want smtp.gmail.com:587", cfg.SMTPHost, cfg.SMTPPort)
	}
	if cfg.SMTPTimeout != 30*time.Second {
		t.Errorf("SMTPTimeout = %v, want 30s", cfg.SMTPTimeout)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.EscalationThreshold != 4 {
		t.Errorf("EscalationThreshold = %d, want 4", cfg.EscalationThreshold)
	}
	if cfg.CounterBackend != CounterBackendFile {
		t.Errorf("CounterBackend = %s, want file", cfg.CounterBackend)
	}
	if cfg.CounterFile != "attempt_count.txt" {
		t.Errorf("CounterFile = %s, want attempt_count.txt", cfg.CounterFile)
	}
	if cfg.AuditLogFile != "notifications.log" {
		t.Errorf("AuditLogFile = %s, want notifications.log", cfg.AuditLogFile)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("SMTP_TIMEOUT", "5s")
	t.Setenv("COUNTER_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 250ms", cfg.RetryDelay)
	}
	if cfg.SMTPTimeout != 5*time.Second {
		t.Errorf("SMTPTimeout = %v, want 5s", cfg.SMTPTimeout)
	}
	if cfg.CounterBackend != CounterBackendRedis {
		t.Errorf("CounterBackend = %s, want redis", cfg.CounterBackend)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BACKUP_PASSWORD", "  ")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad retry delay", key: "RETRY_DELAY", value: "soon"},
		{name: "negative smtp timeout", key: "SMTP_TIMEOUT", value: "-1s"},
		{name: "zero threshold", key: "ESCALATION_THRESHOLD", value: "0"},
		{name: "bad port", key: "SMTP_PORT", value: "70000"},
		{name: "unknown counter backend", key: "COUNTER_BACKEND", value: "etcd"},
		{name: "redis backend without url", key: "COUNTER_BACKEND", value: "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("REDIS_URL", "")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestConfigIdentities(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	primary := cfg.PrimaryIdentity()
	if primary.Role != domain.RolePrimary || primary.Address != "primary@example.com" || primary.Secret != "primary-secret" {
		t.Fatalf("PrimaryIdentity() = %+v", primary)
	}
	backup := cfg.BackupIdentity()
	if backup.Role != domain.RoleBackup || backup.Address != "backup@example.com" || backup.Secret != "backup-secret" {
		t.Fatalf("BackupIdentity() = %+v", backup)
	}
	if err := primary.Validate(); err != nil {
		t.Fatalf("primary.Validate() error = %v", err)
	}
}
