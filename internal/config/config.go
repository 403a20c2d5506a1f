// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"` // e.g. chrome-extension://<id>
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type PortalConfig struct {
	BaseURL       string        `yaml:"base_url"` // empty -> offline stub portal
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type MailConfig struct {
	SMTPHost string `yaml:"smtp_host"` // empty -> log-only mailer
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SchedulerConfig struct {
	ExpiryInterval         time.Duration `yaml:"expiry_interval"`
	ExpiryBatch            int           `yaml:"expiry_batch"`
	VerificationInterval   time.Duration `yaml:"verification_interval"`
	VerificationStaleAfter time.Duration `yaml:"verification_stale_after"`
	NotificationInterval   time.Duration `yaml:"notification_interval"`
	NotificationWorkers    int           `yaml:"notification_workers"`
}

type SettlementConfig struct {
	RevokeOnRefund bool          `yaml:"revoke_on_refund"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
}

type RateLimitConfig struct {
	LoginPerMinute  int `yaml:"login_per_minute"`
	SettlePerMinute int `yaml:"settle_per_minute"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Admin      AdminConfig      `yaml:"admin"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Security   SecurityConfig   `yaml:"security"`
	Portal     PortalConfig     `yaml:"portal"`
	Mail       MailConfig       `yaml:"mail"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Settlement SettlementConfig `yaml:"settlement"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, fills defaults and validates required fields.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return nil, errors.New("auth.jwt_secret must be at least 32 bytes")
	}
	if cfg.Mail.SMTPHost != "" && cfg.Mail.From == "" {
		return nil, errors.New("mail.from is required when mail.smtp_host is set")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.ReadTimeout = orDuration(cfg.HTTP.ReadTimeout, 15*time.Second)
	cfg.HTTP.WriteTimeout = orDuration(cfg.HTTP.WriteTimeout, 60*time.Second)
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 45*time.Second)
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, 5*time.Minute)
	cfg.Auth.TokenTTL = orDuration(cfg.Auth.TokenTTL, 24*time.Hour)
	cfg.Portal.Timeout = orDuration(cfg.Portal.Timeout, 30*time.Second)
	if cfg.Portal.MaxAttempts <= 0 {
		cfg.Portal.MaxAttempts = 3
	}
	if cfg.Portal.MaxConcurrent <= 0 {
		cfg.Portal.MaxConcurrent = 8
	}
	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = 587
	}
	cfg.Scheduler.ExpiryInterval = orDuration(cfg.Scheduler.ExpiryInterval, time.Hour)
	if cfg.Scheduler.ExpiryBatch <= 0 {
		cfg.Scheduler.ExpiryBatch = 200
	}
	cfg.Scheduler.VerificationInterval = orDuration(cfg.Scheduler.VerificationInterval, 10*time.Minute)
	cfg.Scheduler.VerificationStaleAfter = orDuration(cfg.Scheduler.VerificationStaleAfter, 30*time.Minute)
	cfg.Scheduler.NotificationInterval = orDuration(cfg.Scheduler.NotificationInterval, 2*time.Minute)
	if cfg.Scheduler.NotificationWorkers <= 0 {
		cfg.Scheduler.NotificationWorkers = 4
	}
	cfg.Settlement.LockTTL = orDuration(cfg.Settlement.LockTTL, 30*time.Second)
	if cfg.RateLimit.LoginPerMinute <= 0 {
		cfg.RateLimit.LoginPerMinute = 10
	}
	if cfg.RateLimit.SettlePerMinute <= 0 {
		cfg.RateLimit.SettlePerMinute = 5
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
