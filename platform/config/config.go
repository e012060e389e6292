// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for the SMTP email channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMSConfig provides settings for the SMS gateway channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
}

// PushConfig provides settings for the push gateway channel.
type PushConfig interface {
	GetPushGatewayURL() string
	GetPushGatewayKey() string
}

// PaymentConfig provides settings for the payment gateway.
type PaymentConfig interface {
	GetPaymentGatewayURL() string
	GetPaymentGatewayKey() string
	GetPaymentGatewayTimeout() time.Duration
	GetPaymentCurrency() string
	GetDisplacementFeePercent() int
}

// DispatchConfig provides settings for the dispatch coordinator.
type DispatchConfig interface {
	GetOfferTTL() time.Duration
	GetUrgentOfferTTL() time.Duration
	GetMaxDispatchCandidates() int
	GetDispatchWeightsFile() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	AppBaseURL             string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromName          string
	EmailFromAddress       string
	SMSGatewayURL          string
	SMSGatewayKey          string
	PushGatewayURL         string
	PushGatewayKey         string
	PaymentGatewayURL      string
	PaymentGatewayKey      string
	PaymentGatewayTimeout  time.Duration
	PaymentCurrency        string
	DisplacementFeePercent int
	OfferTTL               time.Duration
	UrgentOfferTTL         time.Duration
	MaxDispatchCandidates  int
	DispatchWeightsFile    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string { return c.SMSGatewayKey }

// PushConfig implementation
func (c *Config) GetPushGatewayURL() string { return c.PushGatewayURL }
func (c *Config) GetPushGatewayKey() string { return c.PushGatewayKey }

// PaymentConfig implementation
func (c *Config) GetPaymentGatewayURL() string { return c.PaymentGatewayURL }
func (c *Config) GetPaymentGatewayKey() string { return c.PaymentGatewayKey }
func (c *Config) GetPaymentGatewayTimeout() time.Duration {
	return c.PaymentGatewayTimeout
}
func (c *Config) GetPaymentCurrency() string     { return c.PaymentCurrency }
func (c *Config) GetDisplacementFeePercent() int { return c.DisplacementFeePercent }

// DispatchConfig implementation
func (c *Config) GetOfferTTL() time.Duration       { return c.OfferTTL }
func (c *Config) GetUrgentOfferTTL() time.Duration { return c.UrgentOfferTTL }
func (c *Config) GetMaxDispatchCandidates() int    { return c.MaxDispatchCandidates }
func (c *Config) GetDispatchWeightsFile() string   { return c.DispatchWeightsFile }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:             getEnv("APP_BASE_URL", "http://localhost:4200"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EmailEnabled:           emailEnabled && smtpHost != "",
		SMTPHost:               smtpHost,
		SMTPPort:               mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "FieldService"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		SMSGatewayURL:          getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey:          getEnv("SMS_GATEWAY_KEY", ""),
		PushGatewayURL:         getEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayKey:         getEnv("PUSH_GATEWAY_KEY", ""),
		PaymentGatewayURL:      getEnv("PAYMENT_GATEWAY_URL", ""),
		PaymentGatewayKey:      getEnv("PAYMENT_GATEWAY_KEY", ""),
		PaymentGatewayTimeout:  mustDuration(getEnv("PAYMENT_GATEWAY_TIMEOUT", "10s")),
		PaymentCurrency:        getEnv("PAYMENT_CURRENCY", "EUR"),
		DisplacementFeePercent: mustInt(getEnv("DISPLACEMENT_FEE_PERCENT", "25")),
		OfferTTL:               mustDuration(getEnv("DISPATCH_OFFER_TTL", "5m")),
		UrgentOfferTTL:         mustDuration(getEnv("DISPATCH_URGENT_OFFER_TTL", "60s")),
		MaxDispatchCandidates:  mustInt(getEnv("DISPATCH_MAX_CANDIDATES", "10")),
		DispatchWeightsFile:    getEnv("DISPATCH_WEIGHTS_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if emailEnabled && smtpHost != "" && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.DisplacementFeePercent < 0 || cfg.DisplacementFeePercent > 100 {
		return nil, fmt.Errorf("DISPLACEMENT_FEE_PERCENT must be between 0 and 100")
	}
	if cfg.OfferTTL <= 0 || cfg.UrgentOfferTTL <= 0 {
		return nil, fmt.Errorf("dispatch offer TTLs must be positive durations")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
