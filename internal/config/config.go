package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	SiteURL         string
	CORSAllowOrigin string
	MetricsEnabled  bool
	ShutdownTimeout time.Duration
	CatalogPath     string

	// Admission control
	TrustedProxyCount int
	RateLimitWindow   time.Duration
	RateLimitMax      int
	RateLimitStore    string
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool

	// CallTouch webhook
	CallTouchHost    string
	CallTouchAPIPath string
	CallTouchSiteID  string
	CallTouchTimeout time.Duration

	// Lead e-mail notifications
	LeadNotifyEmail   string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	EmailFromName     string
	SESFromEmail      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	siteURL := getEnv("SITE_URL", "http://localhost:3000")
	return &Config{
		Port:            getEnv("PORT", "3001"),
		Env:             getEnv("ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		SiteURL:         siteURL,
		CORSAllowOrigin: getEnv("CORS_ALLOWED_ORIGIN", strings.TrimRight(siteURL, "/")),
		MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		CatalogPath:     getEnv("CATALOG_PATH", ""),

		TrustedProxyCount: getEnvAsInt("TRUSTED_PROXY_COUNT", 1),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:      getEnvAsInt("RATE_LIMIT_MAX", 1),
		RateLimitStore:    strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_STORE", "memory"))),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),

		CallTouchHost:    getEnv("CALLTOUCH_HOST", "api.calltouch.ru"),
		CallTouchAPIPath: getEnv("CALLTOUCH_API_PATH", "calls-service/RestAPI/requests"),
		CallTouchSiteID:  getEnv("CALLTOUCH_SITE_ID", ""),
		CallTouchTimeout: getEnvAsDuration("CALLTOUCH_TIMEOUT", 10*time.Second),

		LeadNotifyEmail:   getEnv("LEAD_NOTIFY_EMAIL", ""),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Заявки с сайта"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// CallTouchConfigured reports whether enough is set to reach the webhook.
func (c *Config) CallTouchConfigured() bool {
	return strings.TrimSpace(c.CallTouchHost) != "" && strings.TrimSpace(c.CallTouchSiteID) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
