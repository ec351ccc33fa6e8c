package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email delivery
	EmailProvider  string
	SendGridAPIKey string
	SenderEmail    string
	SenderName     string
	EmailReplyTo   string

	// Calendar
	CalendarTimezone      string
	BusinessHourStart     int
	BusinessHourEnd       int
	SlotDurationMinutes   int
	IncludeWeekends       bool
	AvailabilityDaysAhead int

	// Booking and confirmation retry bounds
	BookingMaxAttempts  int
	EmailMaxAttempts    int
	EmailRetryBaseDelay time.Duration
	EmailRetryMaxDelay  time.Duration
	ReservationTTL      time.Duration

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8000"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("APP_URL", "http://localhost:8000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		SenderEmail:    getEnv("SENDER_EMAIL", ""),
		SenderName:     getEnv("SENDER_NAME", "Legal Intake Team"),
		EmailReplyTo:   getEnv("EMAIL_REPLY_TO", ""),

		CalendarTimezone:      getEnv("CALENDAR_TZ", "UTC"),
		BusinessHourStart:     getEnvAsInt("BUSINESS_HOUR_START", 9),
		BusinessHourEnd:       getEnvAsInt("BUSINESS_HOUR_END", 17),
		SlotDurationMinutes:   getEnvAsInt("SLOT_DURATION_MINUTES", 30),
		IncludeWeekends:       getEnvAsBool("INCLUDE_WEEKENDS", false),
		AvailabilityDaysAhead: getEnvAsInt("AVAILABILITY_DAYS_AHEAD", 14),

		BookingMaxAttempts:  getEnvAsInt("BOOKING_MAX_ATTEMPTS", 3),
		EmailMaxAttempts:    getEnvAsInt("EMAIL_MAX_ATTEMPTS", 3),
		EmailRetryBaseDelay: getEnvAsDuration("EMAIL_RETRY_BASE_DELAY", 500*time.Millisecond),
		EmailRetryMaxDelay:  getEnvAsDuration("EMAIL_RETRY_MAX_DELAY", 5*time.Second),
		ReservationTTL:      getEnvAsDuration("RESERVATION_TTL", 30*time.Second),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// Location resolves the calendar timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.CalendarTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
