package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the fallback signing secret. Production refuses to start with it.
const DevJWTSecret = "papichulo_dev_secret_change_me"

// Config holds runtime settings for the API server.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DBDriver    string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	// AdminAPIKey enables the X-Admin-Key bypass when non-empty.
	AdminAPIKey string

	CORSAllowedOrigins []string

	OTPDebug          bool
	StrictTransitions bool

	StoreLatitude    float64
	StoreLongitude   float64
	DeliveryRadiusKm float64

	SMSGatewayURL   string
	SMSGatewayToken string

	MenuSeedPath  string
	AdminEmail    string
	AdminPassword string

	RateLimitRPS   float64
	RateLimitBurst int

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honored.
	// Empty means the socket peer is the client.
	TrustedProxies []string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not loaded", "error", err)
	}

	env := strings.ToLower(getEnv("APP_ENV", "development"))

	return &Config{
		Port:     getEnv("PORT", "3001"),
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", "papichulo.db"),

		JWTSecret: getEnv("JWT_SECRET", DevJWTSecret),
		TokenTTL:  time.Duration(getEnvInt("JWT_TTL_HOURS", 24*7)) * time.Hour,

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		OTPDebug:          getEnvBool("OTP_DEBUG", env != "production"),
		StrictTransitions: getEnvBool("STRICT_TRANSITIONS", false),

		StoreLatitude:    getEnvFloat("STORE_LATITUDE", 17.385044),
		StoreLongitude:   getEnvFloat("STORE_LONGITUDE", 78.486671),
		DeliveryRadiusKm: getEnvFloat("DELIVERY_RADIUS_KM", 10),

		SMSGatewayURL:   os.Getenv("SMS_GATEWAY_URL"),
		SMSGatewayToken: os.Getenv("SMS_GATEWAY_TOKEN"),

		MenuSeedPath:  os.Getenv("MENU_SEED_PATH"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
	}
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ExposeDebugOTP reports whether generated OTP codes may be echoed to the client.
func (c *Config) ExposeDebugOTP() bool {
	return !c.IsProduction() && c.OTPDebug
}

// Validate rejects settings that are unsafe to run with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.IsProduction() && c.JWTSecret == DevJWTSecret {
		return errors.New("JWT_SECRET must be overridden in production")
	}
	if c.TokenTTL <= 0 {
		return errors.New("JWT_TTL_HOURS must be positive")
	}
	if c.DeliveryRadiusKm <= 0 {
		return errors.New("DELIVERY_RADIUS_KM must be positive")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.New("DB_DRIVER must be sqlite or postgres")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: invalid entry %q", p)
			}
		}
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
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

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
