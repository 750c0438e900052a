// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	Lockout   LockoutConfig   `koanf:"lockout"`
	Password  PasswordConfig  `koanf:"password"`
	Seed      SeedConfig      `koanf:"seed"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// TrustedProxies lists the CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// TCP peer is always the client.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// JWTConfig holds the symmetric signing material and token lifetimes.
// Issuer and Audience are only enforced when non-empty.
type JWTConfig struct {
	Secret                     string `koanf:"secret"`
	Issuer                     string `koanf:"issuer"`
	Audience                   string `koanf:"audience"`
	ExpirationMinutes          int    `koanf:"expiration_minutes"`
	RefreshTokenExpirationDays int    `koanf:"refresh_token_expiration_days"`
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenExpirationDays) * 24 * time.Hour
}

type LockoutConfig struct {
	Enabled           bool          `koanf:"enabled"`
	MaxFailedAttempts int           `koanf:"max_failed_attempts"`
	Duration          time.Duration `koanf:"duration"`
}

type PasswordConfig struct {
	RequiredLength         int  `koanf:"required_length"`
	RequireDigit           bool `koanf:"require_digit"`
	RequireLowercase       bool `koanf:"require_lowercase"`
	RequireUppercase       bool `koanf:"require_uppercase"`
	RequireNonAlphanumeric bool `koanf:"require_non_alphanumeric"`
	MinStrengthScore       int  `koanf:"min_strength_score"`
}

type SeedConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// MinSecretLength is the HMAC-SHA-256 key size in bytes.
const MinSecretLength = 32

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		_, statErr := os.Stat(configPath)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		case !errors.Is(statErr, fs.ErrNotExist):
			return nil, fmt.Errorf("stat config file: %w", statErr)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if !k.Exists("seed.enabled") {
		c.Seed.Enabled = c.IsDevelopment()
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Flight Scheduly Auth",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",
		"server.trusted_proxies":  []string{},

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.issuer":                        "",
		"jwt.audience":                      "",
		"jwt.expiration_minutes":            60,
		"jwt.refresh_token_expiration_days": 7,

		"lockout.enabled":             true,
		"lockout.max_failed_attempts": 5,
		"lockout.duration":            "15m",

		"password.required_length":          6,
		"password.require_digit":            true,
		"password.require_lowercase":        true,
		"password.require_uppercase":        true,
		"password.require_non_alphanumeric": false,
		"password.min_strength_score":       0,

		"seed.admin_email":    "admin@flightscheduling.com",
		"seed.admin_password": "Admin123!",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "flightscheduly-auth",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"TRUSTED_PROXIES":             "server.trusted_proxies",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"JWT_SECRET":                  "jwt.secret",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"JWT_EXPIRATION_MINUTES":      "jwt.expiration_minutes",
	"JWT_REFRESH_EXPIRATION_DAYS": "jwt.refresh_token_expiration_days",
	"LOCKOUT_ENABLED":             "lockout.enabled",
	"LOCKOUT_MAX_ATTEMPTS":        "lockout.max_failed_attempts",
	"LOCKOUT_DURATION":            "lockout.duration",
	"SEED_ENABLED":                "seed.enabled",
	"SEED_ADMIN_EMAIL":            "seed.admin_email",
	"SEED_ADMIN_PASSWORD":         "seed.admin_password",
	"METRICS_ENABLED":             "metrics.enabled",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

// listEnvKeys are comma separated in the environment.
var listEnvKeys = map[string]bool{
	"server.trusted_proxies": true,
}

func envValue(name, value string) (string, any) {
	key, ok := envKeyMap[name]
	if !ok {
		return "", nil
	}
	if listEnvKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWT.Secret) < MinSecretLength {
		return fmt.Errorf(
			"JWT_SECRET must be at least %d bytes",
			MinSecretLength,
		)
	}

	if c.JWT.ExpirationMinutes <= 0 {
		return fmt.Errorf("jwt.expiration_minutes must be positive")
	}

	if c.JWT.RefreshTokenExpirationDays <= 0 {
		return fmt.Errorf("jwt.refresh_token_expiration_days must be positive")
	}

	if c.Lockout.Enabled {
		if c.Lockout.MaxFailedAttempts <= 0 {
			return fmt.Errorf("lockout.max_failed_attempts must be positive")
		}
		if c.Lockout.Duration <= 0 {
			return fmt.Errorf("lockout.duration must be positive")
		}
	}

	if c.Password.MinStrengthScore < 0 || c.Password.MinStrengthScore > 4 {
		return fmt.Errorf("password.min_strength_score must be between 0 and 4")
	}

	if c.Seed.Enabled && (c.Seed.AdminEmail == "" || c.Seed.AdminPassword == "") {
		return fmt.Errorf("seed.admin_email and seed.admin_password are required when seeding")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
