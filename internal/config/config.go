package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Limit is a request ceiling per client within a window.
type Limit struct {
	Max    int
	Window time.Duration
}

// JWTConfig holds token signing settings. Access and refresh tokens use different secrets.
type JWTConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// RateLimitConfig groups the per-route request ceilings.
type RateLimitConfig struct {
	General  Limit
	Login    Limit
	Register Limit
	Reset    Limit
}

// Config holds the application configuration
type Config struct {
	Env         string
	Port        string
	MetricsPort string
	DatabaseURL string
	LogLevel    string

	JWT        JWTConfig
	BcryptCost int

	MaxLoginAttempts int
	LockoutWindow    time.Duration

	RateLimits RateLimitConfig

	CORSOrigins   []string
	MaxBodyBytes  int64
	ResetTokenTTL time.Duration
	AuthDelay     bool
}

// IsProduction reports whether the server runs with production defaults.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvDevelopment)
	v.SetDefault("port", "3001")
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("log_level", "info")

	v.SetDefault("jwt_expires_in", 15*time.Minute)
	v.SetDefault("jwt_refresh_expires_in", 7*24*time.Hour)
	v.SetDefault("bcrypt_rounds", 12)

	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("lockout_time", 15*time.Minute)

	v.SetDefault("rate_limit_max", 100)
	v.SetDefault("rate_limit_window", 15*time.Minute)
	v.SetDefault("login_rate_limit_max", 5)
	v.SetDefault("login_rate_limit_window", 15*time.Minute)
	v.SetDefault("register_rate_limit_max", 3)
	v.SetDefault("register_rate_limit_window", time.Hour)
	v.SetDefault("reset_rate_limit_max", 3)
	v.SetDefault("reset_rate_limit_window", time.Hour)

	v.SetDefault("max_body_size", int64(10<<20))
	v.SetDefault("reset_token_ttl", time.Hour)
	v.SetDefault("auth_delay_enabled", true)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:         strings.ToLower(strings.TrimSpace(v.GetString("app_env"))),
		Port:        v.GetString("port"),
		MetricsPort: v.GetString("metrics_port"),
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		LogLevel:    v.GetString("log_level"),
		JWT: JWTConfig{
			AccessSecret:  v.GetString("jwt_secret"),
			AccessTTL:     v.GetDuration("jwt_expires_in"),
			RefreshSecret: v.GetString("jwt_refresh_secret"),
			RefreshTTL:    v.GetDuration("jwt_refresh_expires_in"),
		},
		BcryptCost:       v.GetInt("bcrypt_rounds"),
		MaxLoginAttempts: v.GetInt("max_login_attempts"),
		LockoutWindow:    v.GetDuration("lockout_time"),
		RateLimits: RateLimitConfig{
			General:  Limit{Max: v.GetInt("rate_limit_max"), Window: v.GetDuration("rate_limit_window")},
			Login:    Limit{Max: v.GetInt("login_rate_limit_max"), Window: v.GetDuration("login_rate_limit_window")},
			Register: Limit{Max: v.GetInt("register_rate_limit_max"), Window: v.GetDuration("register_rate_limit_window")},
			Reset:    Limit{Max: v.GetInt("reset_rate_limit_max"), Window: v.GetDuration("reset_rate_limit_window")},
		},
		MaxBodyBytes:  v.GetInt64("max_body_size"),
		ResetTokenTTL: v.GetDuration("reset_token_ttl"),
		AuthDelay:     v.GetBool("auth_delay_enabled"),
	}

	if cfg.Env == EnvProduction {
		origins := v.GetString("frontend_url")
		if origins == "" {
			origins = v.GetString("cors_origin")
		}
		cfg.CORSOrigins = splitList(origins)
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logDatabaseTarget(cfg.DatabaseURL)
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is required"))
	}
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET environment variable is required"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must differ from JWT_SECRET"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_ROUNDS must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.MaxLoginAttempts <= 0 || c.LockoutWindow <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS and LOCKOUT_TIME must be positive"))
	}
	for name, l := range map[string]Limit{
		"general":  c.RateLimits.General,
		"login":    c.RateLimits.Login,
		"register": c.RateLimits.Register,
		"reset":    c.RateLimits.Reset,
	} {
		if l.Max <= 0 || l.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s rate limit must have positive max and window", name))
		}
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_SIZE must be positive"))
	}
	if c.Env == EnvProduction && len(c.CORSOrigins) == 0 {
		errs = append(errs, errors.New("FRONTEND_URL is required in production"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// logDatabaseTarget logs connection details with the password left out
func logDatabaseTarget(databaseURL string) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	slog.Info("DB connect", "host", host, "port", port, "db", strings.TrimPrefix(u.Path, "/"), "user", user)
}

// DatabaseURL reads only DATABASE_URL, for commands that do not serve traffic.
func DatabaseURL() (string, error) {
	v := viper.New()
	v.AutomaticEnv()
	dsn := strings.TrimSpace(v.GetString("database_url"))
	if dsn == "" {
		return "", errors.New("DATABASE_URL environment variable is required")
	}
	return dsn, nil
}
