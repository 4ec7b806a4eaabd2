// Package config loads server settings from an optional YAML file with
// environment variable overrides. Env wins over file, file wins over
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Config is the fully resolved server configuration.
type Config struct {
	Port           int
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	AIServiceURL   string
	JWTSecret      string
	SessionTTL     time.Duration
	CookieSecure   bool
	CORSOrigin     string
	SignupLimit    int
	SignupWindow   time.Duration
	LoginLimit     int
	LoginWindow    time.Duration
	MaxUploadBytes int64
}

type fileConfig struct {
	Port          int    `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	AIServiceURL  string `yaml:"ai_service_url"`
	JWTSecret     string `yaml:"jwt_secret"`
	SessionTTL    string `yaml:"session_ttl"`
	CookieSecure  *bool  `yaml:"cookie_secure"`
	CORSOrigin    string `yaml:"cors_origin"`
	RateLimit     struct {
		SignupLimit  int    `yaml:"signup_limit"`
		SignupWindow string `yaml:"signup_window"`
		LoginLimit   int    `yaml:"login_limit"`
		LoginWindow  string `yaml:"login_window"`
	} `yaml:"rate_limit"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// ConfigPath returns the config file location, honoring PREPMATE_CONFIG.
func ConfigPath() string {
	if p := os.Getenv("PREPMATE_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load resolves configuration from defaults, then the YAML file at path (a
// missing file is not an error), then environment variables.
func Load(path string) (Config, error) {
	cfg := Config{
		Port:           8080,
		AIServiceURL:   "http://localhost:8000",
		SessionTTL:     7 * 24 * time.Hour,
		CORSOrigin:     "http://localhost:5173",
		SignupLimit:    10,
		SignupWindow:   time.Hour,
		LoginLimit:     20,
		LoginWindow:    15 * time.Minute,
		MaxUploadBytes: 10 << 20,
	}
	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.RedisPassword, fc.RedisPassword)
	setString(&cfg.AIServiceURL, fc.AIServiceURL)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setString(&cfg.CORSOrigin, fc.CORSOrigin)
	if fc.CookieSecure != nil {
		cfg.CookieSecure = *fc.CookieSecure
	}
	if fc.SessionTTL != "" {
		ttl, err := ParseSessionTTL(fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("session_ttl: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	if fc.RateLimit.SignupLimit > 0 {
		cfg.SignupLimit = fc.RateLimit.SignupLimit
	}
	if fc.RateLimit.LoginLimit > 0 {
		cfg.LoginLimit = fc.RateLimit.LoginLimit
	}
	if fc.RateLimit.SignupWindow != "" {
		w, err := time.ParseDuration(fc.RateLimit.SignupWindow)
		if err != nil {
			return fmt.Errorf("signup_window: %w", err)
		}
		cfg.SignupWindow = w
	}
	if fc.RateLimit.LoginWindow != "" {
		w, err := time.ParseDuration(fc.RateLimit.LoginWindow)
		if err != nil {
			return fmt.Errorf("login_window: %w", err)
		}
		cfg.LoginWindow = w
	}
	if fc.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.MaxUploadBytes
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.RedisAddr, os.Getenv("REDIS_ADDR"))
	setString(&cfg.RedisPassword, os.Getenv("REDIS_PASSWORD"))
	setString(&cfg.AIServiceURL, os.Getenv("AI_SERVICE_URL"))
	setString(&cfg.JWTSecret, os.Getenv("JWT_SECRET"))
	setString(&cfg.CORSOrigin, os.Getenv("CORS_ORIGIN"))
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COOKIE_SECURE: %w", err)
		}
		cfg.CookieSecure = secure
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := ParseSessionTTL(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	return nil
}

// ParseSessionTTL accepts Go durations ("168h") or day shorthand ("7d").
func ParseSessionTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, errors.New("session ttl must be positive")
	}
	return ttl, nil
}

func validate(cfg Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required (JWT_SECRET)")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if cfg.AIServiceURL == "" {
		return errors.New("AI service URL is required (AI_SERVICE_URL)")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
