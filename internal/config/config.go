package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverInMemory = "in-memory"
	DriverPostgres = "postgres"
)

// Config содержит все конфигурационные параметры приложения.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		UploadDir       string        `yaml:"upload_dir"`
		MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		BcryptCost    int    `yaml:"bcrypt_cost"`
		AdminUsername string `yaml:"admin_username"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.UploadDir = "uploads"
	cfg.Server.MaxUploadBytes = 10 << 20
	cfg.Storage.Driver = DriverInMemory
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения BLOG_*.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("BLOG_PORT", getEnv("PORT", c.Server.Port))
	c.Server.UploadDir = getEnv("BLOG_UPLOAD_DIR", c.Server.UploadDir)
	c.Storage.Driver = getEnv("BLOG_STORAGE", c.Storage.Driver)
	c.Storage.DSN = getEnv("DATABASE_URL", c.Storage.DSN)
	c.Auth.JWTSecret = getEnv("BLOG_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminUsername = getEnv("BLOG_ADMIN_USERNAME", c.Auth.AdminUsername)
	c.Auth.AdminPassword = getEnv("BLOG_ADMIN_PASSWORD", c.Auth.AdminPassword)
	c.Log.Level = getEnv("BLOG_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("BLOG_LOG_FORMAT", c.Log.Format)

	var err error
	if c.Server.RequestTimeout, err = durationEnv("BLOG_REQUEST_TIMEOUT", c.Server.RequestTimeout); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("BLOG_BCRYPT_COST"); ok {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid BLOG_BCRYPT_COST %q: %w", v, err)
		}
		c.Auth.BcryptCost = cost
	}
	return nil
}

// Validate проверяет согласованность конфигурации. Для in-memory хранилища
// отсутствующий секрет заменяется случайным, живущим до перезапуска.
func (c *Config) Validate(log *slog.Logger) error {
	switch c.Storage.Driver {
	case DriverInMemory:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: DATABASE_URL must be set for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("config: BLOG_ADMIN_USERNAME and BLOG_ADMIN_PASSWORD must be set together")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		if c.Storage.Driver != DriverInMemory {
			return fmt.Errorf("config: BLOG_JWT_SECRET must be set for %s storage", c.Storage.Driver)
		}
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.Auth.JWTSecret = secret
		log.Warn("BLOG_JWT_SECRET is not set, using a random secret; tokens will not survive a restart")
	}
	return nil
}

// SlogLevel переводит уровень из конфигурации в slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// getEnv - это вспомогательная функция для чтения переменной окружения.
// Если переменная не установлена, возвращается значение по умолчанию (fallback).
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
