package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the unified server configuration, loaded from environment variables.
type Config struct {
	Server     ServerConfig
	Data       DataConfig
	Log        LogConfig
	Security   SecurityConfig
	Generation GenerationConfig
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
}

// DataConfig holds storage locations.
type DataConfig struct {
	DBPath       string
	PipelineFile string // optional YAML seed for the default book pipeline
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string // debug, info, warn, error
	FilePath string // optional rotated log file
}

// SecurityConfig holds auth settings.
type SecurityConfig struct {
	JWTSecret            string
	AdminDefaultPassword string
	CORSAllowedOrigins   []string
}

// GenerationConfig holds the text-generation provider settings.
type GenerationConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int // max concurrent provider calls during chapter generation
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Data: DataConfig{
			DBPath:       getEnv("DB_PATH", "./data/promptdeck.db"),
			PipelineFile: getEnv("PIPELINE_FILE", ""),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			AdminDefaultPassword: getEnv("ADMIN_DEFAULT_PASSWORD", ""),
			CORSAllowedOrigins:   parseStringList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		Generation: GenerationConfig{
			BaseURL:   getEnv("GEN_BASE_URL", "https://api.openai.com/v1"),
			APIKey:    getEnv("GEN_API_KEY", ""),
			Model:     getEnv("GEN_MODEL", "gpt-4o-mini"),
			BatchSize: getEnvInt("GEN_BATCH_SIZE", 5),
		},
	}

	return cfg, nil
}

// ValidateConfig checks configuration consistency before startup.
func ValidateConfig(cfg *Config) error {
	var errs []string

	if cfg.Security.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.Security.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters long")
	}

	if cfg.Server.Env == "production" {
		if cfg.Security.AdminDefaultPassword == "" {
			errs = append(errs, "ADMIN_DEFAULT_PASSWORD is required in production environment")
		} else if len(cfg.Security.AdminDefaultPassword) < 8 {
			errs = append(errs, "ADMIN_DEFAULT_PASSWORD must be at least 8 characters long in production")
		}
		if cfg.Generation.APIKey == "" {
			errs = append(errs, "GEN_API_KEY is required in production environment")
		}
	}

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errs = append(errs, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	if cfg.Generation.BatchSize < 1 || cfg.Generation.BatchSize > 64 {
		errs = append(errs, fmt.Sprintf("invalid GEN_BATCH_SIZE: %d (must be 1-64)", cfg.Generation.BatchSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment reports whether the server runs in a development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr returns the listen address.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig renders the configuration with secrets masked.
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Database: %s
  Logging:
    - Level: %s
    - File: %s
  Security:
    - JWT Secret: %s
    - Admin Password: %s
    - CORS Origins: %v
  Generation:
    - Base URL: %s
    - API Key: %s
    - Model: %s
    - Batch Size: %d`,
		c.Server.Env,
		c.Server.Port,
		c.Data.DBPath,
		c.Log.Level,
		c.Log.FilePath,
		maskSecret(c.Security.JWTSecret),
		maskSecret(c.Security.AdminDefaultPassword),
		c.Security.CORSAllowedOrigins,
		c.Generation.BaseURL,
		maskSecret(c.Generation.APIKey),
		c.Generation.Model,
		c.Generation.BatchSize,
	)
}

// Helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
