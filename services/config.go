package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Auth         AuthConfig      `yaml:"auth"`
	Embed        EmbedConfig     `yaml:"embed"`
	Storage      StorageConfig   `yaml:"storage"`
	Database     DatabaseConfig  `yaml:"database"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting"`
}

type ServerConfig struct {
	Address     string   `yaml:"address"`
	BodyLimitMB int      `yaml:"body_limit_mb"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Clients   []APIClient   `yaml:"clients"`
}

// APIClient is a caller allowed to exchange its key for a token. KeyHash is
// a bcrypt hash of the key.
type APIClient struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	KeyHash string `yaml:"key_hash"`
}

type EmbedConfig struct {
	JPEGQuality  int `yaml:"jpeg_quality"`
	MaxDimension int `yaml:"max_dimension"`
	MaxUploadMB  int `yaml:"max_upload_mb"`
	MaxBatch     int `yaml:"max_batch"`
}

type StorageConfig struct {
	Provider       string `yaml:"provider"`
	LocalDir       string `yaml:"local_dir"`
	Endpoint       string `yaml:"endpoint"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	PublicBaseURL  string `yaml:"public_base_url"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Max     int           `yaml:"max"`
	Window  time.Duration `yaml:"window"`
}

const defaultJWTSecret = "stockmeta-default-secret-change-in-production"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8080",
			BodyLimitMB: 100,
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Embed: EmbedConfig{
			JPEGQuality:  92,
			MaxDimension: 0,
			MaxUploadMB:  25,
			MaxBatch:     50,
		},
		Storage: StorageConfig{
			Provider:       "local",
			LocalDir:       "exports",
			ForcePathStyle: true,
		},
		RateLimiting: RateLimitConfig{
			Enabled: true,
			Max:     120,
			Window:  1 * time.Minute,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// Secrets and endpoints may be overridden from the environment.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("STORAGE_PROVIDER"); v != "" {
		c.Storage.Provider = v
	}
	c.Storage.Endpoint = firstNonEmpty(c.Storage.Endpoint, os.Getenv("S3_ENDPOINT"), os.Getenv("R2_ENDPOINT"))
	c.Storage.Bucket = firstNonEmpty(c.Storage.Bucket, os.Getenv("S3_BUCKET"), os.Getenv("R2_BUCKET"))
	c.Storage.AccessKey = firstNonEmpty(c.Storage.AccessKey, os.Getenv("S3_ACCESS_KEY_ID"), os.Getenv("R2_ACCESS_KEY_ID"))
	c.Storage.SecretKey = firstNonEmpty(c.Storage.SecretKey, os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("R2_SECRET_ACCESS_KEY"))
	c.Storage.PublicBaseURL = firstNonEmpty(c.Storage.PublicBaseURL, os.Getenv("STORAGE_PUBLIC_BASE_URL"))
	if v := os.Getenv("EXPORTS_DIR"); v != "" {
		c.Storage.LocalDir = v
	}
}

// UsesDefaultSecret reports whether the JWT secret was left at its default.
func (c *Config) UsesDefaultSecret() bool {
	return c.Auth.JWTSecret == defaultJWTSecret
}
