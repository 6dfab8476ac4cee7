package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the facility engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// AdminAPIKey protects the /api/admin routes. Empty disables the check,
	// which is only intended for deployments where the host handles auth.
	AdminAPIKey string `yaml:"-" env:"ADMIN_API_KEY"` // Secret - not in YAML

	// CORSOrigins is a comma-separated list of origins allowed to call the public API.
	CORSOrigins string `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:3000"`

	// TaxonomySeedFile, when set, is loaded at startup to create default taxonomy items.
	TaxonomySeedFile string `yaml:"taxonomy_seed_file" env:"TAXONOMY_SEED_FILE" env-default:""`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Blob     BlobConfig     `yaml:"blob"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"facilities"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"facility_directory"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis configuration. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TLS      bool   `yaml:"tls" env:"REDIS_TLS" env-default:"false"`

	PoolSize int `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"20"`
	// OpTimeout bounds each Redis read or write.
	OpTimeout   time.Duration `yaml:"op_timeout" env:"REDIS_OP_TIMEOUT" env-default:"250ms"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"2s"`
}

// CacheConfig controls the two-tier facility cache.
type CacheConfig struct {
	// Version is embedded in every cache key. Bumping it orphans all prior entries.
	Version string `yaml:"version" env:"CACHE_VERSION" env-default:"v1"`
	Prefix  string `yaml:"prefix" env:"CACHE_PREFIX" env-default:"facilitymap"`

	// DurableDriver selects the durable tier: "redis", "sqlite" or "none".
	DurableDriver string `yaml:"durable_driver" env:"CACHE_DURABLE_DRIVER" env-default:"redis"`
	SQLitePath    string `yaml:"sqlite_path" env:"CACHE_SQLITE_PATH" env-default:"data/cache.db"`

	MemoryEntries int `yaml:"memory_entries" env:"CACHE_MEMORY_ENTRIES" env-default:"2048"`

	FacilitiesTTL time.Duration `yaml:"facilities_ttl" env:"CACHE_FACILITIES_TTL" env-default:"1h"`
	TaxonomiesTTL time.Duration `yaml:"taxonomies_ttl" env:"CACHE_TAXONOMIES_TTL" env-default:"24h"`
	FrontendTTL   time.Duration `yaml:"frontend_ttl" env:"CACHE_FRONTEND_TTL" env-default:"1h"`

	// WarmInterval schedules the external cache warming job. Zero disables it.
	WarmInterval time.Duration `yaml:"warm_interval" env:"CACHE_WARM_INTERVAL" env-default:"0s"`
}

// BlobConfig describes where uploaded facility images live, so deleting a
// facility can clean up its images.
type BlobConfig struct {
	// Driver is "fs", "s3" or "none".
	Driver string `yaml:"driver" env:"BLOB_DRIVER" env-default:"none"`
	// PublicBaseURL is the URL prefix under which stored images are served.
	// Only image URLs under this prefix are ever deleted.
	PublicBaseURL string `yaml:"public_base_url" env:"BLOB_PUBLIC_BASE_URL" env-default:""`
	FSRoot        string `yaml:"fs_root" env:"BLOB_FS_ROOT" env-default:"uploads"`

	S3Bucket          string `yaml:"s3_bucket" env:"BLOB_S3_BUCKET" env-default:""`
	S3Region          string `yaml:"s3_region" env:"BLOB_S3_REGION" env-default:"us-east-1"`
	S3Endpoint        string `yaml:"s3_endpoint" env:"BLOB_S3_ENDPOINT" env-default:""`
	S3PathStyle       bool   `yaml:"s3_path_style" env:"BLOB_S3_PATH_STYLE" env-default:"false"`
	S3AccessKeyID     string `yaml:"-" env:"AWS_ACCESS_KEY_ID"`     // Secret - not in YAML
	S3SecretAccessKey string `yaml:"-" env:"AWS_SECRET_ACCESS_KEY"` // Secret - not in YAML
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from the environment alone.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	err := cleanenv.ReadConfig("config.yaml", cfg)
	if errors.Is(err, fs.ErrNotExist) {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.DurableDriver {
	case "redis", "sqlite", "none":
	default:
		return fmt.Errorf("unknown cache durable_driver %q (want redis, sqlite or none)", c.Cache.DurableDriver)
	}
	if c.Cache.Version == "" {
		return fmt.Errorf("cache version must not be empty")
	}
	if strings.ContainsAny(c.Cache.Version+c.Cache.Prefix, ":*?[]") {
		return fmt.Errorf("cache version and prefix must not contain ':' or glob characters")
	}

	switch c.Blob.Driver {
	case "none":
	case "fs":
		if c.Blob.PublicBaseURL == "" {
			return fmt.Errorf("blob public_base_url is required for the fs driver")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("blob s3_bucket is required for the s3 driver")
		}
		if c.Blob.PublicBaseURL == "" {
			return fmt.Errorf("blob public_base_url is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q (want fs, s3 or none)", c.Blob.Driver)
	}
	return nil
}

// AllowedOrigins returns the parsed CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database connection as a postgres:// URL, as expected by
// golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// TTLFor returns the configured TTL for a cache group name.
func (c *CacheConfig) TTLFor(group string) time.Duration {
	switch group {
	case "taxonomies":
		return c.TaxonomiesTTL
	case "frontend":
		return c.FrontendTTL
	default:
		return c.FacilitiesTTL
	}
}
