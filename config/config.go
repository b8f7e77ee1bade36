package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Photos     PhotoConfig      `yaml:"photos"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Tracking   TrackingConfig   `yaml:"tracking"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	CORSOrigins     []string `yaml:"cors_origins"`
	IssuesFile      string   `yaml:"issues_file"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite, postgres or mysql
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"` // silent, error, warn, info
}

// PhotoConfig selects where uploaded machine photos are kept.
type PhotoConfig struct {
	Backend      string      `yaml:"backend"` // local or minio
	Dir          string      `yaml:"dir"`
	URLPrefix    string      `yaml:"url_prefix"`
	MaxSizeBytes int64       `yaml:"max_size_bytes"`
	MinIO        MinIOConfig `yaml:"minio"`
}

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// TrackingConfig controls the scheduled shipment tracking refresh.
type TrackingConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Schedule       string        `yaml:"schedule"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	HTTPProxy      string        `yaml:"http_proxy"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets deployment environments override file settings.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("ignoring invalid PORT %q: %v", v, err)
		}
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Photos.MinIO.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Photos.MinIO.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Photos.MinIO.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Photos.MinIO.Bucket = v
	}
	if v := os.Getenv("TRACKING_API_KEY"); v != "" {
		cfg.Tracking.APIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.IssuesFile == "" {
		cfg.Server.IssuesFile = "./issues_file.json"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./database.sqlite"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Photos.Backend == "" {
		cfg.Photos.Backend = "local"
	}
	if cfg.Photos.Dir == "" {
		cfg.Photos.Dir = "./images"
	}
	if cfg.Photos.URLPrefix == "" {
		cfg.Photos.URLPrefix = "/images"
	}
	if cfg.Photos.MaxSizeBytes <= 0 {
		cfg.Photos.MaxSizeBytes = 10 << 20
	}
	if cfg.Photos.MinIO.Endpoint == "" {
		cfg.Photos.MinIO.Endpoint = "localhost:9000"
	}
	if cfg.Photos.MinIO.Bucket == "" {
		cfg.Photos.MinIO.Bucket = "machine-photos"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Tracking.Schedule == "" {
		cfg.Tracking.Schedule = "@every 24h"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "https://api.shipengine.com"
	}
	if cfg.Tracking.TimeoutSeconds <= 0 {
		cfg.Tracking.TimeoutSeconds = 30
	}
	cfg.Tracking.Timeout = time.Duration(cfg.Tracking.TimeoutSeconds) * time.Second
}
