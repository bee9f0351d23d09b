package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config aggregates runtime configuration for the SwiftShare API.
type Config struct {
	Server   ServerConfig
	Share    ShareConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	Accounts AccountsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int           `validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	IdleTimeout  time.Duration `validate:"gt=0"`
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Storage and metadata backend identifiers.
const (
	StorageDisk  = "disk"
	StorageMinIO = "minio"

	MetadataFile     = "file"
	MetadataSQLite   = "sqlite"
	MetadataPostgres = "postgres"
	MetadataRedis    = "redis"
)

// ShareConfig controls code issuance, retention and where artifacts live.
type ShareConfig struct {
	TTL             time.Duration `validate:"gt=0"`
	SweepInterval   time.Duration `validate:"gt=0"`
	SweepOnStart    bool
	OrphanGrace     time.Duration `validate:"gte=0"`
	CodeLength      int           `validate:"min=4,max=64"`
	CodeAlphabet    string        `validate:"min=2,alphanum"`
	MaxCodeAttempts int           `validate:"min=1,max=100"`
	MaxUploadBytes  int64         `validate:"gt=0"`
	StorageBackend  string        `validate:"oneof=disk minio"`
	StorageRoot     string        `validate:"required_if=StorageBackend disk"`
	MetadataBackend string        `validate:"oneof=file sqlite postgres redis"`
	MetadataPath    string        `validate:"required_if=MetadataBackend file"`
	SQLitePath      string        `validate:"required_if=MetadataBackend sqlite"`
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UseSSL          bool
	Region          string
}

// RedisConfig points at the Redis instance used for share metadata.
type RedisConfig struct {
	URL string
	Key string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret string        `validate:"min=16"`
	AccessTokenTTL    time.Duration `validate:"gt=0"`
	BcryptCost        int           `validate:"min=4,max=31"`
}

// AccountsConfig toggles the account endpoints, which need PostgreSQL.
type AccountsConfig struct {
	Enabled bool
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string `validate:"startswith=/"`
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("SWIFTSHARE_API_HOST", "0.0.0.0"),
			Port:         getInt("SWIFTSHARE_API_PORT", 8080),
			ReadTimeout:  getDuration("SWIFTSHARE_API_READ_TIMEOUT", 60*time.Second),
			WriteTimeout: getDuration("SWIFTSHARE_API_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:  getDuration("SWIFTSHARE_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Share: loadShareConfig(),
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "swiftshare_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "swiftshare"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "swiftshare"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "swiftshare"),
			Prefix:          getString("MINIO_PREFIX", "shares/"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", ""),
		},
		Redis: RedisConfig{
			URL: getString("REDIS_URL", "redis://localhost:6379/0"),
			Key: getString("SWIFTSHARE_REDIS_KEY", "swiftshare:shares"),
		},
		Auth: loadAuthConfig(),
		Accounts: AccountsConfig{
			Enabled: getBool("SWIFTSHARE_ACCOUNTS_ENABLED", false),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("SWIFTSHARE_METRICS_PATH", "/metrics"),
		},
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-section requirements.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Accounts.Enabled && cfg.Postgres.Host == "" {
		return fmt.Errorf("invalid config: accounts require POSTGRES_HOST")
	}
	if cfg.Share.StorageBackend == StorageMinIO && cfg.MinIO.Bucket == "" {
		return fmt.Errorf("invalid config: minio storage requires MINIO_BUCKET")
	}
	if cfg.Share.MetadataBackend == MetadataRedis && cfg.Redis.URL == "" {
		return fmt.Errorf("invalid config: redis metadata requires REDIS_URL")
	}
	if cfg.Share.StorageBackend == StorageDisk {
		// the sweeper treats unclaimed files under the storage root as orphans
		var metaPath string
		switch cfg.Share.MetadataBackend {
		case MetadataFile:
			metaPath = cfg.Share.MetadataPath
		case MetadataSQLite:
			metaPath = cfg.Share.SQLitePath
		}
		if metaPath != "" && within(cfg.Share.StorageRoot, metaPath) {
			return fmt.Errorf("invalid config: metadata %s must live outside SHARE_STORAGE_ROOT %s", metaPath, cfg.Share.StorageRoot)
		}
	}
	return nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// NeedsPostgres reports whether any enabled component uses PostgreSQL.
func (c Config) NeedsPostgres() bool {
	return c.Accounts.Enabled || c.Share.MetadataBackend == MetadataPostgres
}

func loadShareConfig() ShareConfig {
	return ShareConfig{
		TTL:             getDuration("SHARE_TTL", 7*24*time.Hour),
		SweepInterval:   getDuration("SHARE_SWEEP_INTERVAL", time.Hour),
		SweepOnStart:    getBool("SHARE_SWEEP_ON_START", true),
		OrphanGrace:     getDuration("SHARE_ORPHAN_GRACE", 10*time.Minute),
		CodeLength:      getInt("SHARE_CODE_LENGTH", 10),
		CodeAlphabet:    getString("SHARE_CODE_ALPHABET", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
		MaxCodeAttempts: getInt("SHARE_MAX_CODE_ATTEMPTS", 5),
		MaxUploadBytes:  int64(getInt("SHARE_MAX_UPLOAD_BYTES", 50*1024*1024)),
		StorageBackend:  strings.ToLower(getString("SHARE_STORAGE_BACKEND", StorageDisk)),
		StorageRoot:     getString("SHARE_STORAGE_ROOT", "./uploads"),
		MetadataBackend: strings.ToLower(getString("SHARE_METADATA_BACKEND", MetadataFile)),
		MetadataPath:    getString("SHARE_METADATA_PATH", "./data/files.json"),
		SQLitePath:      getString("SHARE_SQLITE_PATH", "./data/shares.db"),
	}
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("SWIFTSHARE_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret: getString("SWIFTSHARE_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		AccessTokenTTL:    getDuration("SWIFTSHARE_AUTH_ACCESS_TOKEN_TTL", 24*time.Hour),
		BcryptCost:        cost,
	}
}
