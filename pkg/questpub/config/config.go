package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/objectkey"
	"github.com/questlore/questpub/pkg/questpub/repo/memory"
	repopg "github.com/questlore/questpub/pkg/questpub/repo/postgres"
	reposqlite "github.com/questlore/questpub/pkg/questpub/repo/sqlite"
	fsstorage "github.com/questlore/questpub/pkg/questpub/storage/fs"
	memorystorage "github.com/questlore/questpub/pkg/questpub/storage/memory"
	s3storage "github.com/questlore/questpub/pkg/questpub/storage/s3"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Object key layouts
const (
	KeyLayoutTimestamp = "timestamp"
	KeyLayoutSharded   = "sharded"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: DatabaseMemory,
		AutoMigrate:  true,
		Storage: StorageBackendConfig{
			Name:   "memory",
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		UploadPolicy:       string(questpub.UploadRequired),
		KeyLayout:          KeyLayoutTimestamp,
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// ServerConfig represents configuration for the quest publication service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "sqlite"
	DBSchema     string // Postgres search_path; empty keeps the server default
	AutoMigrate  bool   // Create the quests table on startup

	// Storage configuration
	Storage StorageBackendConfig

	// Publication options
	UploadPolicy string // "required" or "best_effort"
	KeyLayout    string // "timestamp" or "sharded"

	// Server options
	EnableEventLogging  bool
	EnableMetrics       bool
	JWTSecret           string // HS256 secret for bearer tokens; empty disables JWT identity
	TrustIdentityHeader bool   // Accept X-User-ID from a trusted proxy
}

// StorageBackendConfig represents configuration for the artifact storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	switch c.Storage.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	if _, err := questpub.ParseUploadPolicy(c.UploadPolicy); err != nil {
		return fmt.Errorf("upload_policy: %w", err)
	}

	if c.KeyLayout != KeyLayoutTimestamp && c.KeyLayout != KeyLayoutSharded {
		return fmt.Errorf("key_layout must be '%s' or '%s'", KeyLayoutTimestamp, KeyLayoutSharded)
	}

	return nil
}

// BuildService creates a Service from the configuration. Extra options are
// applied last, e.g. questpub.WithMetrics. The returned cleanup closes
// database handles and must be called once the service is no longer used.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...questpub.Option) (questpub.Service, func(), error) {
	policy, err := questpub.ParseUploadPolicy(c.UploadPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid upload policy: %w", err)
	}

	var options []questpub.Option

	// Set up repository
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, questpub.WithRepository(repo))

	// Set up storage backend
	store, err := c.buildStorageBackend(ctx, c.Storage)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Name, err)
	}
	options = append(options, questpub.WithBlobStore(c.Storage.Name, store))

	options = append(options,
		questpub.WithUploadPolicy(policy),
		questpub.WithKeyGenerator(c.buildKeyGenerator()),
	)

	if c.EnableEventLogging {
		options = append(options, questpub.WithEventSink(questpub.NewLogEventSink(slog.Default())))
	}

	svc, err := questpub.New(append(options, extra...)...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

func (c *ServerConfig) buildKeyGenerator() objectkey.Generator {
	if c.KeyLayout == KeyLayoutSharded {
		return objectkey.NewShardedGenerator()
	}
	return objectkey.NewTimestampGenerator()
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (questpub.Repository, func(), error) {
	noop := func() {}

	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), noop, nil

	case DatabasePostgres:
		pool, err := NewPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repo, pool.Close, nil

	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		closeRepo := func() {
			if err := repo.Close(); err != nil {
				slog.Error("failed to close sqlite database", "err", err)
			}
		}
		if c.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				closeRepo()
				return nil, nil, err
			}
		}
		return repo, closeRepo, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPostgresPool connects a pool, optionally pinning search_path, and pings it.
func NewPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, config StorageBackendConfig) (questpub.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/quests"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		})

	case "s3":
		return s3storage.New(ctx, S3Config(config))

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

// S3Config maps a storage backend configuration onto the S3 backend's options.
func S3Config(config StorageBackendConfig) s3storage.Config {
	return s3storage.Config{
		Region:                 getString(config.Config, "region", "us-east-1"),
		Bucket:                 getString(config.Config, "bucket", ""),
		AccessKeyID:            getString(config.Config, "access_key_id", ""),
		SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
		Endpoint:               getString(config.Config, "endpoint", ""),
		UsePathStyle:           getBool(config.Config, "use_path_style", false),
		PublicBaseURL:          getString(config.Config, "public_url", ""),
		WriteOnce:              getBool(config.Config, "write_once", false),
		EnableSSE:              getBool(config.Config, "enable_sse", false),
		SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
		SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
		CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
