package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envSettings is the environment surface. Every variable may carry a
// QUESTPUB_ prefix; the prefixed name wins when both are set.
//
//	PORT                   HTTP listen port
//	ENVIRONMENT            development, production, testing
//	DATABASE_URL           "memory", "postgres://...", "sqlite:///path/quests.db"
//	DB_SCHEMA              Postgres search_path
//	AUTO_MIGRATE           create the quests table on startup
//	STORAGE_URL            "memory://", "file:///path?url_prefix=...", "s3://bucket?region=..."
//	UPLOAD_POLICY          "required" or "best_effort"
//	KEY_LAYOUT             "timestamp" or "sharded"
//	ENABLE_EVENT_LOGGING   log publish and unpublish events
//	ENABLE_METRICS         expose /metrics
//	JWT_SECRET             HS256 secret for bearer tokens
//	TRUST_IDENTITY_HEADER  accept X-User-ID from a trusted proxy
//
// Unset variables leave the current value untouched.
type envSettings struct {
	Port                string `env:"QUESTPUB_PORT,PORT"`
	Environment         string `env:"QUESTPUB_ENVIRONMENT,ENVIRONMENT"`
	DatabaseURL         string `env:"QUESTPUB_DATABASE_URL,DATABASE_URL"`
	DBSchema            string `env:"QUESTPUB_DB_SCHEMA,DB_SCHEMA"`
	AutoMigrate         bool   `env:"QUESTPUB_AUTO_MIGRATE,AUTO_MIGRATE"`
	StorageURL          string `env:"QUESTPUB_STORAGE_URL,STORAGE_URL"`
	UploadPolicy        string `env:"QUESTPUB_UPLOAD_POLICY,UPLOAD_POLICY"`
	KeyLayout           string `env:"QUESTPUB_KEY_LAYOUT,KEY_LAYOUT"`
	EnableEventLogging  bool   `env:"QUESTPUB_ENABLE_EVENT_LOGGING,ENABLE_EVENT_LOGGING"`
	EnableMetrics       bool   `env:"QUESTPUB_ENABLE_METRICS,ENABLE_METRICS"`
	JWTSecret           string `env:"QUESTPUB_JWT_SECRET,JWT_SECRET"`
	TrustIdentityHeader bool   `env:"QUESTPUB_TRUST_IDENTITY_HEADER,TRUST_IDENTITY_HEADER"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`
}

// WithEnv applies environment variable overrides. See envSettings for the
// variables read.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		env := envSettings{
			Port:                c.Port,
			Environment:         c.Environment,
			DBSchema:            c.DBSchema,
			AutoMigrate:         c.AutoMigrate,
			UploadPolicy:        c.UploadPolicy,
			KeyLayout:           c.KeyLayout,
			EnableEventLogging:  c.EnableEventLogging,
			EnableMetrics:       c.EnableMetrics,
			JWTSecret:           c.JWTSecret,
			TrustIdentityHeader: c.TrustIdentityHeader,
		}
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.DBSchema = env.DBSchema
		c.AutoMigrate = env.AutoMigrate
		c.UploadPolicy = env.UploadPolicy
		c.KeyLayout = env.KeyLayout
		c.EnableEventLogging = env.EnableEventLogging
		c.EnableMetrics = env.EnableMetrics
		c.JWTSecret = env.JWTSecret
		c.TrustIdentityHeader = env.TrustIdentityHeader

		if env.DatabaseURL != "" {
			if err := applyDatabaseURL(c, env.DatabaseURL); err != nil {
				return err
			}
		}

		if env.StorageURL != "" {
			backend, err := parseStorageURL(env.StorageURL)
			if err != nil {
				return err
			}
			if backend.Type == "s3" {
				applyAWSEnv(backend.Config, env)
			}
			c.Storage = backend
		}

		return nil
	}
}

// applyDatabaseURL sets the database type and URL from a URL-style DSN.
func applyDatabaseURL(c *ServerConfig, dbURL string) error {
	switch {
	case dbURL == DatabaseMemory:
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite DATABASE_URL requires a path: %s", dbURL)
		}
		c.DatabaseType = DatabaseSQLite
		c.DatabaseURL = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// parseStorageURL maps a STORAGE_URL onto a storage backend configuration.
func parseStorageURL(raw string) (StorageBackendConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StorageBackendConfig{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	query := u.Query()

	scheme := u.Scheme
	if raw == "memory" {
		scheme = "memory"
	}

	switch scheme {
	case "memory":
		return StorageBackendConfig{Name: "memory", Type: "memory", Config: map[string]interface{}{}}, nil

	case "file":
		dir := u.Path
		if u.Host != "" && u.Host != "localhost" {
			// file://data/quests is read as a relative path
			dir = filepath.Join(u.Host, u.Path)
		}
		if dir == "" {
			return StorageBackendConfig{}, fmt.Errorf("file STORAGE_URL requires a path: %s", raw)
		}
		cfg := map[string]interface{}{"base_dir": dir}
		if prefix := query.Get("url_prefix"); prefix != "" {
			cfg["url_prefix"] = prefix
		}
		return StorageBackendConfig{Name: "fs", Type: "fs", Config: cfg}, nil

	case "s3":
		if u.Host == "" {
			return StorageBackendConfig{}, fmt.Errorf("s3 STORAGE_URL requires a bucket: %s", raw)
		}
		cfg := map[string]interface{}{"bucket": u.Host}
		for param, key := range map[string]string{
			"region":         "region",
			"endpoint":       "endpoint",
			"public_url":     "public_url",
			"sse_algorithm":  "sse_algorithm",
			"sse_kms_key_id": "sse_kms_key_id",
		} {
			if v := query.Get(param); v != "" {
				cfg[key] = v
			}
		}
		for param, key := range map[string]string{
			"path_style":    "use_path_style",
			"write_once":    "write_once",
			"sse":           "enable_sse",
			"create_bucket": "create_bucket_if_not_exist",
		} {
			if v := query.Get(param); v != "" {
				cfg[key] = v
			}
		}
		return StorageBackendConfig{Name: "s3", Type: "s3", Config: cfg}, nil

	default:
		return StorageBackendConfig{}, fmt.Errorf("unsupported STORAGE_URL scheme %q (use memory://, file:// or s3://)", u.Scheme)
	}
}

func applyAWSEnv(cfg map[string]interface{}, env envSettings) {
	if env.AWSAccessKeyID != "" {
		cfg["access_key_id"] = env.AWSAccessKeyID
	}
	if env.AWSSecretAccessKey != "" {
		cfg["secret_access_key"] = env.AWSSecretAccessKey
	}
	if _, ok := cfg["region"]; !ok && env.AWSRegion != "" {
		cfg["region"] = env.AWSRegion
	}
}
