// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":5001"
	DefaultPublicBaseURL     = "http://localhost:5001"
	DefaultJWTExpiresIn      = "1h"
	DefaultStorageBackend    = "filesystem"
	DefaultStorageRoot       = "uploads"
	DefaultMaxUploadBytes    = 512 << 20
	DefaultDatabaseDriver    = "sqlite"
	DefaultSQLitePath        = "newsdesk.db"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "newsdesk"
	DefaultPGSSLMode         = "disable"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultTranscodeTimeout  = "10m"
	DefaultTranscodeParallel = 2
	DefaultSMTPPort          = 587
)

// Storage backends selectable with storage.backend.
const (
	BackendFilesystem = "filesystem"
	BackendBlob       = "blob"
	BackendS3         = "s3"
)

// Database drivers selectable with database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Database  DatabaseConfig  `toml:"database"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Storage   StorageConfig   `toml:"storage"`
	S3        S3Config        `toml:"s3"`
	Transcode TranscodeConfig `toml:"transcode"`
	SMTP      SMTPConfig      `toml:"smtp"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the public URL clients reach it on.
type ServerConfig struct {
	Addr          string `toml:"addr"`
	PublicBaseURL string `toml:"public_base_url"`
}

// AdminConfig holds the shared login. PasswordHash (bcrypt) wins over Password.
type AdminConfig struct {
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	PasswordHash string `toml:"password_hash"`
}

// AuthConfig holds JWT secret and token expiry (e.g. 1h).
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// DatabaseConfig selects the SQL database used for news and blob storage.
type DatabaseConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	AutoMigrate bool   `toml:"auto_migrate"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// RedisConfig holds the token revocation store address. Empty Addr keeps
// revocations in process memory.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// StorageConfig selects the artifact backend.
type StorageConfig struct {
	Backend        string `toml:"backend"`
	Root           string `toml:"root"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// S3Config holds bucket parameters for the s3 backend.
type S3Config struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// TranscodeConfig holds the ffmpeg binary and its limits.
type TranscodeConfig struct {
	FFmpegPath    string `toml:"ffmpeg_path"`
	Timeout       string `toml:"timeout"`
	MaxConcurrent int    `toml:"max_concurrent"`
	// FailedDir keeps inputs that could not be transcoded. Empty discards them.
	FailedDir string `toml:"failed_dir"`
}

// SMTPConfig holds the contact form mail relay.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	To       string `toml:"to"`
	TLS      bool   `toml:"tls"`
}

// JWTExpiry parses jwt_expires_in.
func (c AuthConfig) JWTExpiry() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.JWTExpiresIn))
	if err != nil {
		return 0, fmt.Errorf("invalid jwt_expires_in: %w", err)
	}
	return d, nil
}

// TimeoutDuration parses transcode.timeout; zero means no limit.
func (c TranscodeConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
	if err != nil {
		return 0, fmt.Errorf("invalid transcode timeout: %w", err)
	}
	return d, nil
}

// Enabled reports whether a mail relay is configured.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.To) != ""
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:          DefaultHTTPAddr,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Database: DatabaseConfig{
			Driver:      DefaultDatabaseDriver,
			SQLitePath:  DefaultSQLitePath,
			AutoMigrate: true,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Backend:        DefaultStorageBackend,
			Root:           DefaultStorageRoot,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:    DefaultFFmpegPath,
			Timeout:       DefaultTranscodeTimeout,
			MaxConcurrent: DefaultTranscodeParallel,
		},
		SMTP: SMTPConfig{
			Port: DefaultSMTPPort,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFilesystem, BackendBlob:
	case BackendS3:
		if strings.TrimSpace(c.S3.Bucket) == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (use: filesystem, blob, s3)", c.Storage.Backend)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q (use: sqlite, postgres)", c.Database.Driver)
	}
	if _, err := c.Auth.JWTExpiry(); err != nil {
		return err
	}
	if _, err := c.Transcode.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}
