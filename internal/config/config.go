package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for photobox.
type Config struct {
	InstanceID string         `toml:"instance_id"`
	BaseDir    string         `toml:"base_dir"`
	LogDir     string         `toml:"log_dir"`
	Server     ServerConfig   `toml:"server"`
	Database   DatabaseConfig `toml:"database"`
	Scratch    ScratchConfig  `toml:"scratch"`
	Dispatch   DispatchConfig `toml:"dispatch"`
	Timeouts   TimeoutsConfig `toml:"timeouts"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Listen          string   `toml:"listen"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig represents configuration for the record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite

	// PostgreSQL-specific fields (only used when Type == "postgres")
	Host     string `toml:"host,omitempty"`
	Port     int    `toml:"port,omitempty"`
	User     string `toml:"user,omitempty"`
	Password string `toml:"password,omitempty"`
	Name     string `toml:"name,omitempty"`
	SSLMode  string `toml:"ssl_mode,omitempty"`
}

// ScratchConfig represents configuration for the scratch area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ScratchConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	ScratchDir string `toml:"scratch_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total size in bytes; defaults to 256MB
}

// DispatchConfig represents configuration for the archive transport.
// This uses a tagged union pattern - the Type field determines which sub-table is relevant.
type DispatchConfig struct {
	Type      string `toml:"type"` // "smtp", "s3", "filesystem" or "memory"
	Sender    string `toml:"sender"`
	Recipient string `toml:"recipient"`
	Subject   string `toml:"subject"`
	TextBody  string `toml:"text_body"`
	HTMLBody  string `toml:"html_body"`

	SMTP       SMTPConfig       `toml:"smtp"`
	S3         S3Config         `toml:"s3"`
	FileSystem FileSystemConfig `toml:"filesystem"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// SMTPConfig holds mail relay settings (only used when Dispatch.Type == "smtp").
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	TLS      string `toml:"tls"` // "mandatory" (default), "opportunistic" or "none"
}

// S3Config holds bucket settings (only used when Dispatch.Type == "s3").
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// FileSystemConfig holds outbox settings (only used when Dispatch.Type == "filesystem").
type FileSystemConfig struct {
	OutboxDir string `toml:"outbox_dir"`
}

// EncryptionConfig holds paths to the age key pair used for archives at rest.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// TimeoutsConfig bounds the external round-trips of a pipeline run.
type TimeoutsConfig struct {
	Persist  Duration `toml:"persist"`
	Dispatch Duration `toml:"dispatch"`
}

// Duration is a time.Duration that reads and writes as a string such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Listen:          ":4000",
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: Duration{15 * time.Second},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Scratch: ScratchConfig{
			Type:       "filesystem",
			ScratchDir: filepath.Join(baseDir, "uploads"),
		},
		Dispatch: DispatchConfig{
			Type:     "smtp",
			Subject:  "Photo box submission",
			TextBody: "A new photo box submission is attached.",
			SMTP: SMTPConfig{
				Port: 587,
				TLS:  "mandatory",
			},
			Encryption: EncryptionConfig{
				Type:           "none",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "photobox.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "photobox.key"),
			},
		},
		Timeouts: TimeoutsConfig{
			Persist:  Duration{10 * time.Second},
			Dispatch: Duration{60 * time.Second},
		},
	}
}

// ApplyEnv overrides file values with the environment variables the service
// has historically been deployed with. Unset variables leave values untouched.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.Database.Host, "DB_HOST")
	set(&cfg.Database.User, "DB_USER")
	set(&cfg.Database.Password, "DB_PASSWORD")
	set(&cfg.Database.Name, "DB_NAME")
	if v := getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		cfg.Database.Port = port
	}

	set(&cfg.Dispatch.Sender, "SENDER_ADDRESS")
	set(&cfg.Dispatch.Recipient, "RECIPIENT_ADDRESS")
	set(&cfg.Dispatch.SMTP.Password, "SMTP_PASSWORD")
	set(&cfg.Server.Listen, "PHOTOBOX_LISTEN")
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// The file may contain credentials, so it is created owner-readable only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
