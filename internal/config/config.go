// Package config loads the upload client configuration.
//
// Configuration is read from a YAML file. ${VAR} references are expanded
// from the environment before parsing, and a .env file may be loaded first
// with LoadDotEnv. Command line flags are applied as overrides before
// defaults and validation run.
//
//	upload:
//	  url: https://mail.example.com/service/upload
//	  authToken: ${ZM_AUTH_TOKEN}
//	  admin: false
//	transport:
//	  timeout: 10m
//	  minTLSVersion: "1.2"
//	log:
//	  level: info
//	  format: text
package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zimbra-api/upload-api/pkg/message"
	"github.com/zimbra-api/upload-api/pkg/response"
	"github.com/zimbra-api/upload-api/pkg/transport"
)

// Config is the root configuration
type Config struct {
	Upload    UploadConfig    `yaml:"upload"`
	Transport TransportConfig `yaml:"transport"`
	Response  ResponseConfig  `yaml:"response"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// UploadConfig describes the upload servlet and the credentials used
type UploadConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	AuthToken string `yaml:"authToken"`
	Admin     bool   `yaml:"admin"` // send ZM_ADMIN_AUTH_TOKEN instead of ZM_AUTH_TOKEN
	UserAgent string `yaml:"userAgent"`
}

// TransportConfig configures the HTTPS client
type TransportConfig struct {
	Timeout            time.Duration `yaml:"timeout" validate:"min=0"`
	IdleConnTimeout    time.Duration `yaml:"idleConnTimeout" validate:"min=0"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	CAFile             string        `yaml:"caFile" validate:"omitempty,file"`
	MinTLSVersion      string        `yaml:"minTLSVersion" validate:"oneof=1.2 1.3"`
}

// ResponseConfig tunes the response extractor
type ResponseConfig struct {
	// SkipOffset is nil when unset so an explicit 0 is kept
	SkipOffset *int `yaml:"skipOffset" validate:"omitempty,min=0"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// StorageConfig configures where attachment handles are kept
type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB settings. An empty URI disables storage.
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database" validate:"required_with=URI"`
	Collection string `yaml:"collection" validate:"required_with=URI"`
}

// MetricsConfig configures metrics export
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node exporter textfile path, empty disables
}

// Override modifies a loaded configuration before defaults are applied
type Override func(*Config)

// LoadDotEnv loads environment variables from the given .env files. Files
// that do not exist are ignored; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from path. An empty path starts from an empty
// configuration, so everything comes from overrides and defaults.
func Load(path string, overrides ...Override) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	for _, o := range overrides {
		o(&cfg)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 10 * time.Minute
	}
	if c.Transport.IdleConnTimeout == 0 {
		c.Transport.IdleConnTimeout = 90 * time.Second
	}
	if c.Transport.MinTLSVersion == "" {
		c.Transport.MinTLSVersion = "1.2"
	}
	if c.Response.SkipOffset == nil {
		offset := response.DefaultSkipOffset
		c.Response.SkipOffset = &offset
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "zimbra_upload"
	}
	if c.Storage.MongoDB.Collection == "" {
		c.Storage.MongoDB.Collection = "attachments"
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on '%s' rule", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// AuthContext returns the configured credentials, or nil without a token
func (c *Config) AuthContext() message.AuthContext {
	if c.Upload.AuthToken == "" {
		return nil
	}
	return message.AuthToken{Token: c.Upload.AuthToken, Admin: c.Upload.Admin}
}

// Extractor returns a response extractor using the configured offset
func (c *Config) Extractor() *response.Extractor {
	e := response.DefaultExtractor()
	if c.Response.SkipOffset != nil {
		e.SkipOffset = *c.Response.SkipOffset
	}
	return e
}

// HTTPSConfig builds the transport configuration
func (c *Config) HTTPSConfig() (*transport.HTTPSConfig, error) {
	cfg := transport.DefaultHTTPSConfig()
	cfg.Timeout = c.Transport.Timeout
	cfg.IdleConnTimeout = c.Transport.IdleConnTimeout
	cfg.InsecureSkipVerify = c.Transport.InsecureSkipVerify

	if c.Transport.MinTLSVersion == "1.3" {
		cfg.MinTLSVersion = transport.TLS13
	}

	if c.Transport.CAFile != "" {
		pem, err := os.ReadFile(c.Transport.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.Transport.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// NewLogger creates a logger writing to w according to the log settings
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
