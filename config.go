package bucketx

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap/zapcore"
)

const redacted = "[redacted]"

// Credentials holds the static credentials and optional custom endpoint
// needed to construct a store client. It is a value: build it once with
// Configure and pass it along with the Config.
type Credentials struct {
	// AccessKeyID is the access key ID
	AccessKeyID string `mapstructure:"access_key" yaml:"access_key" json:"accessKey"`

	// SecretAccessKey is the secret access key
	SecretAccessKey string `mapstructure:"secret_key" yaml:"secret_key" json:"secretKey"`

	// EndpointURL is the custom endpoint URL (for MinIO, etc.); empty means AWS
	EndpointURL string `mapstructure:"endpoint" yaml:"endpoint" json:"url"`
}

// Configure builds the credential context. It must happen before any store
// client is constructed.
func Configure(accessKeyID, secretAccessKey, endpointURL string) Credentials {
	return Credentials{
		AccessKeyID:     strings.TrimSpace(accessKeyID),
		SecretAccessKey: strings.TrimSpace(secretAccessKey),
		EndpointURL:     strings.TrimSpace(endpointURL),
	}
}

// IsConfigured reports whether both required keys are present.
func (c Credentials) IsConfigured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Config holds all store client configuration options
type Config struct {
	// Provider specifies the store client implementation ("s3" or "minio")
	Provider string `mapstructure:"provider" yaml:"provider" default:"s3"`

	// Credentials are the static credentials and endpoint
	Credentials `mapstructure:",squash" yaml:",inline"`

	// Region is the AWS region (e.g., "us-west-2")
	Region string `mapstructure:"region" yaml:"region" default:"us-east-1"`

	// UsePathStyle forces path-style addressing (true for MinIO)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style" default:"false"`

	// DisableSSL selects http when the endpoint has no scheme
	DisableSSL bool `mapstructure:"disable_ssl" yaml:"disable_ssl" default:"false"`

	// RequestTimeout is the timeout for individual requests
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" default:"30s"`

	// MaxRetries is the maximum number of SDK attempts for a single request
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" default:"3"`

	// BackoffInitial is the initial SDK retry delay
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial" default:"200ms"`

	// BackoffMax is the maximum SDK retry delay
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max" default:"5s"`
}

// Prefix returns the configuration key prefix
func (Config) Prefix() string { return "bucketx" }

// DefaultConfig returns a configuration with the tag defaults applied
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// tags are static; a failure here is a programming error
		panic(fmt.Sprintf("bucketx: applying config defaults: %v", err))
	}
	return cfg
}

// NewConfig builds a normalized configuration from credentials on top of
// DefaultConfig.
func NewConfig(creds Credentials) *Config {
	cfg := DefaultConfig()
	cfg.Credentials = creds
	return cfg.Normalize()
}

// GetEndpointURL returns the full endpoint URL
func (c *Config) GetEndpointURL() string {
	if c.EndpointURL == "" {
		return ""
	}

	if strings.HasPrefix(c.EndpointURL, "http://") || strings.HasPrefix(c.EndpointURL, "https://") {
		return c.EndpointURL
	}

	scheme := "https"
	if c.DisableSSL {
		scheme = "http"
	}

	return fmt.Sprintf("%s://%s", scheme, c.EndpointURL)
}

// IsCustomEndpoint reports whether the config targets a non-AWS endpoint
func (c *Config) IsCustomEndpoint() bool {
	return c.EndpointURL != ""
}

// Normalize applies automatic fixes to the configuration and returns a copy
// without mutating the receiver.
func (c *Config) Normalize() *Config {
	if c == nil {
		return DefaultConfig()
	}

	normalized := *c
	base := DefaultConfig()

	normalized.Provider = strings.ToLower(strings.TrimSpace(normalized.Provider))
	if normalized.Provider == "" {
		normalized.Provider = base.Provider
	}

	if normalized.Region == "" {
		normalized.Region = base.Region
	}

	if normalized.RequestTimeout == 0 {
		normalized.RequestTimeout = base.RequestTimeout
	}

	if normalized.MaxRetries == 0 {
		normalized.MaxRetries = base.MaxRetries
	}

	if normalized.BackoffInitial == 0 {
		normalized.BackoffInitial = base.BackoffInitial
	}

	if normalized.BackoffMax == 0 {
		normalized.BackoffMax = base.BackoffMax
	}

	normalized.Credentials = Configure(normalized.AccessKeyID, normalized.SecretAccessKey, normalized.EndpointURL)
	if normalized.EndpointURL != "" {
		normalized.EndpointURL = strings.TrimSuffix(normalized.EndpointURL, "/")
		// custom endpoints are almost always MinIO-like
		normalized.UsePathStyle = true
	}

	return &normalized
}

// Sanitize returns a copy with secrets redacted, safe to log.
func (c *Config) Sanitize() any {
	if c == nil {
		return (*Config)(nil)
	}

	sanitized := *c
	if sanitized.AccessKeyID != "" {
		sanitized.AccessKeyID = redacted
	}
	if sanitized.SecretAccessKey != "" {
		sanitized.SecretAccessKey = redacted
	}
	return &sanitized
}

// MarshalLogObject lets zap log the configuration without its secrets.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("provider", c.Provider)
	enc.AddString("region", c.Region)
	enc.AddString("endpoint", c.EndpointURL)
	enc.AddBool("use_path_style", c.UsePathStyle)
	enc.AddBool("access_key_set", c.AccessKeyID != "")
	enc.AddBool("secret_key_set", c.SecretAccessKey != "")
	enc.AddDuration("request_timeout", c.RequestTimeout)
	enc.AddInt("max_retries", c.MaxRetries)
	return nil
}

// String returns a safe string representation (redacts secrets)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Provider:%s, Region:%s, Endpoint:%s, UsePathStyle:%v}",
		c.Provider, c.Region, c.EndpointURL, c.UsePathStyle)
}
