package minio

import (
	"errors"
	"time"
)

// Config represents the object storage used for exported project archives
type Config struct {
	Endpoint        string        `mapstructure:"endpoint"` // e.g. localhost:9000
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Region          string        `mapstructure:"region"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Bucket          string        `mapstructure:"bucket"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// Enabled reports whether an endpoint is configured at all
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// SetDefaults fills zero values
func (c *Config) SetDefaults() {
	if c.Bucket == "" {
		c.Bucket = "bolt-exports"
	}
	if c.PresignExpiry <= 0 {
		c.PresignExpiry = time.Hour
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errors.New("minio: endpoint is required")
	case c.AccessKeyID == "":
		return errors.New("minio: access key ID is required")
	case c.SecretAccessKey == "":
		return errors.New("minio: secret access key is required")
	case c.Bucket == "":
		return errors.New("minio: bucket is required")
	case c.PresignExpiry > 7*24*time.Hour:
		return errors.New("minio: presign expiry cannot exceed 7 days")
	}
	return nil
}
