// Package config handles configuration for the uploader, including
// defaults, a JSON or YAML file overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	TransportHTTP = "http"
	TransportS3   = "s3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime settings for the uploader.
//
// Fields:
//   - Transport: "http" (multipart POST to Endpoint) or "s3" (object store).
//   - Endpoint / Token / Timeout: HTTP upload endpoint, bearer token, per-request timeout.
//   - S3AccessKey / S3SecretKey / S3Bucket / S3Region / S3BaseEndpoint / S3Prefix:
//     object storage settings; PresignExpiry bounds presigned URL lifetime.
//   - MaxFileSize / MaxTotalSize: per-file and per-queue limits in bytes, 0 disables.
//   - AllowedTypes: accepted MIME types, wildcards such as "image/*" allowed.
//   - Concurrency: parallel uploads. Multiple: whether the queue holds more than one file.
//   - LogLevel: debug, info, warn or error. StatsInterval: upload stats period, 0 disables.
type Config struct {
	Transport      string
	Endpoint       string
	Token          string
	Timeout        time.Duration
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3Prefix       string
	PresignExpiry  time.Duration
	MaxFileSize    int64
	MaxTotalSize   int64
	AllowedTypes   []string
	Concurrency    int
	Multiple       bool
	LogLevel       string
	StatsInterval  time.Duration
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Transport = TransportHTTP
	c.Endpoint = "http://127.0.0.1:8080/api/files"
	c.Timeout = 5 * time.Minute
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3Bucket = "uploads"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.PresignExpiry = 15 * time.Minute
	c.MaxFileSize = 100 << 20
	c.Concurrency = 4
	c.Multiple = true
	c.LogLevel = "info"
}

// Validate checks that the settings needed by the selected transport exist.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("%w: endpoint is required for the http transport", ErrInvalidConfig)
		}
	case TransportS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3 bucket is required for the s3 transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return l, nil
}
