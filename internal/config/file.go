package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/uploadq/internal/timex"
)

// FileConfig is the on-disk form of Config. Durations accept "1s" or integer
// nanoseconds. Absent fields leave the current value untouched.
type FileConfig struct {
	Transport      *string         `json:"transport" yaml:"transport"`
	Endpoint       *string         `json:"endpoint" yaml:"endpoint"`
	Token          *string         `json:"token" yaml:"token"`
	Timeout        *timex.Duration `json:"timeout" yaml:"timeout"`
	S3AccessKey    *string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    *string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket       *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3Prefix       *string         `json:"s3_prefix" yaml:"s3_prefix"`
	PresignExpiry  *timex.Duration `json:"presign_expiry" yaml:"presign_expiry"`
	MaxFileSize    *int64          `json:"max_file_size" yaml:"max_file_size"`
	MaxTotalSize   *int64          `json:"max_total_size" yaml:"max_total_size"`
	AllowedTypes   []string        `json:"allowed_types" yaml:"allowed_types"`
	Concurrency    *int            `json:"concurrency" yaml:"concurrency"`
	Multiple       *bool           `json:"multiple" yaml:"multiple"`
	LogLevel       *string         `json:"log_level" yaml:"log_level"`
	StatsInterval  *timex.Duration `json:"stats_interval" yaml:"stats_interval"`
}

// LoadFile overlays the JSON or YAML file at path onto c. The format is
// chosen by extension; anything but .yaml and .yml is read as JSON.
func LoadFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(c)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setIf(&c.Transport, fc.Transport)
	setIf(&c.Endpoint, fc.Endpoint)
	setIf(&c.Token, fc.Token)
	setDurationIf(&c.Timeout, fc.Timeout)
	setIf(&c.S3AccessKey, fc.S3AccessKey)
	setIf(&c.S3SecretKey, fc.S3SecretKey)
	setIf(&c.S3Bucket, fc.S3Bucket)
	setIf(&c.S3Region, fc.S3Region)
	setIf(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setIf(&c.S3Prefix, fc.S3Prefix)
	setDurationIf(&c.PresignExpiry, fc.PresignExpiry)
	setIf(&c.MaxFileSize, fc.MaxFileSize)
	setIf(&c.MaxTotalSize, fc.MaxTotalSize)
	if fc.AllowedTypes != nil {
		c.AllowedTypes = fc.AllowedTypes
	}
	setIf(&c.Concurrency, fc.Concurrency)
	setIf(&c.Multiple, fc.Multiple)
	setIf(&c.LogLevel, fc.LogLevel)
	setDurationIf(&c.StatsInterval, fc.StatsInterval)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDurationIf(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
