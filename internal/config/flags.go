package config

import (
	"github.com/spf13/pflag"
)

// Flags binds command-line flags to a Config. Only flags the user actually
// set override file values.
type Flags struct {
	fs         *pflag.FlagSet
	values     Config
	configPath string
}

// RegisterFlags defines the configuration flags on fs.
//
// Supported flags:
//
//	-c, --config string        JSON or YAML config file
//	-t, --transport string     http or s3
//	-e, --endpoint string      HTTP upload endpoint
//	    --token string         bearer token
//	    --timeout duration     per-request timeout
//	    --s3-access-key string
//	    --s3-secret-key string
//	-b, --s3-bucket string
//	    --s3-region string
//	    --s3-endpoint string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	    --s3-prefix string     object key prefix
//	    --max-file-size int    bytes, 0 disables
//	    --max-total-size int   bytes, 0 disables
//	    --allow strings        accepted MIME types, e.g. image/*
//	-j, --concurrency int
//	    --multiple             allow several files per queue
//	    --log-level string
//	    --stats-interval duration
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	f.values.LoadDefaults()
	v := &f.values

	fs.StringVarP(&f.configPath, "config", "c", "", "path to JSON or YAML config file")
	fs.StringVarP(&v.Transport, "transport", "t", v.Transport, "upload transport: http or s3")
	fs.StringVarP(&v.Endpoint, "endpoint", "e", v.Endpoint, "HTTP upload endpoint")
	fs.StringVar(&v.Token, "token", v.Token, "bearer token")
	fs.DurationVar(&v.Timeout, "timeout", v.Timeout, "per-request timeout")
	fs.StringVar(&v.S3AccessKey, "s3-access-key", v.S3AccessKey, "S3 access key")
	fs.StringVar(&v.S3SecretKey, "s3-secret-key", v.S3SecretKey, "S3 secret key")
	fs.StringVarP(&v.S3Bucket, "s3-bucket", "b", v.S3Bucket, "S3 bucket")
	fs.StringVar(&v.S3Region, "s3-region", v.S3Region, "S3 region")
	fs.StringVar(&v.S3BaseEndpoint, "s3-endpoint", v.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&v.S3Prefix, "s3-prefix", v.S3Prefix, "S3 object key prefix")
	fs.Int64Var(&v.MaxFileSize, "max-file-size", v.MaxFileSize, "maximum file size in bytes, 0 disables")
	fs.Int64Var(&v.MaxTotalSize, "max-total-size", v.MaxTotalSize, "maximum total size in bytes, 0 disables")
	fs.StringSliceVar(&v.AllowedTypes, "allow", v.AllowedTypes, "accepted MIME types, e.g. image/*")
	fs.IntVarP(&v.Concurrency, "concurrency", "j", v.Concurrency, "parallel uploads")
	fs.BoolVar(&v.Multiple, "multiple", v.Multiple, "allow several files per queue")
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "debug, info, warn or error")
	fs.DurationVar(&v.StatsInterval, "stats-interval", v.StatsInterval, "upload stats log period, 0 disables")

	return f
}

// Load builds the Config: defaults, then the config file, then the flags
// that were set explicitly.
func (f *Flags) Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if f.configPath != "" {
		if err := LoadFile(cfg, f.configPath); err != nil {
			return nil, err
		}
	}

	// Changed is tracked on the shared *pflag.Flag, so this also sees flags
	// parsed through a cobra subcommand's merged flag set.
	f.fs.VisitAll(func(fl *pflag.Flag) {
		if fl.Changed {
			f.apply(fl.Name, cfg)
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) apply(name string, cfg *Config) {
	v := &f.values
	switch name {
	case "transport":
		cfg.Transport = v.Transport
	case "endpoint":
		cfg.Endpoint = v.Endpoint
	case "token":
		cfg.Token = v.Token
	case "timeout":
		cfg.Timeout = v.Timeout
	case "s3-access-key":
		cfg.S3AccessKey = v.S3AccessKey
	case "s3-secret-key":
		cfg.S3SecretKey = v.S3SecretKey
	case "s3-bucket":
		cfg.S3Bucket = v.S3Bucket
	case "s3-region":
		cfg.S3Region = v.S3Region
	case "s3-endpoint":
		cfg.S3BaseEndpoint = v.S3BaseEndpoint
	case "s3-prefix":
		cfg.S3Prefix = v.S3Prefix
	case "max-file-size":
		cfg.MaxFileSize = v.MaxFileSize
	case "max-total-size":
		cfg.MaxTotalSize = v.MaxTotalSize
	case "allow":
		cfg.AllowedTypes = v.AllowedTypes
	case "concurrency":
		cfg.Concurrency = v.Concurrency
	case "multiple":
		cfg.Multiple = v.Multiple
	case "log-level":
		cfg.LogLevel = v.LogLevel
	case "stats-interval":
		cfg.StatsInterval = v.StatsInterval
	}
}
