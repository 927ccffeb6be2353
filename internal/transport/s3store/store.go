// Package s3store implements the upload and delete contracts on top of an
// S3-compatible object store.
//
// Files are sent with a presigned PUT so the body can report progress, and
// the returned descriptor carries a presigned GET as its storage URL.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/request"
	"github.com/dmitrijs2005/uploadq/internal/transport/httpx"
)

const (
	defaultPresignExpiry = 15 * time.Minute
	metaClientID         = "client-id"
	metaChecksum         = "checksum"
	metaOriginalName     = "original-name"
)

var (
	ErrMissingBucket = errors.New("s3 bucket is required")
	ErrNoFiles       = errors.New("nothing to upload")
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// API is the subset of *s3.Client the store needs.
type API interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient the store needs.
type Presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Config struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Bucket       string
	// Prefix is prepended to generated object keys.
	Prefix        string
	PresignExpiry time.Duration
	HTTPClient    *http.Client
	Logger        logging.Logger
}

type Store struct {
	api     API
	presign Presigner
	bucket  string
	prefix  string
	expiry  time.Duration
	http    *http.Client
	log     logging.Logger
	now     func() time.Time
}

// New builds a Store from static credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, s3.NewPresignClient(client), cfg)
}

// NewWithClient builds a Store on existing clients.
func NewWithClient(api API, presign Presigner, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Store{
		api:     api,
		presign: presign,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		expiry:  expiry,
		http:    cfg.HTTPClient,
		log:     logging.OrNop(cfg.Logger).With("transport", "s3", "bucket", cfg.Bucket),
		now:     time.Now,
	}, nil
}

// StorageKey returns a fresh object key under prefix, partitioned by date.
func (s *Store) StorageKey() string {
	d := s.now()
	return path.Join(s.prefix, fmt.Sprintf("uploads/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New()))
}

// Upload stores the first file of p. The server id of the result is the
// object key.
func (s *Store) Upload(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile] {
	return request.Go(ctx, func(ctx context.Context, report request.ProgressFunc) ([]models.ServerFile, error) {
		return s.upload(ctx, p, report)
	})
}

func (s *Store) upload(ctx context.Context, p models.UploadPayload, report request.ProgressFunc) ([]models.ServerFile, error) {
	if len(p.Files) == 0 {
		return nil, ErrNoFiles
	}
	f := p.Files[0]
	key := s.StorageKey()

	meta := make(map[string]string, len(p.Context)+3)
	for k, v := range p.Context {
		meta[k] = v
	}
	meta[metaOriginalName] = f.Name
	if p.ClientFileID != "" {
		meta[metaClientID] = p.ClientFileID
	}
	if f.Checksum != "" {
		meta[metaChecksum] = f.Checksum
	}

	contentType := f.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	put, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(f.Data))),
		Metadata:      meta,
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	err = httpx.PutPresigned(ctx, s.http, put.URL, f.Data, put.SignedHeader, func(pct int) {
		report(request.Progress{Direction: request.Upload, Percent: pct})
	})
	if err != nil {
		return nil, err
	}

	get, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	s.log.Debug(ctx, "object stored", "key", key, "size", len(f.Data))
	report(request.Progress{Direction: request.Download, Percent: 100})

	return []models.ServerFile{{
		ID:           key,
		OriginalName: f.Name,
		Path:         key,
		Size:         int64(len(f.Data)),
		StorageURL:   get.URL,
	}}, nil
}

// Delete removes the object whose key is args.FileID.
func (s *Store) Delete(ctx context.Context, args models.DeleteArgs) request.Operation[struct{}] {
	return request.Go(ctx, func(ctx context.Context, _ request.ProgressFunc) (struct{}, error) {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(args.FileID),
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("delete object: %w", err)
		}
		s.log.Debug(ctx, "object deleted", "key", args.FileID)
		return struct{}{}, nil
	})
}
