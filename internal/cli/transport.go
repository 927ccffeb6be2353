package cli

import (
	"context"

	"github.com/dmitrijs2005/uploadq/internal/config"
	"github.com/dmitrijs2005/uploadq/internal/transport/httpx"
	"github.com/dmitrijs2005/uploadq/internal/transport/s3store"
	"github.com/dmitrijs2005/uploadq/internal/upload"
)

func newTransport(ctx context.Context, a *App) (upload.Uploader, upload.Deleter, error) {
	cfg := a.cfg
	switch cfg.Transport {
	case config.TransportS3:
		s, err := s3store.New(ctx, s3store.Config{
			Region:        cfg.S3Region,
			BaseEndpoint:  cfg.S3BaseEndpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			PresignExpiry: cfg.PresignExpiry,
			Logger:        a.log,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		c, err := httpx.New(httpx.Config{
			Endpoint: cfg.Endpoint,
			Token:    cfg.Token,
			Timeout:  cfg.Timeout,
			Registry: a.registry,
			Logger:   a.log,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
}
