// Package httpx implements the upload and delete contracts over HTTP.
//
// Uploads are multipart POSTs to the configured endpoint. The server answers
// with {"files": [...]} or, for application-level rejections,
// {"error": {"code": "...", "message": "..."}}. Deletes are DELETE requests
// to endpoint/{id}.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/progress"
	"github.com/dmitrijs2005/uploadq/internal/request"
)

const (
	HeaderChecksum = "X-Content-Checksum"
	FieldClientID  = "clientFileId"
	FieldFiles     = "files"
)

var (
	ErrMissingEndpoint  = errors.New("upload endpoint is required")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

type Config struct {
	// Endpoint is the upload URL. Deletes go to Endpoint/{id}.
	Endpoint string
	// Token is sent as a bearer token. JWTs are checked for expiry first.
	Token   string
	Timeout time.Duration
	// Registry, when set, receives transport-level progress keyed by the
	// upload's client id.
	Registry *progress.Registry
	// Base is the underlying transport, http.DefaultTransport when nil.
	Base   http.RoundTripper
	Logger logging.Logger
}

type Client struct {
	endpoint *url.URL
	token    string
	http     *http.Client
	log      logging.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse endpoint: unsupported scheme %q", u.Scheme)
	}

	rt := cfg.Base
	if cfg.Registry != nil {
		rt = &progress.Transport{Base: rt, Registry: cfg.Registry}
	}

	return &Client{
		endpoint: u,
		token:    cfg.Token,
		http:     &http.Client{Transport: rt, Timeout: cfg.Timeout},
		log:      logging.OrNop(cfg.Logger).With("transport", "http"),
	}, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type uploadResponse struct {
	Files []models.ServerFile `json:"files"`
	Error *apiError           `json:"error,omitempty"`
}

// Upload starts the upload of p in the background.
func (c *Client) Upload(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile] {
	return request.Go(ctx, func(ctx context.Context, report request.ProgressFunc) ([]models.ServerFile, error) {
		return c.upload(ctx, p, report)
	})
}

func (c *Client) upload(ctx context.Context, p models.UploadPayload, report request.ProgressFunc) ([]models.ServerFile, error) {
	if err := checkToken(c.token, time.Now()); err != nil {
		return nil, err
	}

	body, contentType, err := encodeMultipart(p)
	if err != nil {
		return nil, err
	}

	size := int64(body.Len())
	reader := progress.NewReader(body, size, func(pct int) {
		report(request.Progress{Direction: request.Upload, Percent: pct})
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if p.ClientFileID != "" {
		req.Header.Set(progress.HeaderID, p.ClientFileID)
	}
	if len(p.Files) == 1 && p.Files[0].Checksum != "" {
		req.Header.Set(HeaderChecksum, p.Files[0].Checksum)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	download := progress.NewReader(resp.Body, resp.ContentLength, func(pct int) {
		report(request.Progress{Direction: request.Download, Percent: pct})
	})
	raw, err := io.ReadAll(download)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out uploadResponse
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		be := &models.BusinessError{Code: models.CodeFileTooLarge, StatusCode: resp.StatusCode}
		if decodeErr == nil && out.Error != nil {
			be.Message = out.Error.Message
		}
		return nil, be
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if decodeErr == nil && out.Error != nil {
			return nil, &models.BusinessError{Code: out.Error.Code, Message: out.Error.Message, StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("upload failed: %s; body: %s: %w", resp.Status, strings.TrimSpace(string(raw)), ErrUnexpectedStatus)
	case decodeErr != nil:
		return nil, fmt.Errorf("decode upload response: %w", decodeErr)
	case out.Error != nil:
		return nil, &models.BusinessError{Code: out.Error.Code, Message: out.Error.Message, StatusCode: resp.StatusCode}
	}

	c.log.Debug(ctx, "upload response", "client_id", p.ClientFileID, "files", len(out.Files))
	return out.Files, nil
}

// Delete removes a file by server id.
func (c *Client) Delete(ctx context.Context, args models.DeleteArgs) request.Operation[struct{}] {
	return request.Go(ctx, func(ctx context.Context, _ request.ProgressFunc) (struct{}, error) {
		return struct{}{}, c.delete(ctx, args.FileID)
	})
}

func (c *Client) delete(ctx context.Context, id string) error {
	if err := checkToken(c.token, time.Now()); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint.JoinPath(url.PathEscape(id)).String(), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed: %s; body: %s: %w", resp.Status, strings.TrimSpace(string(b)), ErrUnexpectedStatus)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func encodeMultipart(p models.UploadPayload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if p.ClientFileID != "" {
		if err := w.WriteField(FieldClientID, p.ClientFileID); err != nil {
			return nil, "", err
		}
	}

	keys := make([]string, 0, len(p.Context))
	for k := range p.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, p.Context[k]); err != nil {
			return nil, "", err
		}
	}

	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldFiles, f.Name))
		ct := f.MimeType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
