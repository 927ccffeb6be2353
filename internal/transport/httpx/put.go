package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/uploadq/internal/progress"
)

// PutPresigned uploads data to a presigned URL. report, when set, receives
// upload percentages. headers are the signed headers the URL was issued
// with; they must be sent verbatim.
func PutPresigned(ctx context.Context, client *http.Client, url string, data []byte, headers http.Header, report func(percent int)) error {
	if client == nil {
		client = http.DefaultClient
	}

	body := progress.NewReader(bytes.NewReader(data), int64(len(data)), report)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	for k, vs := range headers {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s: %w", resp.Status, string(b), ErrUnexpectedStatus)
	}
	return nil
}
