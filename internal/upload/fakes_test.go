package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/request"
)

type uploadFunc func(ctx context.Context, p models.UploadPayload, report request.ProgressFunc) ([]models.ServerFile, error)

type fakeUploader struct {
	mu    sync.Mutex
	calls []models.UploadPayload
	fn    uploadFunc
}

func (f *fakeUploader) Upload(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile] {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	fn := f.fn
	f.mu.Unlock()

	return request.Go(ctx, func(ctx context.Context, report request.ProgressFunc) ([]models.ServerFile, error) {
		if fn != nil {
			return fn(ctx, p, report)
		}
		return accept(p), nil
	})
}

func (f *fakeUploader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func accept(p models.UploadPayload) []models.ServerFile {
	return []models.ServerFile{{
		ID:           "srv-" + p.ClientFileID,
		OriginalName: p.Files[0].Name,
		Path:         "/files/" + p.Files[0].Name,
		Size:         p.Files[0].Size,
		StorageURL:   "https://storage.local/" + p.ClientFileID,
	}}
}

type fakeDeleter struct {
	mu    sync.Mutex
	calls []models.DeleteArgs
	err   error
}

func (f *fakeDeleter) Delete(_ context.Context, args models.DeleteArgs) request.Operation[struct{}] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	return request.Resolved(struct{}{}, f.err)
}

func (f *fakeDeleter) Calls() []models.DeleteArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DeleteArgs(nil), f.calls...)
}

var errBadFile = errors.New("bad file")

func rejectAll() Validator {
	return ValidatorFunc(func(context.Context, models.File) error { return errBadFile })
}

func newFile(name string, size int) *models.File {
	f := models.NewFile(name, make([]byte, size))
	return &f
}

// blockUntilCanceled signals started and waits for cancellation.
func blockUntilCanceled(started chan<- struct{}) uploadFunc {
	return func(ctx context.Context, _ models.UploadPayload, report request.ProgressFunc) ([]models.ServerFile, error) {
		report(request.Progress{Direction: request.Upload, Percent: 10})
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func newQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	q, err := NewQueue(opts)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}
