package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/progress"
	"github.com/dmitrijs2005/uploadq/internal/request"
)

func TestNewEntry_RequiresUploader(t *testing.T) {
	_, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{})
	assert.ErrorIs(t, err, ErrMissingUploader)
}

func TestEntry_UploadSuccess(t *testing.T) {
	up := &fakeUploader{}
	var got []models.ServerFile
	e, err := NewEntry("a", newFile("a.txt", 3), map[string]string{"record": "42"}, EntryConfig{
		Uploader:         up,
		OnUploadResponse: func(_ *Entry, files []models.ServerFile) { got = files },
	})
	require.NoError(t, err)
	assert.Equal(t, EntryCreated, e.State())

	require.NoError(t, e.Upload(context.Background()))

	assert.True(t, e.Ready())
	assert.Equal(t, EntryUploaded, e.State())
	assert.Equal(t, "srv-a", e.ID())
	assert.Equal(t, "https://storage.local/a", e.ServerFile().StorageURL)
	assert.Equal(t, 100, e.Progress())
	assert.NoError(t, e.Err())
	require.Len(t, got, 1)

	up.mu.Lock()
	payload := up.calls[0]
	up.mu.Unlock()
	assert.Equal(t, "a", payload.ClientFileID)
	assert.Equal(t, map[string]string{"record": "42"}, payload.Context)
	assert.Equal(t, "a.txt", payload.Files[0].Name)

	// Uploading a ready entry is a no-op.
	require.NoError(t, e.Upload(context.Background()))
	assert.Equal(t, 1, up.Calls())
}

func TestEntry_ValidationGating(t *testing.T) {
	up := &fakeUploader{}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up, Validator: rejectAll()})
	require.NoError(t, err)

	err = e.Upload(context.Background())

	require.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, errBadFile)
	assert.Zero(t, up.Calls())
	assert.Equal(t, request.StateInitial, e.UploadRequest().State())
	assert.False(t, e.Valid())
	assert.Equal(t, EntryInvalid, e.State())
	assert.Equal(t, "bad file", e.ErrorMessage())
}

func TestEntry_ValidationRecovers(t *testing.T) {
	fail := true
	v := ValidatorFunc(func(context.Context, models.File) error {
		if fail {
			return errBadFile
		}
		return nil
	})
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}, Validator: v})
	require.NoError(t, err)

	require.Error(t, e.Validate(context.Background()))
	assert.Equal(t, "bad file", e.ValidationError())

	fail = false
	require.NoError(t, e.Validate(context.Background()))
	assert.True(t, e.Valid())
}

func TestEntry_NoFile(t *testing.T) {
	up := &fakeUploader{}
	e, err := NewEntry("a", nil, nil, EntryConfig{Uploader: up})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Upload(context.Background()), ErrNoFile)
	assert.Zero(t, up.Calls())
}

func TestEntry_UploadFailureIsRetryable(t *testing.T) {
	boom := errors.New("connection reset")
	failing := true
	up := &fakeUploader{fn: func(_ context.Context, p models.UploadPayload, _ request.ProgressFunc) ([]models.ServerFile, error) {
		if failing {
			return nil, boom
		}
		return accept(p), nil
	}}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up})
	require.NoError(t, err)

	err = e.Upload(context.Background())
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "upload", uerr.Op)
	assert.Equal(t, "a", uerr.ClientID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, EntryErrored, e.State())
	assert.Equal(t, "connection reset", e.ErrorMessage())
	assert.True(t, e.ServerError())

	failing = false
	require.NoError(t, e.Upload(context.Background()))
	assert.Equal(t, EntryUploaded, e.State())
	assert.NoError(t, e.Err())
}

func TestEntry_EmptyServerResponseIsAnError(t *testing.T) {
	up := &fakeUploader{fn: func(context.Context, models.UploadPayload, request.ProgressFunc) ([]models.ServerFile, error) {
		return nil, nil
	}}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Upload(context.Background()), models.ErrEmptyResponse)
	assert.False(t, e.Ready())
	assert.Equal(t, EntryErrored, e.State())
}

func TestEntry_CancelWhileUploading(t *testing.T) {
	started := make(chan struct{})
	up := &fakeUploader{fn: blockUntilCanceled(started)}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Upload(context.Background()) }()
	waitClosed(t, started)

	assert.True(t, e.Uploading())
	assert.Equal(t, EntryUploading, e.State())
	assert.True(t, e.Cancel())

	err = <-done
	assert.ErrorIs(t, err, request.ErrCanceled)
	assert.True(t, e.Aborted())
	assert.Equal(t, EntryAborted, e.State())
	assert.NoError(t, e.Err())
	assert.NotEqual(t, request.StateError, e.UploadRequest().State())

	// Aborted is not terminal.
	up.mu.Lock()
	up.fn = nil
	up.mu.Unlock()
	require.NoError(t, e.Upload(context.Background()))
	assert.False(t, e.Aborted())
	assert.Equal(t, EntryUploaded, e.State())
}

func TestEntry_CancelWhenIdleIsNoop(t *testing.T) {
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}})
	require.NoError(t, err)

	assert.False(t, e.Cancel())
	assert.False(t, e.Aborted())
}

func TestEntry_DeleteBeforeReadyIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	up := &fakeUploader{fn: func(_ context.Context, p models.UploadPayload, _ request.ProgressFunc) ([]models.ServerFile, error) {
		close(started)
		<-release
		return accept(p), nil
	}}
	del := &fakeDeleter{}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up, Deleter: del})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Upload(context.Background()) }()
	waitClosed(t, started)

	assert.ErrorIs(t, e.Delete(context.Background()), ErrNotReady)
	assert.Empty(t, del.Calls())

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, e.Delete(context.Background()))
	assert.Equal(t, []models.DeleteArgs{{FileID: "srv-a"}}, del.Calls())
	assert.True(t, e.Deleted())
	assert.Equal(t, EntryDeleted, e.State())
	assert.ErrorIs(t, e.Delete(context.Background()), ErrDeleted)
}

func TestEntry_DeleteFailure(t *testing.T) {
	boom := errors.New("gone wrong")
	del := &fakeDeleter{err: boom}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}, Deleter: del})
	require.NoError(t, err)
	require.NoError(t, e.Upload(context.Background()))

	err = e.Delete(context.Background())
	var uerr *Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "delete", uerr.Op)
	assert.False(t, e.Deleted())
	assert.ErrorIs(t, e.Err(), boom)
}

func TestEntry_DeleteWithoutDeleter(t *testing.T) {
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}})
	require.NoError(t, err)
	require.NoError(t, e.Upload(context.Background()))

	assert.ErrorIs(t, e.Delete(context.Background()), ErrMissingDeleter)
}

func TestEntry_UpdateRequiresReupload(t *testing.T) {
	up := &fakeUploader{}
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: up})
	require.NoError(t, err)
	require.NoError(t, e.Upload(context.Background()))

	e.Update(newFile("b.txt", 5), nil)

	assert.False(t, e.Ready())
	assert.Empty(t, e.ID())
	assert.Equal(t, "b.txt", e.File().Name)

	require.NoError(t, e.Upload(context.Background()))
	assert.True(t, e.Ready())
	assert.Equal(t, 2, up.Calls())
}

func TestEntry_ProgressFromRequest(t *testing.T) {
	started := make(chan struct{})
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{fn: blockUntilCanceled(started)}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Upload(context.Background()) }()
	waitClosed(t, started)

	assert.Eventually(t, func() bool { return e.Progress() == 10 }, time.Second, 5*time.Millisecond)
	e.Cancel()
	<-done
	assert.Equal(t, 0, e.Progress())
}

func TestEntry_ProgressFromRegistry(t *testing.T) {
	reg := progress.NewRegistry()
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}, Registry: reg})
	require.NoError(t, err)

	reg.NotifyStart(progress.StartEvent{ID: "a", Total: 3})
	reg.NotifyProgress(progress.ProgressEvent{ID: "a", Percent: 40})
	assert.Equal(t, 40, e.Progress())

	reg.NotifyEnd(progress.EndEvent{ID: "a", StatusCode: 413})
	assert.ErrorIs(t, e.Err(), models.ErrFileTooLarge)
	assert.False(t, e.ServerError())
}

func TestEntry_SubscribeSeesTransitions(t *testing.T) {
	e, err := NewEntry("a", newFile("a.txt", 3), nil, EntryConfig{Uploader: &fakeUploader{}})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		states []EntryState
	)
	unsub := e.Subscribe(func(e *Entry) {
		mu.Lock()
		states = append(states, e.State())
		mu.Unlock()
	})
	defer unsub()

	require.NoError(t, e.Upload(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, EntryUploading)
	assert.Equal(t, EntryUploaded, states[len(states)-1])
}

func TestEntryState_String(t *testing.T) {
	assert.Equal(t, "uploading", EntryUploading.String())
	assert.Equal(t, "deleted", EntryDeleted.String())
	assert.Equal(t, "unknown", EntryState(99).String())
}
