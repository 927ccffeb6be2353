package upload

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/observe"
	"github.com/dmitrijs2005/uploadq/internal/progress"
	"github.com/dmitrijs2005/uploadq/internal/request"
)

// EntryState is the derived lifecycle position of an Entry.
type EntryState int

const (
	EntryCreated EntryState = iota
	EntryValidating
	EntryInvalid
	EntryUploading
	EntryUploaded
	EntryAborted
	EntryErrored
	EntryDeleted
)

func (s EntryState) String() string {
	switch s {
	case EntryCreated:
		return "created"
	case EntryValidating:
		return "validating"
	case EntryInvalid:
		return "invalid"
	case EntryUploading:
		return "uploading"
	case EntryUploaded:
		return "uploaded"
	case EntryAborted:
		return "aborted"
	case EntryErrored:
		return "errored"
	case EntryDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type (
	UploadRequest = request.Request[models.UploadPayload, []models.ServerFile]
	DeleteRequest = request.Request[models.DeleteArgs, struct{}]
)

// EntryConfig carries the collaborators of an Entry.
type EntryConfig struct {
	Uploader  Uploader
	Deleter   Deleter
	Validator Validator
	// Registry, when set, is the source of upload progress keyed by client id.
	Registry *progress.Registry
	Monitor  *Monitor
	Logger   logging.Logger
	// OnUploadResponse runs after every successful upload.
	OnUploadResponse func(e *Entry, files []models.ServerFile)
}

// Entry tracks one file through validation, upload and deletion.
type Entry struct {
	clientID string
	cfg      EntryConfig
	log      logging.Logger

	upload *UploadRequest
	del    *DeleteRequest

	mu              sync.RWMutex
	file            *models.File
	context         map[string]string
	validationError string
	validating      bool
	uploadNeeded    bool
	uploadComplete  bool
	aborted         bool
	deleted         bool
	serverNotified  bool
	serverFile      models.ServerFile
	// gen changes on every Update; an upload only commits for the
	// generation it started with.
	gen uint64

	hub observe.Hub[*Entry]
}

// NewEntry creates an entry for file that still has to be uploaded.
func NewEntry(clientID string, file *models.File, uploadCtx map[string]string, cfg EntryConfig) (*Entry, error) {
	if cfg.Uploader == nil {
		return nil, ErrMissingUploader
	}
	return newEntry(clientID, file, uploadCtx, true, cfg), nil
}

func newEntry(clientID string, file *models.File, uploadCtx map[string]string, uploadNeeded bool, cfg EntryConfig) *Entry {
	log := logging.OrNop(cfg.Logger).With("client_id", clientID)
	e := &Entry{
		clientID:     clientID,
		cfg:          cfg,
		log:          log,
		file:         file,
		context:      maps.Clone(uploadCtx),
		uploadNeeded: uploadNeeded,
	}
	e.upload = request.New[models.UploadPayload, []models.ServerFile]("upload", request.Options[[]models.ServerFile]{
		OnResponse: requireFiles,
		Logger:     log,
	})
	e.del = request.New[models.DeleteArgs, struct{}]("delete", request.Options[struct{}]{Logger: log})

	e.upload.Subscribe(func(request.Snapshot[models.UploadPayload, []models.ServerFile]) { e.publish() })
	e.del.Subscribe(func(request.Snapshot[models.DeleteArgs, struct{}]) { e.publish() })
	return e
}

func requireFiles(_ context.Context, files []models.ServerFile) ([]models.ServerFile, error) {
	if len(files) == 0 {
		return nil, models.ErrEmptyResponse
	}
	return files, nil
}

// Validate runs the validator against the current file. The outcome is
// stored, so a later success clears an earlier failure.
func (e *Entry) Validate(ctx context.Context) error {
	e.mu.Lock()
	file := e.file
	if file == nil || e.cfg.Validator == nil {
		msg := e.validationError
		e.mu.Unlock()
		if msg != "" {
			return &ValidationError{Message: msg}
		}
		return nil
	}
	e.validating = true
	e.mu.Unlock()
	e.publish()

	err := e.cfg.Validator.Validate(ctx, *file)

	e.mu.Lock()
	e.validating = false
	if err != nil {
		e.validationError = err.Error()
	} else {
		e.validationError = ""
	}
	e.mu.Unlock()
	e.publish()

	if err != nil {
		e.log.Debug(ctx, "validation failed", "error", err)
		return &ValidationError{Message: err.Error(), Err: err}
	}
	return nil
}

// Upload validates the file and sends it. An invalid entry or one without a
// file never reaches the transport. Uploading a ready entry is a no-op.
func (e *Entry) Upload(ctx context.Context) error {
	if err := e.Validate(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	switch {
	case e.deleted:
		e.mu.Unlock()
		return ErrDeleted
	case e.readyLocked():
		e.mu.Unlock()
		return nil
	case e.file == nil:
		e.mu.Unlock()
		return ErrNoFile
	}
	file := *e.file
	gen := e.gen
	payload := models.UploadPayload{
		Files:        []models.File{file},
		ClientFileID: e.clientID,
		Context:      maps.Clone(e.context),
	}
	e.aborted = false
	e.mu.Unlock()

	e.log.Debug(ctx, "uploading", "name", file.Name, "size", file.Size)
	start := time.Now()

	files, err := e.upload.Execute(ctx, e.cfg.Uploader.Upload, payload)
	if err != nil {
		if isCanceled(err) {
			e.cfg.Monitor.UploadCanceled()
			e.log.Debug(ctx, "upload canceled", "error", err)
			return err
		}
		e.cfg.Monitor.UploadFailed()
		e.log.Warn(ctx, "upload failed", "name", file.Name, "error", err)
		return &Error{Op: "upload", ClientID: e.clientID, Err: err}
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		e.log.Debug(ctx, "upload result dropped, file was replaced", "name", file.Name)
		return request.ErrSuperseded
	}
	e.uploadComplete = true
	e.serverFile = mergeServerFile(files[0], file)
	e.mu.Unlock()
	e.publish()

	e.cfg.Monitor.UploadCompleted(file.Size, time.Since(start))
	e.log.Info(ctx, "file uploaded", "name", file.Name, "id", files[0].ID)

	if e.cfg.OnUploadResponse != nil {
		e.cfg.OnUploadResponse(e, files)
	}
	return nil
}

// Cancel aborts an in-flight upload. It reports whether there was one.
func (e *Entry) Cancel() bool {
	if !e.upload.Abort() {
		return false
	}
	e.mu.Lock()
	e.aborted = true
	e.mu.Unlock()
	e.publish()
	return true
}

// Delete removes the uploaded file from the server. The entry is only
// marked deleted; removing it from a queue is up to the caller.
func (e *Entry) Delete(ctx context.Context) error {
	e.mu.RLock()
	deleted := e.deleted
	ready := e.readyLocked()
	id := e.serverFile.ID
	e.mu.RUnlock()

	switch {
	case deleted:
		return ErrDeleted
	case !ready:
		return ErrNotReady
	case id == "":
		return ErrNoServerID
	case e.cfg.Deleter == nil:
		return ErrMissingDeleter
	}

	if _, err := e.del.Execute(ctx, e.cfg.Deleter.Delete, models.DeleteArgs{FileID: id}); err != nil {
		if isCanceled(err) {
			return err
		}
		e.log.Warn(ctx, "delete failed", "id", id, "error", err)
		return &Error{Op: "delete", ClientID: e.clientID, Err: err}
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	e.publish()

	e.log.Info(ctx, "file deleted", "id", id)
	return nil
}

// Update replaces the file in place. An upload of the previous file still in
// flight is aborted. The entry has to be validated and uploaded again.
func (e *Entry) Update(file *models.File, uploadCtx map[string]string) {
	e.upload.Abort()
	e.mu.Lock()
	e.gen++
	e.file = file
	e.context = maps.Clone(uploadCtx)
	e.validationError = ""
	e.uploadNeeded = true
	e.uploadComplete = false
	e.aborted = false
	e.serverNotified = false
	e.serverFile = models.ServerFile{}
	e.mu.Unlock()
	e.publish()
}

// SetValidationError records a failure found outside the validator, such as
// a check on a file seeded from the server. An empty msg clears it.
func (e *Entry) SetValidationError(msg string) {
	e.mu.Lock()
	e.validationError = msg
	e.mu.Unlock()
	e.publish()
}

func (e *Entry) setServerNotified() {
	e.mu.Lock()
	e.serverNotified = true
	e.mu.Unlock()
	e.publish()
}

func (e *Entry) readyLocked() bool {
	return !e.uploadNeeded || (e.uploadComplete && e.upload.State() == request.StateSuccess)
}

func (e *Entry) publish() { e.hub.Publish(e) }

// Subscribe registers fn to be called after every change of the entry.
func (e *Entry) Subscribe(fn func(*Entry)) (unsubscribe func()) {
	return e.hub.Subscribe(fn)
}

func (e *Entry) ClientID() string { return e.clientID }

// ID is the server-assigned id, empty until the file is uploaded.
func (e *Entry) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.serverFile.ID
}

func (e *Entry) File() *models.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.file
}

// size counts towards a queue's total size; deleted entries count as 0.
func (e *Entry) size() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.deleted:
		return 0
	case e.file != nil:
		return e.file.Size
	default:
		return e.serverFile.Size
	}
}

func (e *Entry) ServerFile() models.ServerFile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.serverFile
}

func (e *Entry) Context() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.context)
}

func (e *Entry) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.readyLocked()
}

func (e *Entry) Valid() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validationError == ""
}

// Uploading reports whether the upload is in flight.
func (e *Entry) Uploading() bool { return e.upload.InFlight() }

func (e *Entry) ValidationError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validationError
}

func (e *Entry) UploadNeeded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.uploadNeeded
}

func (e *Entry) Aborted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.aborted
}

func (e *Entry) Deleted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deleted
}

func (e *Entry) ServerNotified() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.serverNotified
}

// Progress is the upload percentage, read from the progress registry when
// the entry is tracked there.
func (e *Entry) Progress() int {
	if reg := e.cfg.Registry; reg != nil {
		if _, ok := reg.Status(e.clientID); ok {
			return reg.PercentLoaded(e.clientID)
		}
	}
	if e.Ready() {
		return 100
	}
	return e.upload.UploadProgress()
}

// Err returns the error to show for the entry, if any.
func (e *Entry) Err() error {
	if msg := e.ValidationError(); msg != "" {
		return &ValidationError{Message: msg}
	}
	if err := e.upload.Err(); err != nil {
		return err
	}
	if err := e.del.Err(); err != nil {
		return err
	}
	if reg := e.cfg.Registry; reg != nil && !reg.IsFileSizeValid(e.clientID) {
		return models.ErrFileTooLarge
	}
	return nil
}

func (e *Entry) ErrorMessage() string {
	if err := e.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// ServerError reports a failure on the server side of the upload.
func (e *Entry) ServerError() bool {
	if reg := e.cfg.Registry; reg != nil && reg.IsServerError(e.clientID) {
		return true
	}
	return e.upload.State() == request.StateError
}

func (e *Entry) State() EntryState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case e.deleted:
		return EntryDeleted
	case e.validating:
		return EntryValidating
	case e.validationError != "":
		return EntryInvalid
	}
	switch e.upload.State() {
	case request.StateFetching:
		return EntryUploading
	case request.StateError:
		return EntryErrored
	}
	switch {
	case e.readyLocked():
		return EntryUploaded
	case e.aborted:
		return EntryAborted
	}
	return EntryCreated
}

// UploadRequest exposes the upload lifecycle for observers.
func (e *Entry) UploadRequest() *UploadRequest { return e.upload }

// DeleteRequest exposes the delete lifecycle for observers.
func (e *Entry) DeleteRequest() *DeleteRequest { return e.del }

func isCanceled(err error) bool {
	return errors.Is(err, request.ErrCanceled) ||
		errors.Is(err, request.ErrSuperseded) ||
		request.IsCancellation(err)
}

func mergeServerFile(got models.ServerFile, local models.File) models.ServerFile {
	if got.OriginalName == "" {
		got.OriginalName = local.Name
	}
	if got.Size == 0 {
		got.Size = local.Size
	}
	return got
}
