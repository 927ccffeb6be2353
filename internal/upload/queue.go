package upload

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/observe"
	"github.com/dmitrijs2005/uploadq/internal/progress"
	"github.com/dmitrijs2005/uploadq/internal/validation"
)

const defaultConcurrency = 4

// Descriptor identifies a file being added to a queue.
type Descriptor struct {
	// ClientID is the correlation key. A new one is generated when empty.
	ClientID string
	File     *models.File
	Context  map[string]string
}

type AddOptions struct {
	ShouldUpload bool
}

// BeforeAddArgs is passed to the BeforeAdd hook. The hook may veto the add
// by returning an error or by setting AddToQueue to false.
type BeforeAddArgs struct {
	Descriptors []Descriptor
	AddToQueue  bool
}

// AddResult is the outcome for one file of AddFilesToQueue.
type AddResult struct {
	ClientID string
	FileID   string
	Success  bool
	Err      error
}

// Options configure a Queue. Uploader is required.
type Options struct {
	Multiple       bool
	ClearBeforeAdd bool

	Uploader  Uploader
	Deleter   Deleter
	Validator Validator

	BeforeAdd        func(ctx context.Context, args *BeforeAddArgs) error
	OnUploadResponse func(e *Entry, files []models.ServerFile)

	// InitialFiles are already on the server and need no upload.
	InitialFiles      []models.ServerFile
	InitialValidation func(e *Entry)

	// MaxTotalSize bounds the size of completed, pending and new files
	// together. Zero means no limit.
	MaxTotalSize int64
	// UploadContext is attached to every upload started by AddFilesToQueue.
	UploadContext map[string]string
	// Concurrency limits parallel uploads of AddFilesToQueue and parallel
	// cleanups of ClearQueue.
	Concurrency int

	Registry *progress.Registry
	Monitor  *Monitor
	Logger   logging.Logger
}

// ChangeKind tells what changed in a Queue.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
	ChangeCleared
	ChangeEntry
)

type Change struct {
	Kind     ChangeKind
	ClientID string
}

type member struct {
	entry *Entry
	unsub func()
}

// Queue is an ordered set of entries keyed by client id.
type Queue struct {
	opts Options
	log  logging.Logger

	mu      sync.RWMutex
	entries map[string]member
	order   []string

	hub observe.Hub[Change]
}

// NewQueue builds a queue. It fails with ErrMissingUploader when no uploader
// is configured.
func NewQueue(opts Options) (*Queue, error) {
	if opts.Uploader == nil {
		return nil, ErrMissingUploader
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	q := &Queue{
		opts:    opts,
		log:     logging.OrNop(opts.Logger).With("component", "upload_queue"),
		entries: make(map[string]member),
	}

	for _, f := range opts.InitialFiles {
		clientID := f.ID
		if clientID == "" {
			clientID = uuid.NewString()
		}
		if _, ok := q.entries[clientID]; ok {
			q.log.Warn(context.Background(), "duplicate initial file skipped", "client_id", clientID)
			continue
		}
		e := newEntry(clientID, nil, nil, false, q.entryConfig())
		e.serverFile = f
		if opts.InitialValidation != nil {
			opts.InitialValidation(e)
		}
		q.insertLocked(e)
	}
	return q, nil
}

// NewValidator adapts validation rules to the Validator contract.
func NewValidator(rules ...validation.Rule) Validator {
	return ValidatorFunc(validation.Chain(rules...))
}

func (q *Queue) entryConfig() EntryConfig {
	return EntryConfig{
		Uploader:         q.opts.Uploader,
		Deleter:          q.opts.Deleter,
		Validator:        q.opts.Validator,
		Registry:         q.opts.Registry,
		Monitor:          q.opts.Monitor,
		Logger:           q.opts.Logger,
		OnUploadResponse: q.opts.OnUploadResponse,
	}
}

// AddFileToQueue adds d, or updates the entry that already has its client
// id, and uploads it when ShouldUpload is set. The entry is returned even
// when the upload fails.
func (q *Queue) AddFileToQueue(ctx context.Context, d Descriptor, ao AddOptions) (*Entry, error) {
	if d.ClientID == "" {
		d.ClientID = uuid.NewString()
	}
	if err := q.beforeAdd(ctx, []Descriptor{d}); err != nil {
		return nil, err
	}
	if d.File != nil {
		var err error
		if prev := q.Get(d.ClientID); prev != nil {
			err = q.checkTotalSize(ctx, d.File.Size-prev.size(), false)
		} else {
			err = q.checkTotalSize(ctx, d.File.Size, q.opts.ClearBeforeAdd || !q.opts.Multiple)
		}
		if err != nil {
			return nil, err
		}
	}

	q.mu.Lock()
	m, exists := q.entries[d.ClientID]
	var (
		e       *Entry
		evicted []*Entry
	)
	if exists {
		e = m.entry
	} else {
		if q.opts.ClearBeforeAdd || (!q.opts.Multiple && len(q.entries) > 0) {
			evicted = q.detachAllLocked()
		}
		e = newEntry(d.ClientID, d.File, d.Context, true, q.entryConfig())
		q.insertLocked(e)
	}
	q.mu.Unlock()

	if len(evicted) > 0 {
		q.cleanup(ctx, evicted)
		q.hub.Publish(Change{Kind: ChangeCleared})
	}

	if exists {
		e.Update(d.File, d.Context)
		q.log.Debug(ctx, "entry updated", "client_id", d.ClientID)
		q.hub.Publish(Change{Kind: ChangeUpdated, ClientID: d.ClientID})
	} else {
		q.log.Debug(ctx, "entry added", "client_id", d.ClientID)
		q.hub.Publish(Change{Kind: ChangeAdded, ClientID: d.ClientID})
	}

	if !ao.ShouldUpload {
		return e, nil
	}
	return e, e.Upload(ctx)
}

// AddFilesToQueue adds files under fresh client ids and uploads them
// concurrently. It returns one result per file, in input order. Failures are
// reported per file and never abort the other uploads.
func (q *Queue) AddFilesToQueue(ctx context.Context, files []models.File) []AddResult {
	results := make([]AddResult, len(files))
	descs := make([]Descriptor, len(files))
	for i := range files {
		id := uuid.NewString()
		results[i].ClientID = id
		descs[i] = Descriptor{ClientID: id, File: &files[i], Context: q.opts.UploadContext}
	}
	if len(files) == 0 {
		return results
	}
	ctx = logging.ContextWith(ctx, "batch_id", uuid.NewString())

	failAll := func(err error) []AddResult {
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	if err := q.beforeAdd(ctx, descs); err != nil {
		return failAll(err)
	}

	accepted := descs
	if !q.opts.Multiple {
		accepted = descs[:1]
		for i := 1; i < len(descs); i++ {
			results[i].Err = ErrMultipleNotAllowed
		}
	}

	replace := q.opts.ClearBeforeAdd || !q.opts.Multiple

	var incoming int64
	for _, d := range accepted {
		incoming += d.File.Size
	}
	if err := q.checkTotalSize(ctx, incoming, replace); err != nil {
		return failAll(err)
	}

	entries := make([]*Entry, len(accepted))
	q.mu.Lock()
	var evicted []*Entry
	if replace {
		evicted = q.detachAllLocked()
	}
	for i, d := range accepted {
		entries[i] = newEntry(d.ClientID, d.File, d.Context, true, q.entryConfig())
		q.insertLocked(entries[i])
	}
	q.mu.Unlock()

	if len(evicted) > 0 {
		q.cleanup(ctx, evicted)
		q.hub.Publish(Change{Kind: ChangeCleared})
	}
	for _, e := range entries {
		q.hub.Publish(Change{Kind: ChangeAdded, ClientID: e.ClientID()})
	}

	var g errgroup.Group
	g.SetLimit(q.opts.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			err := e.Upload(ctx)
			results[i].Err = err
			results[i].Success = err == nil
			results[i].FileID = e.ID()
			return nil
		})
	}
	_ = g.Wait()

	q.log.Info(ctx, "batch uploaded", "files", len(files), "failed", countFailed(results))
	return results
}

func countFailed(results []AddResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

// checkTotalSize enforces MaxTotalSize for incoming bytes. With replace the
// current entries are about to be evicted and do not count.
func (q *Queue) checkTotalSize(ctx context.Context, incoming int64, replace bool) error {
	limit := q.opts.MaxTotalSize
	if limit <= 0 {
		return nil
	}
	total := incoming
	if !replace {
		total += q.TotalSize()
	}
	if total <= limit {
		return nil
	}
	q.log.Warn(ctx, "total size limit exceeded", "total", total, "limit", limit)
	return fmt.Errorf("%w: %s of %s", ErrTotalSizeExceeded,
		validation.HumanSize(total), validation.HumanSize(limit))
}

func (q *Queue) beforeAdd(ctx context.Context, descs []Descriptor) error {
	if q.opts.BeforeAdd == nil {
		return nil
	}
	args := &BeforeAddArgs{Descriptors: descs, AddToQueue: true}
	if err := q.opts.BeforeAdd(ctx, args); err != nil {
		q.log.Warn(ctx, "add rejected by hook", "error", err)
		return fmt.Errorf("%w: %w", ErrAddRejected, err)
	}
	if !args.AddToQueue {
		return ErrAddRejected
	}
	return nil
}

// Remove drops an entry from the queue without canceling or deleting it.
func (q *Queue) Remove(clientID string) bool {
	q.mu.Lock()
	m, ok := q.entries[clientID]
	if ok {
		delete(q.entries, clientID)
		q.order = slices.DeleteFunc(q.order, func(id string) bool { return id == clientID })
	}
	q.mu.Unlock()

	if !ok {
		return false
	}
	m.unsub()
	q.hub.Publish(Change{Kind: ChangeRemoved, ClientID: clientID})
	return true
}

// CancelUploadingFile aborts the upload of one entry. It reports whether an
// upload was in flight.
func (q *Queue) CancelUploadingFile(clientID string) bool {
	e := q.Get(clientID)
	if e == nil {
		return false
	}
	return e.Cancel()
}

// DeleteUploadedFile deletes one entry's file from the server. The entry
// stays in the queue, marked deleted.
func (q *Queue) DeleteUploadedFile(ctx context.Context, clientID string) error {
	e := q.Get(clientID)
	if e == nil {
		return ErrNotFound
	}
	return e.Delete(ctx)
}

// ClearQueue deletes ready files and cancels the others, then empties the
// queue. Failures are logged; the queue is always empty afterwards.
func (q *Queue) ClearQueue(ctx context.Context) {
	q.mu.Lock()
	detached := q.detachAllLocked()
	q.mu.Unlock()

	q.cleanup(ctx, detached)
	q.hub.Publish(Change{Kind: ChangeCleared})
}

func (q *Queue) cleanup(ctx context.Context, entries []*Entry) {
	var g errgroup.Group
	g.SetLimit(q.opts.Concurrency)
	for _, e := range entries {
		if e.Deleted() {
			continue
		}
		g.Go(func() error {
			if !e.Ready() {
				e.Cancel()
				return nil
			}
			if err := e.Delete(ctx); err != nil {
				q.log.Warn(ctx, "cleanup delete failed", "client_id", e.ClientID(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// NotifyFileUploaded flags the entries whose server ids appear in files.
// It returns how many entries matched.
func (q *Queue) NotifyFileUploaded(files []models.ServerFile) int {
	ids := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.ID != "" {
			ids[f.ID] = struct{}{}
		}
	}
	n := 0
	for _, e := range q.Entries() {
		if _, ok := ids[e.ID()]; ok {
			e.setServerNotified()
			n++
		}
	}
	return n
}

func (q *Queue) insertLocked(e *Entry) {
	clientID := e.ClientID()
	if prev, ok := q.entries[clientID]; ok {
		prev.unsub()
		q.order = slices.DeleteFunc(q.order, func(id string) bool { return id == clientID })
	}
	unsub := e.Subscribe(func(*Entry) {
		q.hub.Publish(Change{Kind: ChangeEntry, ClientID: clientID})
	})
	q.entries[clientID] = member{entry: e, unsub: unsub}
	q.order = append(q.order, clientID)
}

func (q *Queue) detachAllLocked() []*Entry {
	out := make([]*Entry, 0, len(q.order))
	for _, id := range q.order {
		m := q.entries[id]
		m.unsub()
		out = append(out, m.entry)
	}
	q.entries = make(map[string]member)
	q.order = nil
	return out
}

// Subscribe registers fn to be called after every change of the queue or of
// one of its entries.
func (q *Queue) Subscribe(fn func(Change)) (unsubscribe func()) {
	return q.hub.Subscribe(fn)
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

func (q *Queue) Get(clientID string) *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.entries[clientID].entry
}

// Entries returns the entries in insertion order.
func (q *Queue) Entries() []*Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Entry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id].entry)
	}
	return out
}

// CurrentEntry is the first entry, or nil. Single-file queues hold at most
// one.
func (q *Queue) CurrentEntry() *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.order) == 0 {
		return nil
	}
	return q.entries[q.order[0]].entry
}

func (q *Queue) IsQueueEmpty() bool { return q.Len() == 0 }

// Valid reports whether the queue is non-empty and every entry is valid.
func (q *Queue) Valid() bool {
	entries := q.Entries()
	return len(entries) > 0 && !slices.ContainsFunc(entries, func(e *Entry) bool { return !e.Valid() })
}

// Uploaded reports whether the queue is non-empty and every entry is ready.
func (q *Queue) Uploaded() bool {
	entries := q.Entries()
	return len(entries) > 0 && !slices.ContainsFunc(entries, func(e *Entry) bool { return !e.Ready() })
}

// IsUploading reports whether any entry is not ready yet.
func (q *Queue) IsUploading() bool {
	return slices.ContainsFunc(q.Entries(), func(e *Entry) bool { return !e.Ready() })
}

// IsDirty reports whether any valid entry is being uploaded.
func (q *Queue) IsDirty() bool {
	return slices.ContainsFunc(q.Entries(), func(e *Entry) bool { return e.Valid() && e.Uploading() })
}

// FilesUploaded reports whether the server was notified of every entry.
func (q *Queue) FilesUploaded() bool {
	return !slices.ContainsFunc(q.Entries(), func(e *Entry) bool { return !e.ServerNotified() })
}

func (q *Queue) AllFilesInQueueAreDeleted() bool {
	entries := q.Entries()
	return len(entries) > 0 && !slices.ContainsFunc(entries, func(e *Entry) bool { return !e.Deleted() })
}

// FilesReady returns the server descriptors of ready, non-deleted entries.
func (q *Queue) FilesReady() []models.ServerFile {
	var out []models.ServerFile
	for _, e := range q.Entries() {
		if e.Ready() && !e.Deleted() {
			out = append(out, e.ServerFile())
		}
	}
	return out
}

func (q *Queue) PendingUploads() []*Entry {
	return slices.DeleteFunc(q.Entries(), func(e *Entry) bool { return e.Ready() })
}

func (q *Queue) CompletedUploads() []*Entry {
	return slices.DeleteFunc(q.Entries(), func(e *Entry) bool { return !e.Ready() })
}

// TotalSize sums the sizes of live entries: local files for pending ones,
// server sizes for completed ones.
func (q *Queue) TotalSize() int64 {
	var total int64
	for _, e := range q.Entries() {
		total += e.size()
	}
	return total
}
