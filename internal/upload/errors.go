package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrNotReady           = errors.New("file is not uploaded yet")
	ErrNoServerID         = errors.New("file has no server id")
	ErrNoFile             = errors.New("no file to upload")
	ErrDeleted            = errors.New("file was deleted")
	ErrMissingUploader    = errors.New("upload function is required")
	ErrMissingDeleter     = errors.New("delete function is not configured")
	ErrMultipleNotAllowed = errors.New("queue accepts a single file")
	ErrTotalSizeExceeded  = errors.New("total size limit exceeded")
	ErrNotFound           = errors.New("file not found in queue")
	ErrAddRejected        = errors.New("file was not added to queue")
)

// ValidationError is a client-side rejection of a file. Its message is meant
// for the end user.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Error is a failed transport call made on behalf of an entry.
type Error struct {
	Op       string
	ClientID string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ClientID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
