package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFileTooLarge is a server-side size-limit rejection.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyResponse means the server accepted the call but described no file.
	ErrEmptyResponse = errors.New("server returned no file descriptor")
)

// Business error codes understood by the transports.
const (
	CodeFileTooLarge = "FILE_TOO_LARGE"
	CodeRejected     = "REJECTED"
)

// BusinessError is an application-level failure carried by an otherwise
// successful transport response.
type BusinessError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected file: %s", e.Code)
	}
	return fmt.Sprintf("server rejected file: %s", e.Message)
}

// Is lets errors.Is(err, ErrFileTooLarge) match size rejections.
func (e *BusinessError) Is(target error) bool {
	return target == ErrFileTooLarge &&
		(e.Code == CodeFileTooLarge || e.StatusCode == http.StatusRequestEntityTooLarge)
}

// IsBusinessError reports whether err wraps a *BusinessError.
func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
