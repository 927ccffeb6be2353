// Package models defines the payloads exchanged between the upload queue and
// the transports that move files.
package models

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/uploadq/internal/cryptox"
)

// File is a binary payload plus the metadata the queue and validators need.
type File struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Checksum string `json:"checksum,omitempty"`
	Data     []byte `json:"-"`
}

// NewFile wraps data, detecting its MIME type from content and computing its
// checksum.
func NewFile(name string, data []byte) File {
	return File{
		Name:     name,
		Size:     int64(len(data)),
		MimeType: mimetype.Detect(data).String(),
		Checksum: cryptox.Checksum(data),
		Data:     data,
	}
}

// ServerFile describes a file the server accepted.
type ServerFile struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	StorageURL   string `json:"storageUrl,omitempty"`
}

// UploadPayload is the argument of the upload contract.
type UploadPayload struct {
	Files        []File
	ClientFileID string
	Context      map[string]string
}

// DeleteArgs is the argument of the delete contract.
type DeleteArgs struct {
	FileID string
}
