package upload

import (
	"context"

	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/request"
)

// Uploader starts an upload and returns a cancelable handle to it.
type Uploader interface {
	Upload(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile]
}

// Deleter starts the removal of a file the server already holds.
type Deleter interface {
	Delete(ctx context.Context, args models.DeleteArgs) request.Operation[struct{}]
}

// Validator rejects a file with a human-readable error.
type Validator interface {
	Validate(ctx context.Context, f models.File) error
}

type UploaderFunc func(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile]

func (f UploaderFunc) Upload(ctx context.Context, p models.UploadPayload) request.Operation[[]models.ServerFile] {
	return f(ctx, p)
}

type DeleterFunc func(ctx context.Context, args models.DeleteArgs) request.Operation[struct{}]

func (f DeleterFunc) Delete(ctx context.Context, args models.DeleteArgs) request.Operation[struct{}] {
	return f(ctx, args)
}

type ValidatorFunc func(ctx context.Context, f models.File) error

func (f ValidatorFunc) Validate(ctx context.Context, file models.File) error {
	return f(ctx, file)
}
