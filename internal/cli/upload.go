package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/uploadq/internal/models"
	"github.com/dmitrijs2005/uploadq/internal/upload"
	"github.com/dmitrijs2005/uploadq/internal/validation"
)

var ErrUploadFailed = errors.New("some files failed to upload")

func newUploadCmd(a *App) *cobra.Command {
	var uploadCtx map[string]string

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpload(cmd.Context(), args, uploadCtx)
		},
	}
	cmd.Flags().StringToStringVar(&uploadCtx, "context", nil, "key=value pairs sent with every file")
	return cmd
}

func (a *App) runUpload(ctx context.Context, paths []string, uploadCtx map[string]string) error {
	files := make([]models.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, models.NewFile(filepath.Base(p), data))
	}

	uploader, deleter, err := a.newTransport(ctx, a)
	if err != nil {
		return err
	}

	mon := upload.NewMonitor(5, a.log)
	if a.cfg.StatsInterval > 0 {
		statsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go mon.Run(statsCtx, a.cfg.StatsInterval)
	}

	q, err := upload.NewQueue(upload.Options{
		Multiple: a.cfg.Multiple,
		Uploader: uploader,
		Deleter:  deleter,
		Validator: upload.NewValidator(
			validation.NotEmpty(),
			validation.MaxSize(a.cfg.MaxFileSize),
			validation.AllowedTypes(a.cfg.AllowedTypes...),
		),
		MaxTotalSize:  a.cfg.MaxTotalSize,
		UploadContext: uploadCtx,
		Concurrency:   a.cfg.Concurrency,
		Registry:      a.registry,
		Monitor:       mon,
		Logger:        a.log,
	})
	if err != nil {
		return err
	}

	r := newRenderer(a.out, q)
	unsub := q.Subscribe(r.onChange)
	results := q.AddFilesToQueue(ctx, files)
	unsub()
	r.finish()

	if ctx.Err() != nil {
		// Interrupted: remove what made it to the server.
		cleanupCtx := context.WithoutCancel(ctx)
		q.ClearQueue(cleanupCtx)
		return ctx.Err()
	}

	failed := 0
	for i, res := range results {
		if res.Success {
			fmt.Fprintf(a.out, "%-30s uploaded  %s\n", files[i].Name, res.FileID)
			continue
		}
		failed++
		fmt.Fprintf(a.out, "%-30s failed    %v\n", files[i].Name, res.Err)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrUploadFailed, failed, len(results))
	}
	return nil
}
