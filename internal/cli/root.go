// Package cli implements the uploader command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/uploadq/internal/config"
	"github.com/dmitrijs2005/uploadq/internal/logging"
	"github.com/dmitrijs2005/uploadq/internal/progress"
	"github.com/dmitrijs2005/uploadq/internal/upload"
)

// App is the state shared by the commands of one invocation.
type App struct {
	out    io.Writer
	errOut io.Writer

	flags    *config.Flags
	cfg      *config.Config
	log      logging.Logger
	registry *progress.Registry

	// newTransport builds the uploader and deleter for cfg.
	newTransport func(ctx context.Context, a *App) (upload.Uploader, upload.Deleter, error)
}

// NewRootCmd builds the command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &App{
		out:          out,
		errOut:       errOut,
		registry:     progress.NewRegistry(),
		newTransport: newTransport,
	}

	root := &cobra.Command{
		Use:           "uploader",
		Short:         "Upload files over HTTP or to S3",
		Long:          "Uploads files concurrently with validation, live progress and cleanup on cancel.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	a.flags = config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newUploadCmd(a))
	root.AddCommand(newDeleteCmd(a))
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCmd(out, errOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *App) init() error {
	cfg, err := a.flags.Load()
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.NewTextLogger(a.errOut, level)
	return nil
}
