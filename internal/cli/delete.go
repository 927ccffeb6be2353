package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/uploadq/internal/models"
)

func newDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete uploaded files by server id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDelete(cmd.Context(), args)
		},
	}
}

func (a *App) runDelete(ctx context.Context, ids []string) error {
	_, deleter, err := a.newTransport(ctx, a)
	if err != nil {
		return err
	}

	var failed int
	for _, id := range ids {
		if _, err := deleter.Delete(ctx, models.DeleteArgs{FileID: id}).Result(); err != nil {
			failed++
			a.log.Error(ctx, "delete failed", "id", id, "error", err)
			fmt.Fprintf(a.out, "%s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(a.out, "%s: deleted\n", id)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d deletes failed", failed, len(ids))
	}
	return nil
}
