package app

import (
	"github.com/spf13/cobra"

	"github.com/sayshara/oldump/pkg/constants"
	"github.com/sayshara/oldump/pkg/logging"
)

// NewPruneCommand creates the prune command.
func (a *App) NewPruneCommand() *cobra.Command {
	var revision string

	cmd := &cobra.Command{
		Use:   "prune <repo-path>",
		Short: "Delete uploaded .partN files for a payload from the mirror",
		Long: `Prune removes the index-suffixed part files a previous chunked upload
left in the dataset repo, scanning part indexes in order and stopping at
the first missing one. Use it after a payload shrinks below the
single-file limit and its parts are superseded by a whole-file upload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			syncer, err := a.Syncer()
			if err != nil {
				return err
			}

			deleted, err := syncer.Prune(ctx, args[0], revision)
			if err != nil {
				return err
			}

			cmd.Printf("Deleted %d part file(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&revision, "revision", constants.DefaultRevision, "revision to prune parts from")

	return cmd
}
