package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sayshara/oldump/pkg/errors"
	"github.com/sayshara/oldump/pkg/logging"
	"github.com/sayshara/oldump/pkg/sync"
)

// NewSyncCommand creates the sync command.
func (a *App) NewSyncCommand() *cobra.Command {
	var (
		only       string
		uploadOnly string
		dryRun     bool
		keep       bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile all tracked dumps with the origin",
		Long: `Sync walks the tracked dump files one at a time and, for each, decides
whether it is already current (skip), can be restored from the mirror
(reuse), or must be downloaded from Open Library and uploaded (fetch).

The manifest records each successful reconciliation and is uploaded to
the dataset's metadata/ prefix at the end of the run.`,
		Example: `  oldump sync                                      # Reconcile everything
  oldump sync --only ol_dump_works_latest.txt.gz   # One dump only
  oldump sync --dry-run                            # Decisions without transfers
  oldump sync --keep                               # Keep local files after upload
  oldump sync --upload-only mydata.parquet         # Push a local file as-is`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			// Dry runs never write, so they alone may run untokened.
			if !dryRun && a.config.Token == "" {
				return fmt.Errorf("%w: set HF_TOKEN", errors.ErrTokenRequired)
			}

			syncer, err := a.Syncer()
			if err != nil {
				return err
			}

			result, err := syncer.Sync(ctx,
				sync.WithOnly(only),
				sync.WithUploadOnly(uploadOnly),
				sync.WithDryRun(dryRun),
				sync.WithKeepLocal(keep),
			)
			if err != nil {
				return err
			}

			cmd.Println(result.Summary())
			if result.HasFailures() {
				return ErrPartialFailure
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&only, "only", "", "only process the named artifact")
	cmd.Flags().StringVar(&uploadOnly, "upload-only", "", "only upload the named local file, without an origin check")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute decisions without performing network writes or filesystem mutation")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep downloaded files after upload")

	return cmd
}
