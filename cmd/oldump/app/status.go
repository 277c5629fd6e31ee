package app

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sayshara/oldump/internal/manifest"
	"github.com/sayshara/oldump/pkg/constants"
)

// NewStatusCommand creates the status command, the read side of the
// manifest: what was last synced, and when.
func (a *App) NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the manifest's per-artifact sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.config.ManifestPath
			if path == "" {
				path = a.config.WorkDir + "/" + constants.DefaultManifestName
			}

			man, err := manifest.Open(a.fs, path)
			if err != nil {
				return err
			}

			if man.Len() == 0 {
				cmd.Println("No artifacts synced yet")
				return nil
			}

			names := man.Names()
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ARTIFACT\tLAST SYNCED\tSOURCE MODIFIED")
			for _, name := range names {
				entry, _ := man.Get(name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, entry.LastSynced, entry.SourceLastModified)
			}
			return w.Flush()
		},
	}
}
