package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			result := map[string]string{"mode": sess.backend.Mode, "status": "migrated"}
			if rootOpts.Format != "text" {
				return writeStructured(cmd.OutOrStdout(), rootOpts.Format, result)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", sess.backend.Mode)
			return err
		},
	}
}
