package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/httpapi"
	"specsbiz/backend/internal/logging"
)

type UserAddOptions struct {
	Username string
	Password string
	Role     string
}

func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	opts := &UserAddOptions{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an owner or staff account in the --owner namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			// Only account creation is used, so the signing secret and PIN stay unset.
			auth := httpapi.NewAuthManager("", 0, "", sess.backend.Repo, logging.New("warn", "text"))
			user, err := auth.CreateAccount(cmd.Context(), rootOpts.Owner, opts.Role, domain.StaffCreateRequest{
				Username: opts.Username,
				Password: opts.Password,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create account", err)
			}
			if rootOpts.Format != "text" {
				return writeStructured(cmd.OutOrStdout(), rootOpts.Format, user)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s in %s\n", user.Role, user.Username, user.OwnerID)
			return err
		},
	}
	add.Flags().StringVar(&opts.Username, "username", "", "login name (required)")
	_ = add.MarkFlagRequired("username")
	add.Flags().StringVar(&opts.Password, "password", "", "password, at least 6 characters (required)")
	_ = add.MarkFlagRequired("password")
	add.Flags().StringVar(&opts.Role, "role", domain.RoleOwner, "account role (owner|staff)")

	cmd.AddCommand(add)
	return cmd
}
