package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/salesledger/internal/auth"
)

func newSetRoleCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Set a principal's role (admin, user or blocked)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), open, func(a *app) error {
				principal, err := a.access.AssignRole(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", principal.Email, principal.Role)
				return nil
			})
		},
	}
}

func newCreatePrincipalCmd(open opener) *cobra.Command {
	var (
		email string
		name  string
		role  string
	)

	cmd := &cobra.Command{
		Use:   "create-principal",
		Short: "Create a principal with a generated password",
		Long:  "Create a principal with the given role. The generated password is printed once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), open, func(a *app) error {
				principal, password, err := a.register.Provision(cmd.Context(), auth.ProvisionRequest{
					DisplayName: name,
					Email:       email,
					Role:        role,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created %s (%s) as %s\n", principal.Email, principal.ID, principal.Role)
				fmt.Fprintf(out, "Temporary password: %s\n", password)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address to sign in with")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "user", "Role (admin, user, blocked)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
