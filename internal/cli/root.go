package cli

import (
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

func newRootCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "salesctl",
		Short:         "Operator tooling for the sales ledger",
		Long:          "salesctl seeds reference data, manages principals, prints sales reports and replays dead-lettered events against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newSeedCmd(open))
	cmd.AddCommand(newSetRoleCmd(open))
	cmd.AddCommand(newCreatePrincipalCmd(open))
	cmd.AddCommand(newReportCmd(open))
	cmd.AddCommand(newDLQCmd(open))
	return cmd
}

// NewRootCmdForTest returns the root command bound to an open connection.
func NewRootCmdForTest(conn *gorm.DB, passwords config.PasswordConfig, logg *logger.Logger) *cobra.Command {
	return newRootCmd(connOpener(conn, passwords, logg))
}

func Execute() error {
	return newRootCmd(configOpener).Execute()
}
