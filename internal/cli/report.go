package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/salesledger/internal/reports"
	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
)

func newReportCmd(open opener) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "report <orderID>",
		Short: "Print the sales report for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return run(ctx, open, func(a *app) error {
				row, err := a.principals.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(as)))
				if err != nil {
					if dbpkg.IsNotFound(err) {
						return pkgerrors.Newf(pkgerrors.CodeNotFound, "principal %s not found", as)
					}
					return dbpkg.StoreError(err, "load principal")
				}
				principal, err := a.access.Resolve(ctx, row.ID)
				if err != nil {
					return err
				}
				report, err := a.reports.SalesReport(ctx, *principal, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), reports.RenderText(report))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Email of the principal the report is read as")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}
