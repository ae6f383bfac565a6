package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/salesledger/internal/seed"
)

func newSeedCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load customers, employees, products and prices from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening seed file: %w", err)
			}
			defer f.Close()

			doc, err := seed.Parse(f)
			if err != nil {
				return err
			}

			return run(cmd.Context(), open, func(a *app) error {
				loader, err := seed.NewLoader(a.db, a.reference, a.logg)
				if err != nil {
					return err
				}
				stats, err := loader.Load(cmd.Context(), doc)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Seeded %d customers, %d employees, %d products; %d prices added, %d skipped\n",
					stats.Customers, stats.Employees, stats.Products, stats.PricesAdded, stats.PricesSkipped)
				return nil
			})
		},
	}
}
