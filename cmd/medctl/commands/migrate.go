package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	pg "medication-reminder/internal/adapters/storage/postgres"
	"medication-reminder/internal/platform/config"
)

func newMigrateCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el schema de Postgres (idempotente)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), pg.Schema())
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return fmt.Errorf("DB_DSN is required")
			}

			db, err := pg.Open(cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pg.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Imprimir el schema sin conectarse")
	return cmd
}
