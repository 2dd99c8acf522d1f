package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd arma medctl: herramientas de operación sobre el scheduler
// (preview de frecuencias, corrida manual de jobs, migraciones).
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medctl",
		Short: "medctl - operaciones del medication reminder",
		Long: `medctl agrupa tareas de operación que no pasan por la API HTTP.

  preview  calcula los próximos recordatorios de una frecuencia
  sweep    corre una vez los jobs de recordatorios y doses perdidos
  migrate  aplica (o imprime) el schema de Postgres`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}

	root.AddCommand(newPreviewCmd(), newSweepCmd(), newMigrateCmd())
	return root
}
