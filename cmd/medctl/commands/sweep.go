package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"medication-reminder/internal/jobs"
	"medication-reminder/internal/platform/config"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/router"
)

func newSweepCmd() *cobra.Command {
	var (
		reminders bool
		missed    bool
		grace     time.Duration
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Corre una vez los jobs de recordatorios y doses perdidos",
		Long: `Ejecuta los mismos jobs que la API agenda con cron, una sola vez.
Usa la config del entorno (DB_DSN, REDIS_ADDR, canales). Útil en un CronJob
externo cuando JOBS_ENABLED=false en la API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grace") {
				cfg.Jobs.MissedGrace = grace
			}
			if cfg.DB.DSN == "" {
				return fmt.Errorf("DB_DSN is required: in-memory storage has nothing to sweep")
			}

			log := logger.New(logger.Options{
				Level:  logger.ParseLevel(cfg.Log.Level),
				Format: logger.ParseFormat(cfg.Log.Format),
				App:    "medctl",
			})
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			stores, err := router.OpenStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer stores.Close()

			opts, err := router.OptionsFromConfig(cfg, log, stores)
			if err != nil {
				return err
			}
			app := router.Build(opts)

			runner := jobs.New(jobs.Options{
				Repo:      app.Repo,
				Engine:    app.Engine,
				Logger:    log,
				Grace:     cfg.Jobs.MissedGrace,
				BatchSize: cfg.Jobs.BatchSize,
			})

			out := cmd.OutOrStdout()
			if reminders {
				n, err := runner.RemindDue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "reminders dispatched: %d\n", n)
			}
			if missed {
				n, err := runner.SweepMissed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "missed doses recorded: %d\n", n)
			}

			app.Dispatcher.Wait()
			return nil
		},
	}

	cmd.Flags().BoolVar(&reminders, "reminders", true, "Despachar recordatorios due")
	cmd.Flags().BoolVar(&missed, "missed", true, "Marcar doses perdidos y avanzar el schedule")
	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "Override de MISSED_GRACE")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout total de la corrida")
	return cmd
}
