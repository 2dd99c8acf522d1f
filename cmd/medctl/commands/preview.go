package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/schedule"
)

type previewFlags struct {
	frequency string
	hours     float64
	times     []string
	timezone  string
	from      string
	count     int
}

func newPreviewCmd() *cobra.Command {
	var f previewFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Lista los próximos recordatorios de una frecuencia",
		Long: `Resuelve la frecuencia igual que la API y lista los próximos N recordatorios.

Ejemplos:
  medctl preview --frequency twice_daily --from 2024-01-01T08:00:00Z
  medctl preview --frequency specific_times --times 09:00,13:00,18:00 --tz America/Argentina/Buenos_Aires
  medctl preview --frequency "every 6 hours" -n 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.frequency, "frequency", "f", "", "Tag de frecuencia (daily, twice_daily, every_X_hours, specific_times, ...)")
	cmd.Flags().Float64Var(&f.hours, "hours", 0, "Horas para every_X_hours / custom")
	cmd.Flags().StringSliceVar(&f.times, "times", nil, "Horarios HH:MM para specific_times")
	cmd.Flags().StringVar(&f.timezone, "tz", "UTC", "Zona horaria IANA")
	cmd.Flags().StringVar(&f.from, "from", "", "Instante de referencia RFC3339 (default: ahora)")
	cmd.Flags().IntVarP(&f.count, "count", "n", 5, "Cantidad de recordatorios")
	_ = cmd.MarkFlagRequired("frequency")

	return cmd
}

func runPreview(cmd *cobra.Command, f previewFlags) error {
	if f.count <= 0 || f.count > 1000 {
		return fmt.Errorf("count must be between 1 and 1000")
	}

	loc, err := time.LoadLocation(strings.TrimSpace(f.timezone))
	if err != nil {
		return fmt.Errorf("unknown timezone %q", f.timezone)
	}

	from := time.Now()
	if strings.TrimSpace(f.from) != "" {
		from, err = time.Parse(time.RFC3339, f.from)
		if err != nil {
			return fmt.Errorf("--from must be RFC3339: %w", err)
		}
	}

	desc, err := frequency.ParseDescriptor(f.frequency, f.hours, f.times)
	if err != nil {
		return err
	}
	rule, err := frequency.Resolve(desc)
	if err != nil {
		return err
	}

	next, err := schedule.Preview(rule, from.In(loc), nil, f.count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "frequency: %s (%s)\n", desc.String(), rule.Kind)
	for i, n := range next {
		fmt.Fprintf(out, "%3d  %s\n", i+1, n.At.Format(time.RFC3339))
	}
	return nil
}
