package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/toolgate/internal/app"
	"github.com/doeshing/toolgate/internal/domain"
)

func newDoctorCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose environment setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := container.DoctorService.Run(cmd.Context())
			renderDoctorReport(cmd.OutOrStdout(), report)
			if err != nil {
				return err
			}
			if !report.Healthy() {
				return fmt.Errorf("environment has problems, see report above")
			}
			return nil
		},
	}
}

func renderDoctorReport(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		fmt.Fprintf(out, "%s %-16s %s\n", renderStatus(check.Status), check.Name, check.Details)
	}
}
