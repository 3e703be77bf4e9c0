package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"specsbiz/backend/internal/domain"
)

type Summary struct {
	Overview domain.LedgerOverview `json:"overview"`
	Health   domain.BusinessHealth `json:"health"`
}

func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show cash in, receivables, investment and business health",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			overview, err := sess.service.LedgerOverview(sess.ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build overview", err)
			}
			health, err := sess.service.Health(sess.ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to compute health", err)
			}
			summary := Summary{Overview: overview, Health: health}
			if rootOpts.Format != "text" {
				return writeStructured(cmd.OutOrStdout(), rootOpts.Format, summary)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Cash in:      %s\n", overview.TotalCashIn.StringFixed(2))
			fmt.Fprintf(w, "Owed to shop: %s\n", overview.TotalOwed.StringFixed(2))
			fmt.Fprintf(w, "Investment:   %s\n", overview.TotalInvestment.StringFixed(2))
			fmt.Fprintf(w, "Health score: %d/100\n", health.HealthScore)
			for _, finding := range health.Findings {
				fmt.Fprintf(w, "  [%s] %s\n", finding.Severity, finding.Code)
			}
			return nil
		},
	}
}
